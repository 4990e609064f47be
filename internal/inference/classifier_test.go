package inference

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"defakezone/internal/apperr"
	"defakezone/internal/config"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScorer struct {
	mu     sync.Mutex
	scores []float32
	err    error
	delay  time.Duration
	shapes [][]int64
	inputs [][]float32
}

func (f *fakeScorer) Score(ctx context.Context, input []float32, shape []int64) ([]float32, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shapes = append(f.shapes, shape)
	f.inputs = append(f.inputs, input)
	return f.scores, f.err
}

func (f *fakeScorer) Close() error { return nil }

func solidJPEG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

func TestClassify_TensorLayout(t *testing.T) {
	scorer := &fakeScorer{scores: []float32{0.8, 0.2}}
	c := NewClassifier(scorer, 8, 4, OutputRatio)

	pred, err := c.Classify(context.Background(), solidJPEG(t, 100, 60, color.RGBA{R: 255, G: 0, B: 0, A: 255}))
	require.NoError(t, err)

	require.Len(t, scorer.shapes, 1)
	assert.Equal(t, []int64{1, 4, 8, 3}, scorer.shapes[0])

	input := scorer.inputs[0]
	require.Len(t, input, 4*8*3)
	for _, v := range input {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.LessOrEqual(t, v, float32(1))
	}
	// 纯红色图片：R 接近 1，G/B 接近 0
	assert.InDelta(t, 1.0, input[0], 0.05)
	assert.InDelta(t, 0.0, input[1], 0.05)
	assert.InDelta(t, 0.0, input[2], 0.05)

	assert.Equal(t, LabelReal, pred.Label)
	assert.InDelta(t, 0.2, pred.Probability, 1e-6)
}

func TestInterpret_Ratio(t *testing.T) {
	c := NewClassifier(&fakeScorer{}, 4, 4, OutputRatio)

	cases := []struct {
		scores []float32
		prob   float64
		label  string
	}{
		{[]float32{1, 3}, 0.75, LabelDeepfake},
		{[]float32{3, 1}, 0.25, LabelReal},
		{[]float32{1, 1}, 0.5, LabelReal},
		{[]float32{0, 5}, 1, LabelDeepfake},
		{[]float32{5, 0}, 0, LabelReal},
	}
	for _, tc := range cases {
		pred, err := c.Interpret(tc.scores)
		require.NoError(t, err)
		assert.InDelta(t, tc.prob, pred.Probability, 1e-9)
		assert.Equal(t, tc.label, pred.Label)
	}
}

func TestInterpret_RatioRejectsInvalidScores(t *testing.T) {
	c := NewClassifier(&fakeScorer{}, 4, 4, OutputRatio)

	for _, scores := range [][]float32{
		{-1, 2},
		{0, 0},
		{1},
		{1, 2, 3},
		{float32(math.NaN()), 1},
		{float32(math.Inf(1)), 1},
	} {
		_, err := c.Interpret(scores)
		assert.ErrorIs(t, err, apperr.InferenceError, "%v", scores)
	}
}

func TestInterpret_Softmax(t *testing.T) {
	c := NewClassifier(&fakeScorer{}, 4, 4, OutputSoftmax)

	pred, err := c.Interpret([]float32{-2, 2})
	require.NoError(t, err)
	assert.InDelta(t, 1/(1+math.Exp(-4)), pred.Probability, 1e-6)
	assert.Equal(t, LabelDeepfake, pred.Label)

	pred, err = c.Interpret([]float32{0, 0})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, pred.Probability, 1e-9)
	assert.Equal(t, LabelReal, pred.Label)
}

func TestInterpret_ProbabilityBounds(t *testing.T) {
	c := NewClassifier(&fakeScorer{}, 4, 4, OutputRatio)
	for a := float32(0); a <= 10; a += 0.5 {
		for b := float32(0); b <= 10; b += 0.5 {
			if a+b == 0 {
				continue
			}
			pred, err := c.Interpret([]float32{a, b})
			require.NoError(t, err)
			assert.GreaterOrEqual(t, pred.Probability, 0.0)
			assert.LessOrEqual(t, pred.Probability, 1.0)
			assert.Equal(t, pred.Probability > 0.5, pred.Label == LabelDeepfake)
		}
	}
}

func TestClassify_ScorerError(t *testing.T) {
	c := NewClassifier(&fakeScorer{err: errors.New("boom")}, 4, 4, OutputRatio)
	_, err := c.Classify(context.Background(), solidJPEG(t, 8, 8, color.White))
	assert.ErrorIs(t, err, apperr.InferenceError)
}

func TestClassify_UndecodableInput(t *testing.T) {
	c := NewClassifier(&fakeScorer{scores: []float32{1, 1}}, 4, 4, OutputRatio)
	_, err := c.Classify(context.Background(), []byte("not an image"))
	assert.ErrorIs(t, err, apperr.InferenceError)
}

func TestClassify_Cancelled(t *testing.T) {
	c := NewClassifier(&fakeScorer{scores: []float32{1, 1}, delay: time.Second}, 4, 4, OutputRatio)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.Classify(ctx, solidJPEG(t, 8, 8, color.White))
	assert.ErrorIs(t, err, apperr.InferenceError)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewFromConfig_MissingModel(t *testing.T) {
	c := NewFromConfig(config.ModelConfig{
		Path:        filepath.Join(t.TempDir(), "missing.onnx"),
		InputWidth:  224,
		InputHeight: 224,
		OutputMode:  "ratio",
	}, logrus.New())

	assert.False(t, c.Ready())
	_, err := c.Classify(context.Background(), solidJPEG(t, 8, 8, color.White))
	assert.ErrorIs(t, err, apperr.InferenceError)
	assert.ErrorIs(t, err, ErrModelUnavailable)
}
