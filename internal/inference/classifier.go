// Package inference 将规范化后的图片转换为模型输入并解释模型输出。
//
// 模型输出两个分数，顺序固定为 {Real, Deepfake}。
package inference

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"

	"defakezone/internal/apperr"
	"defakezone/internal/upload"

	"github.com/disintegration/imaging"
)

const (
	LabelReal     = "Real"
	LabelDeepfake = "Deepfake"
)

// OutputMode 分数到概率的换算方式
type OutputMode string

const (
	// OutputRatio p = s[1] / (s[0] + s[1])，要求两个分数非负
	OutputRatio OutputMode = "ratio"
	// OutputSoftmax 将分数视为 logits
	OutputSoftmax OutputMode = "softmax"
)

// ErrModelUnavailable 模型未加载
var ErrModelUnavailable = errors.New("inference model unavailable")

// Scorer 对固定形状的输入张量执行一次前向计算
// 实现必须可并发调用。
type Scorer interface {
	Score(ctx context.Context, input []float32, shape []int64) ([]float32, error)
	Close() error
}

// Prediction 推理结果
type Prediction struct {
	Label       string
	Probability float64
}

// Classifier 推理适配器
type Classifier struct {
	scorer Scorer
	width  int
	height int
	mode   OutputMode
}

// NewClassifier 创建推理适配器
func NewClassifier(scorer Scorer, width, height int, mode OutputMode) *Classifier {
	if mode == "" {
		mode = OutputRatio
	}
	return &Classifier{scorer: scorer, width: width, height: height, mode: mode}
}

// Ready 模型是否可用
func (c *Classifier) Ready() bool {
	_, unavailable := c.scorer.(UnavailableScorer)
	return !unavailable
}

// Classify 对规范化后的图片执行推理
func (c *Classifier) Classify(ctx context.Context, encoded []byte) (*Prediction, error) {
	input, shape, err := c.Preprocess(encoded)
	if err != nil {
		return nil, err
	}

	scores, err := c.scorer.Score(ctx, input, shape)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, apperr.Wrap(apperr.InferenceError, "推理已取消", ctxErr)
		}
		return nil, apperr.Wrap(apperr.InferenceError, "推理失败", err)
	}

	return c.Interpret(scores)
}

// Preprocess 解码并缩放到模型输入尺寸，按 HWC 排列并归一化到 [0,1]
func (c *Classifier) Preprocess(encoded []byte) ([]float32, []int64, error) {
	img, err := imaging.Decode(bytes.NewReader(encoded))
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.InferenceError, "无法解析图片", err)
	}

	resized := upload.Flatten(imaging.Resize(img, c.width, c.height, imaging.Linear))

	input := make([]float32, c.height*c.width*3)
	i := 0
	for y := 0; y < c.height; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < c.width; x++ {
			p := row[x*4:]
			input[i] = float32(p[0]) / 255
			input[i+1] = float32(p[1]) / 255
			input[i+2] = float32(p[2]) / 255
			i += 3
		}
	}

	return input, []int64{1, int64(c.height), int64(c.width), 3}, nil
}

// Interpret 将两个原始分数换算为 Deepfake 概率与标签
func (c *Classifier) Interpret(scores []float32) (*Prediction, error) {
	if len(scores) != 2 {
		return nil, apperr.New(apperr.InferenceError, fmt.Sprintf("模型输出形状不符: 期望 2 个分数, 实际 %d", len(scores)))
	}
	sReal, sFake := float64(scores[0]), float64(scores[1])
	if math.IsNaN(sReal) || math.IsNaN(sFake) || math.IsInf(sReal, 0) || math.IsInf(sFake, 0) {
		return nil, apperr.New(apperr.InferenceError, "模型输出包含非法数值")
	}

	var p float64
	switch c.mode {
	case OutputSoftmax:
		m := math.Max(sReal, sFake)
		er, ef := math.Exp(sReal-m), math.Exp(sFake-m)
		p = ef / (er + ef)
	default:
		if sReal < 0 || sFake < 0 || sReal+sFake <= 0 {
			return nil, apperr.New(apperr.InferenceError, "模型输出不满足比例换算的前提")
		}
		p = sFake / (sReal + sFake)
	}
	p = math.Min(1, math.Max(0, p))

	label := LabelReal
	if p > 0.5 {
		label = LabelDeepfake
	}

	return &Prediction{
		Label:       label,
		Probability: p,
	}, nil
}

// Close 释放模型
func (c *Classifier) Close() error {
	return c.scorer.Close()
}

// UnavailableScorer 模型加载失败时的占位实现
type UnavailableScorer struct {
	Reason error
}

func (s UnavailableScorer) Score(context.Context, []float32, []int64) ([]float32, error) {
	if s.Reason != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, s.Reason)
	}
	return nil, ErrModelUnavailable
}

func (UnavailableScorer) Close() error { return nil }
