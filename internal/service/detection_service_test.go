package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"defakezone/internal/apperr"
	"defakezone/internal/inference"
	"defakezone/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect_Success(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice", "password")

	res, err := env.detection.Detect(ctx, alice.ID, pngUpload(t))
	require.NoError(t, err)

	assert.NotZero(t, res.Image.ID)
	assert.Equal(t, alice.ID, res.Image.UserID)
	assert.Equal(t, inference.LabelDeepfake, res.Image.Label)
	assert.InDelta(t, 0.7, res.Image.Probability, 1e-6)
	assert.True(t, strings.HasPrefix(res.Image.FilePath, ImagePrefix+"/"))
	assert.True(t, strings.HasSuffix(res.Image.FilePath, ".jpg"))
	assert.NotContains(t, res.Image.FilePath, "photo")

	exists, err := env.store.Exists(ctx, res.Image.FilePath)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, 1, env.countFiles(t))
	assert.EqualValues(t, 1, env.countRows(t))
}

func TestDetect_RejectsBeforeAnyWrite(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice", "password")

	exe := append([]byte{0x4D, 0x5A, 0x90, 0x00}, make([]byte, 512)...)
	cases := []struct {
		name string
		req  UploadRequest
		kind apperr.Kind
	}{
		{"pdf declared", UploadRequest{Data: pngImage(t, 8, 8), ContentType: "application/pdf", Filename: "a.pdf"}, apperr.InvalidType},
		{"gif declared", UploadRequest{Data: pngImage(t, 8, 8), ContentType: "image/gif", Filename: "a.gif"}, apperr.InvalidType},
		{"too large", UploadRequest{Data: make([]byte, env.cfg.Upload.MaxBytes+1), ContentType: "image/jpeg", Filename: "a.jpg"}, apperr.TooLarge},
		{"renamed exe", UploadRequest{Data: exe, ContentType: "image/jpeg", Filename: "cat.jpg"}, apperr.SuspectedMalware},
		{"zip", UploadRequest{Data: append([]byte("PK\x03\x04"), make([]byte, 64)...), ContentType: "image/png", Filename: "a.png"}, apperr.SuspectedMalware},
		{"not an image", UploadRequest{Data: []byte(strings.Repeat("hello ", 20)), ContentType: "image/png", Filename: "a.png"}, apperr.ProcessingError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.detection.Detect(context.Background(), alice.ID, tc.req)
			assert.ErrorIs(t, err, tc.kind)
			assert.Equal(t, 0, env.countFiles(t))
			assert.EqualValues(t, 0, env.countRows(t))
		})
	}
}

func TestDetect_InferenceFailureRemovesFile(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice", "password")
	env.scorer.err = errors.New("session crashed")

	_, err := env.detection.Detect(context.Background(), alice.ID, pngUpload(t))
	assert.ErrorIs(t, err, apperr.InferenceError)
	assert.Equal(t, 0, env.countFiles(t))
	assert.EqualValues(t, 0, env.countRows(t))
}

func TestDetect_InvalidScoresRemovesFile(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice", "password")
	env.scorer.scores = []float32{-1, 0.5}

	_, err := env.detection.Detect(context.Background(), alice.ID, pngUpload(t))
	assert.ErrorIs(t, err, apperr.InferenceError)
	assert.Equal(t, 0, env.countFiles(t))
}

func TestDetect_PersistenceFailureRemovesFile(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice", "password")
	require.NoError(t, env.db.Migrator().DropTable(&models.StoredImage{}))

	_, err := env.detection.Detect(context.Background(), alice.ID, pngUpload(t))
	assert.ErrorIs(t, err, apperr.PersistenceError)
	assert.Equal(t, 0, env.countFiles(t))
}

func TestDetect_UserDeletedDuringInferenceRemovesFile(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice", "password")
	env.scorer.during = func() {
		_, err := env.users.Delete(context.Background(), alice.ID)
		require.NoError(t, err)
	}

	_, err := env.detection.Detect(context.Background(), alice.ID, pngUpload(t))
	assert.ErrorIs(t, err, apperr.PersistenceError)
	assert.Equal(t, 0, env.countFiles(t))
	assert.EqualValues(t, 0, env.countRows(t))
}

func TestDetect_CancelledDuringInferenceRemovesFile(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice", "password")
	env.scorer.delay = 5 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err := env.detection.Detect(ctx, alice.ID, pngUpload(t))
	assert.ErrorIs(t, err, apperr.InferenceError)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, env.countFiles(t))
	assert.EqualValues(t, 0, env.countRows(t))

	var cleaned bool
	for _, e := range env.hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "已清理未提交的文件" {
			cleaned = true
		}
	}
	assert.True(t, cleaned)
}

func TestDetect_SameBytesTwiceCreatesTwoRows(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice", "password")
	req := pngUpload(t)

	first, err := env.detection.Detect(context.Background(), alice.ID, req)
	require.NoError(t, err)
	second, err := env.detection.Detect(context.Background(), alice.ID, req)
	require.NoError(t, err)

	assert.NotEqual(t, first.Image.ID, second.Image.ID)
	assert.NotEqual(t, first.Image.FilePath, second.Image.FilePath)
	assert.Equal(t, 2, env.countFiles(t))
	assert.EqualValues(t, 2, env.countRows(t))
}

func TestDetect_ConcurrentUploads(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice", "password")
	req := pngUpload(t)

	const n = 8
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := env.detection.Detect(context.Background(), alice.ID, req)
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		assert.NoError(t, <-errs)
	}
	assert.Equal(t, n, env.countFiles(t))
	assert.EqualValues(t, n, env.countRows(t))
}

func TestList_Pagination(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice", "password")
	bob := env.createUser(t, "bob", "password")

	for i := 0; i < 3; i++ {
		_, err := env.detection.Detect(ctx, alice.ID, pngUpload(t))
		require.NoError(t, err)
	}
	_, err := env.detection.Detect(ctx, bob.ID, pngUpload(t))
	require.NoError(t, err)

	images, total, err := env.detection.List(ctx, alice.ID, 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, images, 2)

	images, _, err = env.detection.List(ctx, alice.ID, 2, 2)
	require.NoError(t, err)
	assert.Len(t, images, 1)
	for _, img := range images {
		assert.Equal(t, alice.ID, img.UserID)
	}
}

func TestGetAndOpen_OwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice", "password")
	bob := env.createUser(t, "bob", "password")

	res, err := env.detection.Detect(ctx, alice.ID, pngUpload(t))
	require.NoError(t, err)

	rc, img, err := env.detection.Open(ctx, alice.ID, res.Image.ID)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, res.Image.ID, img.ID)
	assert.Equal(t, []byte{0xFF, 0xD8}, data[:2])

	_, err = env.detection.Get(ctx, bob.ID, res.Image.ID)
	assert.ErrorIs(t, err, apperr.Forbidden)
	_, _, err = env.detection.Open(ctx, bob.ID, res.Image.ID)
	assert.ErrorIs(t, err, apperr.Forbidden)
	_, err = env.detection.Get(ctx, alice.ID, 9999)
	assert.ErrorIs(t, err, apperr.NotFound)
}

func TestDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice", "password")
	bob := env.createUser(t, "bob", "password")

	res, err := env.detection.Detect(ctx, alice.ID, pngUpload(t))
	require.NoError(t, err)

	assert.ErrorIs(t, env.detection.Delete(ctx, bob.ID, res.Image.ID), apperr.Forbidden)
	assert.ErrorIs(t, env.detection.Delete(ctx, alice.ID, 9999), apperr.NotFound)
	assert.Equal(t, 1, env.countFiles(t))

	require.NoError(t, env.detection.Delete(ctx, alice.ID, res.Image.ID))
	assert.Equal(t, 0, env.countFiles(t))
	assert.EqualValues(t, 0, env.countRows(t))

	assert.ErrorIs(t, env.detection.Delete(ctx, alice.ID, res.Image.ID), apperr.NotFound)
}

func TestDelete_MissingFileStillDeletesRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice", "password")

	res, err := env.detection.Detect(ctx, alice.ID, pngUpload(t))
	require.NoError(t, err)
	require.NoError(t, env.store.Delete(ctx, res.Image.FilePath))

	require.NoError(t, env.detection.Delete(ctx, alice.ID, res.Image.ID))
	assert.EqualValues(t, 0, env.countRows(t))
}
