package upload

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"defakezone/internal/apperr"
	"defakezone/internal/storage"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int, alpha uint8) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 100, A: alpha})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: uint8(x), B: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}))
	return buf.Bytes()
}

type seqIDs struct{ n int }

func (s *seqIDs) New() string {
	s.n++
	return "id-" + string(rune('0'+s.n))
}

type failingStore struct{ storage.Store }

func (failingStore) Put(context.Context, string, io.Reader, int64, string) error {
	return errors.New("disk full")
}

func TestValidator_InvalidType(t *testing.T) {
	v := NewValidator(10<<20, logrus.New())
	for _, declared := range []string{"", "text/plain", "image/gif", "application/x-msdownload", "image/svg+xml"} {
		err := v.Validate(jpegBytes(t, 4, 4), declared, "a.jpg")
		assert.ErrorIs(t, err, apperr.InvalidType, declared)
	}
}

func TestValidator_AcceptsAllowedTypes(t *testing.T) {
	v := NewValidator(10<<20, logrus.New())
	assert.NoError(t, v.Validate(jpegBytes(t, 4, 4), "image/jpeg", "a.jpg"))
	assert.NoError(t, v.Validate(pngBytes(t, 4, 4, 255), "IMAGE/PNG", "a.png"))
	assert.NoError(t, v.Validate([]byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "image/webp; charset=binary", "a.webp"))
}

func TestAllowedType(t *testing.T) {
	for _, declared := range []string{"image/jpeg", "IMAGE/PNG", "image/webp; q=1", " image/jpeg "} {
		assert.True(t, AllowedType(declared), declared)
	}
	for _, declared := range []string{"", "text/plain", "image/gif", "image/jpeg2000", "application/octet-stream"} {
		assert.False(t, AllowedType(declared), declared)
	}
}

func TestValidator_TooLarge(t *testing.T) {
	v := NewValidator(1024, logrus.New())
	data := append([]byte{0xFF, 0xD8, 0xFF}, make([]byte, 1024)...)
	assert.ErrorIs(t, v.Validate(data, "image/jpeg", "big.jpg"), apperr.TooLarge)

	assert.NoError(t, v.Validate(data[:1024], "image/jpeg", "ok.jpg"))
}

func TestValidator_SuspectedMalware(t *testing.T) {
	v := NewValidator(10<<20, logrus.New())
	payloads := map[string][]byte{
		"exe":  append([]byte{0x4D, 0x5A, 0x90, 0x00}, make([]byte, 64)...),
		"elf":  append([]byte{0x7F, 'E', 'L', 'F'}, make([]byte, 64)...),
		"pdf":  []byte("%PDF-1.7\n..."),
		"zip":  append([]byte{0x50, 0x4B, 0x03, 0x04}, make([]byte, 64)...),
		"rar":  []byte("Rar!\x1A\x07\x00"),
		"7z":   []byte{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C, 0x00, 0x04},
		"bash": []byte("#!/bin/sh\nrm -rf /\n"),
	}
	for name, data := range payloads {
		for _, declared := range []string{"image/jpeg", "image/png", "image/webp"} {
			err := v.Validate(data, declared, "photo.jpg")
			assert.ErrorIs(t, err, apperr.SuspectedMalware, "%s as %s", name, declared)
		}
	}
}

func TestValidator_ExtensionMismatchIsLoggedOnly(t *testing.T) {
	logger, hook := test.NewNullLogger()
	v := NewValidator(10<<20, logger)

	err := v.Validate(pngBytes(t, 4, 4, 255), "image/jpeg", "photo.jpg")
	require.NoError(t, err)

	require.NotEmpty(t, hook.Entries)
	last := hook.LastEntry()
	assert.Equal(t, logrus.WarnLevel, last.Level)
	assert.Equal(t, "image/png", last.Data["detected_type"])
}

func TestNormalizer_ResizesAndFlattens(t *testing.T) {
	store, err := storage.NewFileSystemStore(t.TempDir())
	require.NoError(t, err)
	n := NewNormalizer(store, &seqIDs{}, 1024, 90, logrus.New())

	out, err := n.Normalize(context.Background(), pngBytes(t, 2048, 512, 0), "images")
	require.NoError(t, err)

	assert.Equal(t, "images/id-1.jpg", out.Key)
	assert.Equal(t, 1024, out.Width)
	assert.Equal(t, 256, out.Height)

	raw, err := os.ReadFile(filepath.Join(store.Root(), "images", "id-1.jpg"))
	require.NoError(t, err)
	assert.Equal(t, out.Data, raw)

	img, format, err := image.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)

	// 全透明像素合成到白色背景
	r, g, b, _ := img.At(10, 10).RGBA()
	assert.Greater(t, r>>8, uint32(240))
	assert.Greater(t, g>>8, uint32(240))
	assert.Greater(t, b>>8, uint32(240))
}

func TestNormalizer_DoesNotUpscale(t *testing.T) {
	store, err := storage.NewFileSystemStore(t.TempDir())
	require.NoError(t, err)
	n := NewNormalizer(store, nil, 1024, 90, logrus.New())

	out, err := n.Normalize(context.Background(), jpegBytes(t, 300, 200), "images")
	require.NoError(t, err)
	assert.Equal(t, 300, out.Width)
	assert.Equal(t, 200, out.Height)
	assert.Regexp(t, `^images/[0-9a-f-]{36}\.jpg$`, out.Key)
}

func TestNormalizer_UniqueNames(t *testing.T) {
	store, err := storage.NewFileSystemStore(t.TempDir())
	require.NoError(t, err)
	n := NewNormalizer(store, nil, 1024, 90, logrus.New())
	data := jpegBytes(t, 32, 32)

	a, err := n.Normalize(context.Background(), data, "images")
	require.NoError(t, err)
	b, err := n.Normalize(context.Background(), data, "images")
	require.NoError(t, err)
	assert.NotEqual(t, a.Key, b.Key)
}

func TestNormalizer_ProcessingError(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewFileSystemStore(dir)
	require.NoError(t, err)
	n := NewNormalizer(store, nil, 1024, 90, logrus.New())

	// 合法文件头但内容被截断
	data := jpegBytes(t, 64, 64)[:40]
	_, err = n.Normalize(context.Background(), data, "images")
	assert.ErrorIs(t, err, apperr.ProcessingError)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNormalizer_StorageError(t *testing.T) {
	n := NewNormalizer(failingStore{}, nil, 1024, 90, logrus.New())
	_, err := n.Normalize(context.Background(), jpegBytes(t, 16, 16), "images")
	assert.ErrorIs(t, err, apperr.StorageError)
}
