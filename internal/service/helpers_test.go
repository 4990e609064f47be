package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"defakezone/internal/config"
	"defakezone/internal/inference"
	"defakezone/internal/models"
	"defakezone/internal/repository"
	"defakezone/internal/storage"
	"defakezone/internal/upload"
	"defakezone/internal/utils"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubScorer struct {
	scores []float32
	err    error
	delay  time.Duration
	// during 在推理过程中执行，用于模拟并发操作
	during func()
}

func (s *stubScorer) Score(ctx context.Context, _ []float32, _ []int64) ([]float32, error) {
	if s.during != nil {
		s.during()
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.scores, s.err
}

func (s *stubScorer) Close() error { return nil }

type sentMail struct {
	to, subject, body string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return m.err
}

func (m *fakeMailer) last() sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

type testEnv struct {
	db     *gorm.DB
	store  *storage.FileSystemStore
	scorer *stubScorer
	logger *logrus.Logger
	hook   *test.Hook
	cfg    *config.Config
	mailer *fakeMailer

	users  *repository.UserRepository
	images *repository.ImageRepository
	codes  *repository.VerificationCodeRepository

	detection *DetectionService
	auth      *AuthService
	account   *AccountService
	admin     *AdminService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	db, err := models.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	store, err := storage.NewFileSystemStore(filepath.Join(dir, "uploads"))
	require.NoError(t, err)

	logger, hook := test.NewNullLogger()
	cfg := &config.Config{
		JWT:   config.JWTConfig{SecretKey: "test-secret", Algorithm: "HS256", ExpireMinutes: 60},
		Admin: config.AdminConfig{Username: "admin", Email: "admin@example.com", Password: "admin123"},
		Upload: config.UploadConfig{
			MaxBytes:           1 << 20,
			MaxDimension:       64,
			AvatarMaxDimension: 32,
			JPEGQuality:        90,
		},
		Auth: config.AuthConfig{CodeTTLMinutes: 15, TOTPIssuer: "DefakeZone"},
	}

	env := &testEnv{
		db:     db,
		store:  store,
		scorer: &stubScorer{scores: []float32{0.3, 0.7}},
		logger: logger,
		hook:   hook,
		cfg:    cfg,
		mailer: &fakeMailer{},
		users:  repository.NewUserRepository(db),
		images: repository.NewImageRepository(db),
		codes:  repository.NewVerificationCodeRepository(db),
	}

	validator := upload.NewValidator(cfg.Upload.MaxBytes, logger)
	classifier := inference.NewClassifier(env.scorer, 8, 8, inference.OutputRatio)
	jwtManager := utils.NewJWTManager(cfg.JWT.SecretKey, cfg.JWT.Algorithm, cfg.JWT.GetExpireDuration())

	env.detection = NewDetectionService(
		env.images,
		validator,
		upload.NewNormalizer(store, nil, cfg.Upload.MaxDimension, cfg.Upload.JPEGQuality, logger),
		classifier,
		store,
		logger,
	)
	env.auth = NewAuthService(env.users, env.codes, jwtManager, env.mailer, cfg, logger)
	env.account = NewAccountService(
		env.users,
		validator,
		upload.NewNormalizer(store, nil, cfg.Upload.AvatarMaxDimension, cfg.Upload.JPEGQuality, logger),
		store,
		cfg,
		logger,
	)
	env.admin = NewAdminService(env.users, store, logger)
	return env
}

func (e *testEnv) createUser(t *testing.T, name, password string) *models.User {
	t.Helper()
	hash, err := utils.HashPassword(password)
	require.NoError(t, err)
	user := &models.User{Username: name, Email: name + "@example.com", PasswordHash: hash, IsActive: true}
	require.NoError(t, e.users.Create(context.Background(), user))
	return user
}

// countFiles 统计存储目录下的文件数
func (e *testEnv) countFiles(t *testing.T) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(e.store.Root(), func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	require.NoError(t, err)
	return n
}

func (e *testEnv) countRows(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&models.StoredImage{}).Count(&n).Error)
	return n
}

func pngImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 3), G: uint8(y * 5), B: 120, A: 200})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func pngUpload(t *testing.T) UploadRequest {
	return UploadRequest{Data: pngImage(t, 120, 80), ContentType: "image/png", Filename: "photo.png"}
}
