package utils

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "defakezone"

// JWTClaims 访问令牌声明
// Subject 为用户ID，Version 需与用户当前的 TokenVersion 一致。
type JWTClaims struct {
	Version uint `json:"ver"`
	jwt.RegisteredClaims
}

// UserID 从 Subject 解析用户ID
func (c *JWTClaims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("无效的用户标识")
	}
	return uint(id), nil
}

// JWTManager 签发与校验访问令牌
type JWTManager struct {
	secretKey []byte
	method    jwt.SigningMethod
	ttl       time.Duration
}

// NewJWTManager 创建JWT管理器
func NewJWTManager(secretKey string, algorithm string, ttl time.Duration) *JWTManager {
	method := jwt.GetSigningMethod(algorithm)
	if method == nil {
		method = jwt.SigningMethodHS256
	}
	return &JWTManager{
		secretKey: []byte(secretKey),
		method:    method,
		ttl:       ttl,
	}
}

// GenerateToken 为用户签发令牌，version 变化后旧令牌全部失效
func (j *JWTManager) GenerateToken(userID, version uint) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		Version: version,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	return jwt.NewWithClaims(j.method, claims).SignedString(j.secretKey)
}

// ValidateToken 校验签名、签发方与有效期
func (j *JWTManager) ValidateToken(tokenString string) (*JWTClaims, error) {
	claims := &JWTClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return j.secretKey, nil
	},
		jwt.WithValidMethods([]string{j.method.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}

	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}
