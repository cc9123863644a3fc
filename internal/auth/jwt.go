package auth

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "sudooom.im.werewolf/pkg/errors"
)

// TokenType Token 类型
type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
)

// Claims 与 web 服务签发的 access token 相同的声明
type Claims struct {
	UserID    int64     `json:"user_id"`
	DeviceID  string    `json:"device_id"`
	Platform  string    `json:"platform"`
	TokenType TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

// Identity 接入后的用户身份
type Identity struct {
	UserID   string
	DeviceID string
}

// Verifier 只校验不签发，身份由外部 web 服务颁发
type Verifier struct {
	secretKey []byte
	issuer    string
}

// NewVerifier 创建校验器，issuer 为空时不校验签发者
func NewVerifier(secretKey, issuer string) *Verifier {
	return &Verifier{
		secretKey: []byte(secretKey),
		issuer:    issuer,
	}
}

// Verify 校验 access token 并返回身份
func (v *Verifier) Verify(tokenString string) (Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secretKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, apperrors.ErrTokenExpired
		}
		return Identity{}, apperrors.ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.TokenType != AccessToken || claims.UserID <= 0 {
		return Identity{}, apperrors.ErrTokenInvalid
	}

	return Identity{
		UserID:   strconv.FormatInt(claims.UserID, 10),
		DeviceID: claims.DeviceID,
	}, nil
}

// Sign 签发 access token，供测试与本地调试使用
func (v *Verifier) Sign(userID int64, deviceID string, expire time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:    userID,
		DeviceID:  deviceID,
		Platform:  "web",
		TokenType: AccessToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expire)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    v.issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secretKey)
}

// ExtractToken 从 Authorization header 提取 token
func ExtractToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return parts[1]
}
