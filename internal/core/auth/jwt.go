package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken 所有解码失败都归到这一类（空串、格式错、签名错、过期、签发方不符）
var ErrInvalidToken = errors.New("invalid token")

// TokenCodec 签发 + 解码；签名方案可替换
type TokenCodec interface {
	Issue(ownerID int64) (string, error)
	Decode(token string) (int64, error)
}

type Claims struct {
	UID int64 `json:"uid"`
	jwt.RegisteredClaims
}

type JWTer struct {
	Secret []byte
	Issuer string
	TTL    time.Duration

	now func() time.Time
}

var _ TokenCodec = (*JWTer)(nil)

func NewJWTer(secret, issuer string, ttl time.Duration) *JWTer {
	return &JWTer{Secret: []byte(secret), Issuer: issuer, TTL: ttl}
}

func (j *JWTer) clock() time.Time {
	if j.now != nil {
		return j.now()
	}
	return time.Now()
}

func (j *JWTer) Issue(ownerID int64) (string, error) {
	now := j.clock()
	claims := Claims{
		UID: ownerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.TTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(j.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

func (j *JWTer) Decode(tokenStr string) (int64, error) {
	if strings.TrimSpace(tokenStr) == "" {
		return 0, ErrInvalidToken
	}
	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected alg %v", token.Header["alg"])
		}
		return j.Secret, nil
	},
		jwt.WithIssuer(j.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(60*time.Second),
		jwt.WithTimeFunc(j.clock),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c, ok := t.Claims.(*Claims); ok && t.Valid {
		return c.UID, nil
	}
	return 0, ErrInvalidToken
}
