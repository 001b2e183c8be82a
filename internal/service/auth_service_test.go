package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-attempt/internal/config"
)

func sign(t *testing.T, secret string, claims Claims, method jwt.SigningMethod) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestValidateToken(t *testing.T) {
	svc := NewAuthService(&config.Config{JWTSecret: "s3cret"})
	now := time.Now()
	valid := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		TokenType: TokenTypeStudent,
		UserID:    77,
	}

	claims, err := svc.ValidateToken(sign(t, "s3cret", valid, jwt.SigningMethodHS256))
	require.NoError(t, err)
	assert.Equal(t, int64(77), claims.UserID)
	assert.Equal(t, TokenTypeStudent, claims.TokenType)

	_, err = svc.ValidateToken(sign(t, "other", valid, jwt.SigningMethodHS256))
	assert.Error(t, err)

	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))
	_, err = svc.ValidateToken(sign(t, "s3cret", expired, jwt.SigningMethodHS256))
	assert.Error(t, err)

	anonymous := valid
	anonymous.UserID = 0
	_, err = svc.ValidateToken(sign(t, "s3cret", anonymous, jwt.SigningMethodHS256))
	assert.Error(t, err)
}
