// Package jwt JWT令牌解析单元测试
package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestManager 创建测试用的 JWT Manager
func setupTestManager() *Manager {
	return NewManager(&Config{
		Secret:           "test-secret-key-for-jwt-token-signing",
		AccessExpireTime: 15 * time.Minute,
		Issuer:           "test-issuer",
	})
}

func sign(t *testing.T, secret string, method jwt.SigningMethod, claims *Claims) string {
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestManager_RoundTrip(t *testing.T) {
	manager := setupTestManager()

	tests := []struct {
		name   string
		userID int64
		role   string
	}{
		{"访客", 12345, "USER"},
		{"经理", 200, "MANAGER"},
		{"管理员", 1, "ADMIN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, expiresAt, err := manager.GenerateAccessToken(tt.userID, tt.role)
			require.NoError(t, err)
			assert.Greater(t, expiresAt, time.Now().Unix())

			claims, err := manager.ParseToken(token)
			require.NoError(t, err)
			assert.Equal(t, tt.userID, claims.UserID)
			assert.Equal(t, tt.role, claims.Role)
			assert.Equal(t, "test-issuer", claims.Issuer)
		})
	}
}

func TestManager_ParseToken_Errors(t *testing.T) {
	manager := setupTestManager()
	secret := manager.config.Secret
	now := time.Now()
	valid := jwt.RegisteredClaims{
		Issuer:    "test-issuer",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}

	t.Run("格式错误", func(t *testing.T) {
		_, err := manager.ParseToken("not.a.token")
		assert.ErrorIs(t, err, ErrTokenMalformed)
	})

	t.Run("已过期", func(t *testing.T) {
		token := sign(t, secret, jwt.SigningMethodHS256, &Claims{
			UserID: 1, Role: "USER",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "test-issuer",
				ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
			},
		})
		_, err := manager.ParseToken(token)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("尚未生效", func(t *testing.T) {
		token := sign(t, secret, jwt.SigningMethodHS256, &Claims{
			UserID: 1, Role: "USER",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "test-issuer",
				NotBefore: jwt.NewNumericDate(now.Add(time.Hour)),
			},
		})
		_, err := manager.ParseToken(token)
		assert.ErrorIs(t, err, ErrTokenNotActive)
	})

	t.Run("签名密钥错误", func(t *testing.T) {
		token := sign(t, "another-secret", jwt.SigningMethodHS256, &Claims{UserID: 1, Role: "USER", RegisteredClaims: valid})
		_, err := manager.ParseToken(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("签名算法不符", func(t *testing.T) {
		token := sign(t, secret, jwt.SigningMethodHS512, &Claims{UserID: 1, Role: "USER", RegisteredClaims: valid})
		_, err := manager.ParseToken(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("签发方不符", func(t *testing.T) {
		other := valid
		other.Issuer = "someone-else"
		token := sign(t, secret, jwt.SigningMethodHS256, &Claims{UserID: 1, Role: "USER", RegisteredClaims: other})
		_, err := manager.ParseToken(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("缺少用户ID", func(t *testing.T) {
		token := sign(t, secret, jwt.SigningMethodHS256, &Claims{Role: "USER", RegisteredClaims: valid})
		_, err := manager.ParseToken(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("缺少角色", func(t *testing.T) {
		token := sign(t, secret, jwt.SigningMethodHS256, &Claims{UserID: 1, RegisteredClaims: valid})
		_, err := manager.ParseToken(token)
		assert.ErrorIs(t, err, ErrMissingRole)
	})
}
