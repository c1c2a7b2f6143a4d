package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dumeirei/housing-visit-backend/internal/common/config"
	"github.com/dumeirei/housing-visit-backend/internal/common/jwt"
	"github.com/dumeirei/housing-visit-backend/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newJWTManager() *jwt.Manager {
	return jwt.NewManager(&jwt.Config{
		Secret:           "middleware-test-secret",
		AccessExpireTime: time.Hour,
		Issuer:           "housing-auth",
	})
}

func perform(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	manager := newJWTManager()
	r := gin.New()
	r.GET("/me", Auth(manager), func(c *gin.Context) {
		actor, ok := GetActor(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, actor)
	})

	t.Run("缺少令牌", func(t *testing.T) {
		w := perform(r, http.MethodGet, "/me", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("无效令牌", func(t *testing.T) {
		w := perform(r, http.MethodGet, "/me", "garbage")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("有效令牌", func(t *testing.T) {
		token, _, err := manager.GenerateAccessToken(12, models.RoleManager)
		require.NoError(t, err)
		w := perform(r, http.MethodGet, "/me", token)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"UserID":12`)
		assert.Contains(t, w.Body.String(), models.RoleManager)
	})
}

func TestRequireRoles(t *testing.T) {
	manager := newJWTManager()
	r := gin.New()
	r.GET("/staff", Auth(manager), RequireRoles(models.RoleAdmin, models.RoleManager), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	admin, _, _ := manager.GenerateAccessToken(1, models.RoleAdmin)
	user, _, _ := manager.GenerateAccessToken(2, models.RoleUser)

	assert.Equal(t, http.StatusNoContent, perform(r, http.MethodGet, "/staff", admin).Code)
	assert.Equal(t, http.StatusForbidden, perform(r, http.MethodGet, "/staff", user).Code)
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	w := perform(r, http.MethodGet, "/", "")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, w.Header().Get("X-Request-ID"), w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-1")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-1", w.Body.String())
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Recovery(zap.NewNop()))
	r.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	w := perform(r, http.MethodGet, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL")
}

func TestUserRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	manager := newJWTManager()
	r := gin.New()
	r.POST("/bookings", Auth(manager), UserRateLimit(rdb, "booking", 2, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	alice, _, _ := manager.GenerateAccessToken(1, models.RoleUser)
	bob, _, _ := manager.GenerateAccessToken(2, models.RoleUser)

	assert.Equal(t, http.StatusCreated, perform(r, http.MethodPost, "/bookings", alice).Code)
	assert.Equal(t, http.StatusCreated, perform(r, http.MethodPost, "/bookings", alice).Code)

	w := perform(r, http.MethodPost, "/bookings", alice)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	// 按用户独立计数
	assert.Equal(t, http.StatusCreated, perform(r, http.MethodPost, "/bookings", bob).Code)

	// 窗口结束后恢复
	mr.FastForward(time.Minute + time.Second)
	assert.Equal(t, http.StatusCreated, perform(r, http.MethodPost, "/bookings", alice).Code)
}

func TestRateLimit_WithoutRedis(t *testing.T) {
	r := gin.New()
	r.GET("/", UserRateLimit(nil, "booking", 1, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/", "").Code)
	}
}

func corsRequest(r *gin.Engine, method, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCORS(t *testing.T) {
	t.Run("默认允许所有源", func(t *testing.T) {
		r := gin.New()
		r.Use(CORS(nil))
		r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := corsRequest(r, http.MethodOptions, "https://app.example.com")
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	})

	r := gin.New()
	r.Use(CORS(&config.CORSConfig{
		AllowOrigins: []string{"https://admin.housing.test", "https://*.housing.test/"},
		MaxAge:       600,
	}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	t.Run("精确匹配", func(t *testing.T) {
		w := corsRequest(r, http.MethodOptions, "https://admin.housing.test")
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "https://admin.housing.test", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))
		assert.Equal(t, "Origin", w.Header().Get("Vary"))
	})

	t.Run("子域通配", func(t *testing.T) {
		w := corsRequest(r, http.MethodGet, "https://owner.housing.test")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "https://owner.housing.test", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("通配不匹配裸域与其他协议", func(t *testing.T) {
		for _, origin := range []string{"https://.housing.test", "http://owner.housing.test", "https://evilhousing.test"} {
			w := corsRequest(r, http.MethodGet, origin)
			assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"), origin)
		}
	})

	t.Run("未允许的源预检被拒绝", func(t *testing.T) {
		w := corsRequest(r, http.MethodOptions, "https://other.example.com")
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("未允许的源普通请求照常处理", func(t *testing.T) {
		w := corsRequest(r, http.MethodGet, "https://other.example.com")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("没有 Origin 的请求", func(t *testing.T) {
		w := corsRequest(r, http.MethodGet, "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Vary"))
	})
}
