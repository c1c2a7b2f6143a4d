package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dumeirei/housing-visit-backend/internal/common/config"
)

var (
	corsAllowMethods = strings.Join([]string{
		http.MethodGet,
		http.MethodPost,
		http.MethodPatch,
		http.MethodOptions,
	}, ", ")
	corsAllowHeaders = strings.Join([]string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
		"X-Request-ID",
		"X-Requested-With",
	}, ", ")
	corsExposeHeaders = strings.Join([]string{
		"Content-Length",
		"Content-Type",
		"X-Request-ID",
		"X-Trace-ID",
		"X-RateLimit-Limit",
		"X-RateLimit-Remaining",
	}, ", ")
)

// originMatcher 按配置匹配请求源
type originMatcher struct {
	any      bool
	exact    map[string]struct{}
	wildcard [][2]string // {scheme://, .domain}
}

func newOriginMatcher(origins []string) *originMatcher {
	m := &originMatcher{exact: make(map[string]struct{})}
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch {
		case o == "":
		case o == "*":
			m.any = true
		case strings.Contains(o, "://*."):
			i := strings.Index(o, "://*.")
			m.wildcard = append(m.wildcard, [2]string{o[:i+3], o[i+4:]})
		default:
			m.exact[o] = struct{}{}
		}
	}
	return m
}

func (m *originMatcher) match(origin string) bool {
	if origin == "" {
		return false
	}
	if m.any {
		return true
	}
	if _, ok := m.exact[origin]; ok {
		return true
	}
	for _, w := range m.wildcard {
		if strings.HasPrefix(origin, w[0]) && strings.HasSuffix(origin, w[1]) &&
			len(origin) > len(w[0])+len(w[1]) {
			return true
		}
	}
	return false
}

// CORS 跨域中间件，允许的源来自 server.cors 配置
// 命中的源原样回写并允许携带凭证；预检请求来自未允许的源时返回 403
func CORS(cfg *config.CORSConfig) gin.HandlerFunc {
	if cfg == nil {
		cfg = &config.CORSConfig{AllowOrigins: []string{"*"}, MaxAge: 86400}
	}
	matcher := newOriginMatcher(cfg.AllowOrigins)
	maxAge := ""
	if cfg.MaxAge > 0 {
		maxAge = strconv.Itoa(cfg.MaxAge)
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		allowed := matcher.match(origin)

		if origin != "" {
			c.Header("Vary", "Origin")
		}
		if allowed {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", corsAllowMethods)
			c.Header("Access-Control-Allow-Headers", corsAllowHeaders)
			c.Header("Access-Control-Expose-Headers", corsExposeHeaders)
			c.Header("Access-Control-Allow-Credentials", "true")
			if maxAge != "" {
				c.Header("Access-Control-Max-Age", maxAge)
			}
		}

		if c.Request.Method == http.MethodOptions {
			if origin != "" && !allowed {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
