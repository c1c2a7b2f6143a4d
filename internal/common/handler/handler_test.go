package handler

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/dumeirei/housing-visit-backend/internal/common/errors"
	"github.com/dumeirei/housing-visit-backend/internal/common/response"
	"github.com/dumeirei/housing-visit-backend/internal/middleware"
	"github.com/dumeirei/housing-visit-backend/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// 辅助函数：创建测试上下文
func createTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

// 辅助函数：创建带路径参数的测试上下文
func createTestContextWithParam(paramName, paramValue string) (*gin.Context, *httptest.ResponseRecorder) {
	c, w := createTestContext()
	c.Params = gin.Params{{Key: paramName, Value: paramValue}}
	return c, w
}

// 辅助函数：创建已登录的测试上下文
func createAuthenticatedContext(userID int64, role string) (*gin.Context, *httptest.ResponseRecorder) {
	c, w := createTestContext()
	c.Set(middleware.ContextKeyUserID, userID)
	c.Set(middleware.ContextKeyRole, role)
	return c, w
}

// 辅助函数：解析响应
func parseResponse(w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return resp
}

func TestHandleError(t *testing.T) {
	t.Run("无错误", func(t *testing.T) {
		c, w := createTestContext()
		assert.False(t, HandleError(c, nil))
		assert.Equal(t, 0, w.Body.Len())
	})

	t.Run("业务错误按类别映射", func(t *testing.T) {
		c, w := createTestContext()
		assert.True(t, HandleError(c, errors.ErrBookingExists))
		assert.Equal(t, http.StatusConflict, w.Code)
		resp := parseResponse(w)
		assert.Equal(t, errors.ErrBookingExists.Code, resp.Code)
		assert.Equal(t, string(errors.KindConflict), resp.Kind)
	})

	t.Run("普通错误视为内部错误", func(t *testing.T) {
		c, w := createTestContext()
		assert.True(t, HandleError(c, stderrors.New("connection reset")))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "connection reset")
	})
}

func TestMustSucceed(t *testing.T) {
	c, w := createTestContext()
	MustSucceed(c, nil, map[string]int{"count": 1})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, parseResponse(w).Code)

	c, w = createTestContext()
	MustSucceed(c, errors.ErrVisitNotFound, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMustSucceedPage(t *testing.T) {
	c, w := createTestContext()
	MustSucceedPage(c, nil, []int{1, 2}, 12, 2, 2)
	assert.Equal(t, http.StatusOK, w.Code)

	data, ok := parseResponse(w).Data.(map[string]interface{})
	assert.True(t, ok)
	assert.Equal(t, float64(12), data["total"])
	assert.Equal(t, float64(2), data["page"])
}

func TestRequireActor(t *testing.T) {
	t.Run("未登录", func(t *testing.T) {
		c, w := createTestContext()
		_, ok := RequireActor(c)
		assert.False(t, ok)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("已登录", func(t *testing.T) {
		c, _ := createAuthenticatedContext(7, models.RoleManager)
		actor, ok := RequireActor(c)
		assert.True(t, ok)
		assert.Equal(t, models.Actor{UserID: 7, Role: models.RoleManager}, actor)
	})
}

func TestParseID(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  int64
		ok    bool
	}{
		{"有效ID", "42", 42, true},
		{"非数字", "abc", 0, false},
		{"零", "0", 0, false},
		{"负数", "-3", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := createTestContextWithParam("id", tt.value)
			id, ok := ParseID(c, "预订")
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, id)
			if !ok {
				assert.Equal(t, http.StatusBadRequest, w.Code)
				assert.Contains(t, parseResponse(w).Message, "预订")
			}
		})
	}
}

func TestBindJSON(t *testing.T) {
	type req struct {
		VisitID int64 `json:"visit_id" binding:"required"`
	}

	c, _ := createTestContext()
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"visit_id": 3}`))
	c.Request.Header.Set("Content-Type", "application/json")
	var r req
	assert.True(t, BindJSON(c, &r))
	assert.Equal(t, int64(3), r.VisitID)

	c, w := createTestContext()
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	c.Request.Header.Set("Content-Type", "application/json")
	assert.False(t, BindJSON(c, &req{}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequireActorAndParseID(t *testing.T) {
	c, _ := createAuthenticatedContext(5, models.RoleUser)
	c.Params = gin.Params{{Key: "id", Value: "9"}}
	actor, id, ok := RequireActorAndParseID(c, "看房")
	assert.True(t, ok)
	assert.Equal(t, int64(5), actor.UserID)
	assert.Equal(t, int64(9), id)
}
