package visit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dumeirei/housing-visit-backend/internal/common/database"
	"github.com/dumeirei/housing-visit-backend/internal/common/response"
	"github.com/dumeirei/housing-visit-backend/internal/middleware"
	"github.com/dumeirei/housing-visit-backend/internal/models"
	"github.com/dumeirei/housing-visit-backend/internal/repository"
	"github.com/dumeirei/housing-visit-backend/internal/service/notify"
	visitService "github.com/dumeirei/housing-visit-backend/internal/service/visit"
	"github.com/dumeirei/housing-visit-backend/pkg/mqtt"
	"github.com/dumeirei/housing-visit-backend/pkg/sms"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	db       *gorm.DB
	router   *gin.Engine
	manager  *models.User
	employee *models.User
	visitor  *models.User
	property *models.Property
}

func createUser(t *testing.T, db *gorm.DB, name, role string, managerID *int64) *models.User {
	var n int64
	require.NoError(t, db.Model(&models.User{}).Count(&n).Error)
	phone := fmt.Sprintf("1370013%04d", n+1)
	u := &models.User{Name: name, Role: role, ManagerID: managerID, Phone: &phone}
	require.NoError(t, db.Create(u).Error)
	return u
}

// fakeAuth 用请求头模拟认证中间件
func fakeAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		var userID int64
		if _, err := fmt.Sscan(c.GetHeader("X-Test-User"), &userID); err == nil {
			c.Set(middleware.ContextKeyUserID, userID)
			c.Set(middleware.ContextKeyRole, c.GetHeader("X-Test-Role"))
		}
		c.Next()
	}
}

func setupEnv(t *testing.T) *testEnv {
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)

	env := &testEnv{db: db}
	env.manager = createUser(t, db, "王经理", models.RoleManager, nil)
	env.employee = createUser(t, db, "李四", models.RoleEmployee, &env.manager.ID)
	env.visitor = createUser(t, db, "张三", models.RoleUser, nil)
	owner := createUser(t, db, "房东", models.RolePropertyOwner, nil)

	env.property = &models.Property{Name: "阳光公寓", OwnerID: owner.ID, ManagerID: &env.manager.ID, Status: models.PropertyStatusAvailable}
	require.NoError(t, db.Create(env.property).Error)

	svc := visitService.NewVisitService(
		db,
		repository.NewVisitRepository(db),
		repository.NewPropertyRepository(db),
		repository.NewUserRepository(db),
		notify.NewNotifier(sms.NewMockSender(), &mqtt.MemoryPublisher{}, "housing/"),
		visitService.Options{BookingWindow: 7 * 24 * time.Hour},
	)

	h := NewHandler(svc)
	r := gin.New()
	r.Use(fakeAuth())
	visits := r.Group("/api/v1/visits")
	visits.POST("", h.CreateVisit)
	visits.GET("", h.ListVisits)
	visits.GET("/:id", h.GetVisit)
	visits.PATCH("/:id/status", h.UpdateStatus)
	visits.PATCH("/:id/assign", h.AssignEmployee)
	env.router = r
	return env
}

func (env *testEnv) do(t *testing.T, method, path string, user *models.User, body string) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if user != nil {
		req.Header.Set("X-Test-User", fmt.Sprint(user.ID))
		req.Header.Set("X-Test-Role", user.Role)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func (env *testEnv) createVisit(t *testing.T) int64 {
	w, resp := env.do(t, http.MethodPost, "/api/v1/visits", env.visitor,
		fmt.Sprintf(`{"property_id":%d,"feedback":"周末看房"}`, env.property.ID))
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]interface{})
	return int64(data["id"].(float64))
}

func TestHandler_CreateVisit(t *testing.T) {
	env := setupEnv(t)

	t.Run("未登录", func(t *testing.T) {
		w, _ := env.do(t, http.MethodPost, "/api/v1/visits", nil, `{"property_id":1,"feedback":"看房"}`)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("缺少参数", func(t *testing.T) {
		w, _ := env.do(t, http.MethodPost, "/api/v1/visits", env.visitor, `{"property_id":1}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("创建成功", func(t *testing.T) {
		id := env.createVisit(t)
		assert.Positive(t, id)
	})

	t.Run("重复申请", func(t *testing.T) {
		w, resp := env.do(t, http.MethodPost, "/api/v1/visits", env.visitor,
			fmt.Sprintf(`{"property_id":%d,"feedback":"再看一次"}`, env.property.ID))
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "CONFLICT", resp.Kind)
	})

	t.Run("房源不存在", func(t *testing.T) {
		w, _ := env.do(t, http.MethodPost, "/api/v1/visits", env.visitor, `{"property_id":9999,"feedback":"看房"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHandler_VisitFlow(t *testing.T) {
	env := setupEnv(t)
	id := env.createVisit(t)
	base := fmt.Sprintf("/api/v1/visits/%d", id)

	w, _ := env.do(t, http.MethodPatch, base+"/assign", env.manager,
		fmt.Sprintf(`{"employee_id":%d,"scheduled_at":"2030-03-02T10:00:00Z"}`, env.employee.ID))
	require.Equal(t, http.StatusOK, w.Code)

	w, resp := env.do(t, http.MethodPatch, base+"/status", env.employee, `{"status":"COMPLETED","feedback":"已带看"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.VisitStatusCompleted, resp.Data.(map[string]interface{})["status"])

	t.Run("已完成不可延期", func(t *testing.T) {
		w, resp := env.do(t, http.MethodPatch, base+"/status", env.manager, `{"status":"DELAYED","feedback":"改期"}`)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "INVALID_STATE", resp.Kind)
	})

	t.Run("详情包含分组反馈", func(t *testing.T) {
		w, resp := env.do(t, http.MethodGet, base, env.visitor, "")
		require.Equal(t, http.StatusOK, w.Code)
		data := resp.Data.(map[string]interface{})
		assert.Len(t, data["user_feedback"], 1)
		assert.Len(t, data["manager_feedback"], 1)
		assert.Len(t, data["employee_feedback"], 1)
	})

	t.Run("无效ID", func(t *testing.T) {
		w, _ := env.do(t, http.MethodGet, "/api/v1/visits/abc", env.visitor, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandler_ListVisits(t *testing.T) {
	env := setupEnv(t)
	env.createVisit(t)

	w, resp := env.do(t, http.MethodGet, "/api/v1/visits?page=1&page_size=10", env.visitor, "")
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(1), data["total"])
	assert.Equal(t, float64(10), data["page_size"])

	w, resp = env.do(t, http.MethodGet, "/api/v1/visits?status=COMPLETED", env.manager, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), resp.Data.(map[string]interface{})["total"])
}
