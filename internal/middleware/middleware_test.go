package middleware_test

import (
	"encoding/json"
	"errors"
	"escrita_backend/internal/middleware"
	"escrita_backend/internal/model"
	"escrita_backend/internal/repository"
	"escrita_backend/internal/service"
	"escrita_backend/internal/testutil"
	"escrita_backend/internal/util"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type harness struct {
	router *gin.Engine
	db     *gorm.DB
	secret string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewTestDB(t)
	cfg := testutil.TestConfig(t)
	users := repository.NewUserRepository(db)
	auth := service.NewAuthService(users, service.NewMemoryTokenStore(), nil, cfg)

	r := gin.New()
	r.Use(middleware.ErrorHandler(false))
	protected := r.Group("/", middleware.AuthMiddleware(auth))
	protected.GET("/me", func(c *gin.Context) {
		util.Success(c, gin.H{"id": util.CurrentUserID(c)})
	})
	protected.GET("/staff", middleware.RoleMiddleware(users, model.Instructor), func(c *gin.Context) {
		util.Success(c, nil)
	})
	protected.GET("/admin", middleware.RoleMiddleware(users, model.Admin), func(c *gin.Context) {
		util.Success(c, nil)
	})

	return &harness{router: r, db: db, secret: cfg.JWT.Secret}
}

func (h *harness) token(t *testing.T, user *model.User) string {
	t.Helper()
	token, err := util.GenerateJWT(user, h.secret, time.Hour)
	require.NoError(t, err)
	return token
}

func (h *harness) get(path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body util.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "fail", body.Status)
	return body.Message
}

func TestAuthMiddleware(t *testing.T) {
	h := newHarness(t)
	user := testutil.CreateUser(t, h.db, "Ana", "ana@example.com", model.Student)

	w := h.get("/me", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Authentication token missing", errorMessage(t, w))

	w = h.get("/me", "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid token", errorMessage(t, w))

	expired, err := util.GenerateJWT(user, h.secret, -time.Minute)
	require.NoError(t, err)
	w = h.get("/me", expired)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Token expired", errorMessage(t, w))

	w = h.get("/me", h.token(t, user))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"code":200,"message":"success","data":{"id":1}}`, w.Body.String())

	// 查询参数中的令牌同样有效
	w = h.get("/me?token="+h.token(t, user), "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoleMiddleware(t *testing.T) {
	h := newHarness(t)
	db := h.db
	student := testutil.CreateUser(t, db, "Aluno", "aluno@example.com", model.Student)
	instructor := testutil.CreateUser(t, db, "Prof", "prof@example.com", model.Instructor)
	admin := testutil.CreateUser(t, db, "Admin", "admin@example.com", model.Admin)

	w := h.get("/staff", h.token(t, student))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Forbidden", errorMessage(t, w))

	assert.Equal(t, http.StatusOK, h.get("/staff", h.token(t, instructor)).Code)
	assert.Equal(t, http.StatusOK, h.get("/staff", h.token(t, admin)).Code)
	assert.Equal(t, http.StatusForbidden, h.get("/admin", h.token(t, instructor)).Code)
	assert.Equal(t, http.StatusOK, h.get("/admin", h.token(t, admin)).Code)

	// 角色变更立即生效，不依赖令牌内容
	require.NoError(t, db.Model(&model.User{}).Where("id = ?", student.ID).Update("role", model.Instructor).Error)
	assert.Equal(t, http.StatusOK, h.get("/staff", h.token(t, student)).Code)

	ghost := &model.User{BaseModel: model.BaseModel{ID: 999}, Email: "ghost@example.com"}
	w = h.get("/staff", h.token(t, ghost))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestErrorHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	for _, debug := range []bool{false, true} {
		r := gin.New()
		r.Use(middleware.ErrorHandler(debug))
		r.GET("/conflict", func(c *gin.Context) {
			util.Fail(c, util.NewConflictError("Submission has already been reviewed"))
		})
		r.GET("/validation", func(c *gin.Context) {
			util.Fail(c, util.NewValidationError("Validation failed", util.FieldError{Field: "score", Message: "is required"}))
		})
		r.GET("/boom", func(c *gin.Context) {
			util.Fail(c, errors.New("connection reset"))
		})

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/conflict", nil))
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.JSONEq(t, `{"status":"fail","message":"Submission has already been reviewed"}`, w.Body.String())

		w = httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/validation", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"status":"fail","message":"Validation failed","errors":[{"field":"score","message":"is required"}]}`, w.Body.String())

		w = httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		var body util.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "error", body.Status)
		if debug {
			assert.Contains(t, body.Message, "connection reset")
		} else {
			assert.Equal(t, "Internal server error", body.Message)
		}
	}
}
