package util

import (
	"errors"
	"escrita_backend/internal/model"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateCourseProgress(t *testing.T) {
	tests := []struct {
		completed, total, want int
	}{
		{0, 0, 0},
		{0, 4, 0},
		{1, 3, 33},
		{2, 3, 67},
		{3, 3, 100},
		{5, 3, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CalculateCourseProgress(tt.completed, tt.total), "%d/%d", tt.completed, tt.total)
	}
}

func TestRoundTo(t *testing.T) {
	assert.Equal(t, 766.7, RoundTo(2300.0/3, 1))
	assert.Equal(t, 750.0, RoundTo(750, 1))
}

func TestJWTRoundTrip(t *testing.T) {
	user := &model.User{BaseModel: model.BaseModel{ID: 7}, Email: "ana@example.com"}

	token, err := GenerateJWT(user, "secret", time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "ana@example.com", claims.Email)
	assert.NotEmpty(t, claims.ID)

	_, err = ParseJWT(token, "other")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	expired, err := GenerateJWT(user, "secret", -time.Second)
	require.NoError(t, err)
	_, err = ParseJWT(expired, "secret")
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestAppErrorKinds(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, NewValidationError("x").Status())
	assert.Equal(t, http.StatusUnauthorized, NewUnauthorizedError("x").Status())
	assert.Equal(t, http.StatusForbidden, NewForbiddenError("x").Status())
	assert.Equal(t, http.StatusNotFound, NotFoundf("Course %d not found", 3).Status())
	assert.Equal(t, http.StatusConflict, NewConflictError("x").Status())
	assert.Equal(t, http.StatusInternalServerError, NewInternalError("x", nil).Status())

	cause := errors.New("disk full")
	wrapped := fmt.Errorf("save: %w", NewInternalError("could not save", cause))
	appErr, ok := AsAppError(wrapped)
	require.True(t, ok)
	assert.ErrorIs(t, appErr, cause)
	assert.True(t, IsKind(wrapped, KindInternal))
	assert.False(t, IsKind(cause, KindInternal))
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 20, ClampLimit(0, 20, 100))
	assert.Equal(t, 20, ClampLimit(-5, 20, 100))
	assert.Equal(t, 50, ClampLimit(50, 20, 100))
	assert.Equal(t, 100, ClampLimit(500, 20, 100))
}

func TestParamIDAndQueryInt(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/?limit=15&bad=x", nil)
	c.Params = gin.Params{{Key: "id", Value: "42"}, {Key: "neg", Value: "-1"}}

	id, err := ParamID(c, "id")
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)

	_, err = ParamID(c, "neg")
	assert.True(t, IsKind(err, KindValidation))

	assert.Equal(t, 15, QueryInt(c, "limit", 5))
	assert.Equal(t, 5, QueryInt(c, "bad", 5))
	assert.Equal(t, 5, QueryInt(c, "missing", 5))
}

func TestErrorResponseStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	Error(c, http.StatusNotFound, "Course 1 not found")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"status":"fail","message":"Course 1 not found"}`, w.Body.String())

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	Error(c, http.StatusInternalServerError, "Internal server error")
	assert.JSONEq(t, `{"status":"error","message":"Internal server error"}`, w.Body.String())
}

func TestParseProbeOutput(t *testing.T) {
	out := `{"streams":[{"codec_type":"audio"},{"codec_type":"video","width":1280,"height":720}],"format":{"duration":"93.480000"}}`
	info, err := parseProbeOutput(out)
	require.NoError(t, err)
	assert.Equal(t, 1280, info.Width)
	assert.Equal(t, 720, info.Height)
	assert.InDelta(t, 93.48, info.Duration, 0.001)

	_, err = parseProbeOutput("not json")
	assert.Error(t, err)
}
