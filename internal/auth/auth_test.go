package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey    = "test-signing-key"
	testIssuer = "classsync"
)

func TestIssueAndParse(t *testing.T) {
	token, exp, err := Issue("stu-1", RoleStudent, testIssuer, testKey, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)

	claims, err := Parse(token, testKey, testIssuer)
	require.NoError(t, err)
	assert.Equal(t, "stu-1", claims.Subject)
	assert.Equal(t, RoleStudent, claims.Role)

	_, err = Parse(token, "other-key", testIssuer)
	assert.Error(t, err)
	_, err = Parse(token, testKey, "someone-else")
	assert.Error(t, err)

	expired, _, err := Issue("stu-1", RoleStudent, testIssuer, testKey, -time.Minute)
	require.NoError(t, err)
	_, err = Parse(expired, testKey, testIssuer)
	assert.Error(t, err)

	bad, _, err := Issue("stu-1", Role("admin"), testIssuer, testKey, time.Hour)
	require.NoError(t, err)
	_, err = Parse(bad, testKey, testIssuer)
	assert.Error(t, err)
}

func TestMiddlewareAndRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/teacher", Middleware(testKey, testIssuer), RequireRole(RoleTeacher), func(c *gin.Context) {
		claims, _ := FromContext(c)
		c.String(http.StatusOK, claims.Subject)
	})

	do := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/teacher", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, do("").Code)
	assert.Equal(t, http.StatusUnauthorized, do("Bearer garbage").Code)

	student, _, err := Issue("stu-1", RoleStudent, testIssuer, testKey, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, do("Bearer "+student).Code)

	teacher, _, err := Issue("t-1", RoleTeacher, testIssuer, testKey, time.Hour)
	require.NoError(t, err)
	w := do("Bearer " + teacher)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "t-1", w.Body.String())
}
