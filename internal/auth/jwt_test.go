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
	testIssuer = "hr-backend"
)

func TestIssueParseRoundTrip(t *testing.T) {
	token, err := Issue("emp-1", RoleEmployee, testIssuer, testKey, time.Minute)
	require.NoError(t, err)

	claims, err := Parse(token, testKey, testIssuer)
	require.NoError(t, err)
	assert.Equal(t, "emp-1", claims.Subject)
	assert.Equal(t, RoleEmployee, claims.Role)
}

func TestParseRejectsBadTokens(t *testing.T) {
	token, err := Issue("emp-1", RoleEmployee, testIssuer, testKey, time.Minute)
	require.NoError(t, err)

	_, err = Parse(token, "wrong-key", testIssuer)
	assert.Error(t, err)

	_, err = Parse(token, testKey, "other-issuer")
	assert.Error(t, err)

	expired, err := Issue("emp-1", RoleEmployee, testIssuer, testKey, -time.Minute)
	require.NoError(t, err)
	_, err = Parse(expired, testKey, testIssuer)
	assert.Error(t, err)
}

func setupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", Bearer(testKey, testIssuer), func(c *gin.Context) {
		claims, _ := FromContext(c)
		c.JSON(http.StatusOK, gin.H{"sub": claims.Subject, "token": TokenFromContext(c)})
	})
	r.GET("/admin", Bearer(testKey, testIssuer), RequireRole(RoleManager, RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func request(r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestBearerMiddleware(t *testing.T) {
	r := setupRouter()

	assert.Equal(t, http.StatusUnauthorized, request(r, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, request(r, "/me", "garbage").Code)

	token, err := Issue("emp-1", RoleEmployee, testIssuer, testKey, time.Minute)
	require.NoError(t, err)
	resp := request(r, "/me", token)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"sub":"emp-1"`)
}

func TestRequireRole(t *testing.T) {
	r := setupRouter()

	employee, err := Issue("emp-1", RoleEmployee, testIssuer, testKey, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, request(r, "/admin", employee).Code)

	manager, err := Issue("mgr-1", RoleManager, testIssuer, testKey, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, request(r, "/admin", manager).Code)
}
