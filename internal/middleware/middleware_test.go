package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// roleRouter wires a single protected route with the given role guard,
// injecting the role the way AuthMiddleware would.
func roleRouter(guard gin.HandlerFunc, role string, setRole bool) *gin.Engine {
	r := gin.New()
	r.GET("/guarded",
		func(c *gin.Context) {
			if setRole {
				c.Set("userRole", role)
			}
		},
		guard,
		func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "in"})
		})
	return r
}

func doGet(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestRequireOrgAdmin(t *testing.T) {
	cases := []struct {
		role string
		want int
	}{
		{"owner", http.StatusOK},
		{"admin", http.StatusOK},
		{"platform_admin", http.StatusOK},
		{"member", http.StatusForbidden},
		{"", http.StatusForbidden},
	}
	for _, tc := range cases {
		w := doGet(roleRouter(RequireOrgAdmin(), tc.role, true), "/guarded")
		assert.Equal(t, tc.want, w.Code, "role %q", tc.role)
	}
}

func TestRequireOwner(t *testing.T) {
	assert.Equal(t, http.StatusOK, doGet(roleRouter(RequireOwner(), "owner", true), "/guarded").Code)
	assert.Equal(t, http.StatusOK, doGet(roleRouter(RequireOwner(), "platform_admin", true), "/guarded").Code)
	assert.Equal(t, http.StatusForbidden, doGet(roleRouter(RequireOwner(), "admin", true), "/guarded").Code)
}

func TestRequirePlatformAdmin(t *testing.T) {
	assert.Equal(t, http.StatusOK, doGet(roleRouter(RequirePlatformAdmin(), "platform_admin", true), "/guarded").Code)
	assert.Equal(t, http.StatusForbidden, doGet(roleRouter(RequirePlatformAdmin(), "owner", true), "/guarded").Code)
}

func TestRoleGuardsWithoutAuthMiddleware(t *testing.T) {
	// No role in the context at all: the guard, not the handler, answers.
	w := doGet(roleRouter(RequireOrgAdmin(), "", false), "/guarded")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	rl := NewRateLimiter(1, 3)

	r := gin.New()
	r.GET("/limited", rl.Handler(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	// The burst allows the first three; the fourth is refused.
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, doGet(r, "/limited").Code, "request %d", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, doGet(r, "/limited").Code)
}

func TestRateLimiterKeysPerUser(t *testing.T) {
	rl := NewRateLimiter(1, 1)

	r := gin.New()
	var nextUser int64
	r.GET("/limited",
		func(c *gin.Context) { c.Set("userID", nextUser) },
		rl.Handler(),
		func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "ok"})
		})

	// Each user gets their own bucket.
	nextUser = 1
	assert.Equal(t, http.StatusOK, doGet(r, "/limited").Code)
	assert.Equal(t, http.StatusTooManyRequests, doGet(r, "/limited").Code)

	nextUser = 2
	assert.Equal(t, http.StatusOK, doGet(r, "/limited").Code)
}

func TestCORSMiddlewareSetsHeadersAndAnswersPreflight(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware("http://localhost:5173"))
	r.GET("/anything", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodOptions, "/anything", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
