package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taskboard/internal/auth"
	"taskboard/internal/models"
	"taskboard/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newTokens() *auth.Manager {
	return auth.NewManager("test-secret", "taskboard", "taskboard-clients", time.Hour)
}

func TestJWTAuth_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := newTokens()
	r := gin.New()
	r.Use(JWTAuth(tokens))
	r.GET("/protected", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(KeyUserID)) })

	token, err := tokens.GenerateToken("user-1", "alice")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "user-1", w.Body.String())
}

func TestJWTAuth_QueryToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := newTokens()
	r := gin.New()
	r.Use(JWTAuth(tokens))
	r.GET("/ws", func(c *gin.Context) { c.Status(http.StatusOK) })

	token, err := tokens.GenerateToken("user-1", "alice")
	require.NoError(t, err)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestJWTAuth_Rejects(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(JWTAuth(newTokens()))
	r.GET("/protected", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, header := range []string{"", "Bearer nope", "Basic abc"} {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusUnauthorized, w.Code, header)
		require.Contains(t, w.Body.String(), `"code":"unauthorized"`)
	}
}

func TestWorkspaceAccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db, err := testutil.NewInMemoryDB()
	require.NoError(t, err)
	require.NoError(t, db.Create(&models.Membership{WorkspaceID: "ws-1", UserID: "viewer", Role: models.RoleViewer}).Error)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(KeyUserID, c.GetHeader("X-User"))
		c.Next()
	})
	g := r.Group("/w/:ws", WorkspaceAccess(db))
	g.GET("", func(c *gin.Context) { c.String(http.StatusOK, string(RoleOf(c))) })
	g.POST("", RequireEditor(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	g.DELETE("", RequireOwner(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	do := func(method, path, user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("X-User", user)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := do(http.MethodGet, "/w/ws-1", "viewer")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "viewer", w.Body.String())

	require.Equal(t, http.StatusForbidden, do(http.MethodPost, "/w/ws-1", "viewer").Code)
	require.Equal(t, http.StatusForbidden, do(http.MethodGet, "/w/ws-1", "stranger").Code)

	// first member of an empty workspace owns it
	w = do(http.MethodGet, "/w/fresh", "alice")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "owner", w.Body.String())
	require.Equal(t, http.StatusNoContent, do(http.MethodPost, "/w/fresh", "alice").Code)
	require.Equal(t, http.StatusNoContent, do(http.MethodDelete, "/w/fresh", "alice").Code)
	require.Equal(t, http.StatusForbidden, do(http.MethodGet, "/w/fresh", "bob").Code)
}
