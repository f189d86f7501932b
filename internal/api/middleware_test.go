package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/gmbridge-project/gmbridge/internal/config"
	"github.com/gmbridge-project/gmbridge/internal/db"
	"github.com/gmbridge-project/gmbridge/internal/gm"
)

func testAuthConfig(t *testing.T, authDisabled bool) *config.Config {
	t.Helper()
	cfg, err := config.Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	app := cfg.GetApplicationData()
	app.Security.JWTSecret = "test-secret"
	app.Security.TokenTTLHours = 1
	app.Security.AuthDisabled = authDisabled
	cfg.SetApplicationData(app)
	return cfg
}

func TestIssueAndParseToken(t *testing.T) {
	cfg := testAuthConfig(t, false)
	auth := NewAuthMiddleware(nil, cfg)

	token, err := auth.IssueToken(&db.User{Username: "ops", Role: db.RoleOperate})
	if err != nil {
		t.Fatal(err)
	}

	claims, err := auth.parseToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != "ops" {
		t.Errorf("subject = %q", claims.Subject)
	}
	if claims.Role != db.RoleOperate {
		t.Errorf("role = %q", claims.Role)
	}
}

func TestParseTokenRejectsTampering(t *testing.T) {
	cfg := testAuthConfig(t, false)
	auth := NewAuthMiddleware(nil, cfg)

	token, err := auth.IssueToken(&db.User{Username: "ops", Role: db.RoleOperate})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := auth.parseToken(token + "x"); err == nil {
		t.Error("tampered token accepted")
	}
	if _, err := auth.parseToken("not-a-token"); err == nil {
		t.Error("garbage token accepted")
	}
}

func authTestRouter(auth *AuthMiddleware, permission string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	group := router.Group("/x")
	group.Use(auth.RequireAuth())
	if permission != "" {
		group.Use(auth.RequirePermission(permission))
	}
	group.GET("/probe", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"username": c.GetString("username"),
			"role":     c.GetString("role"),
		})
	})
	return router
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	auth := NewAuthMiddleware(nil, testAuthConfig(t, false))
	router := authTestRouter(auth, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/x/probe", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestRequireAuthAcceptsBearerToken(t *testing.T) {
	auth := NewAuthMiddleware(nil, testAuthConfig(t, false))
	token, err := auth.IssueToken(&db.User{Username: "ops", Role: db.RoleOperate})
	if err != nil {
		t.Fatal(err)
	}
	router := authTestRouter(auth, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/x/probe", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestAuthDisabledRunsAsLocalAdmin(t *testing.T) {
	auth := NewAuthMiddleware(nil, testAuthConfig(t, true))
	router := authTestRouter(auth, gm.PermAdmin)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/x/probe", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with auth disabled", w.Code)
	}
}

func TestRequirePermissionDeniesLowerRole(t *testing.T) {
	auth := NewAuthMiddleware(nil, testAuthConfig(t, false))
	token, err := auth.IssueToken(&db.User{Username: "watcher", Role: db.RoleView})
	if err != nil {
		t.Fatal(err)
	}
	router := authTestRouter(auth, gm.PermAdmin)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/x/probe", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"Bearer abc123", "abc123"},
		{"bearer abc123", "abc123"},
		{"Basic abc123", ""},
		{"Bearer", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := extractBearerToken(tc.header); got != tc.want {
			t.Errorf("extractBearerToken(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(NewRateLimiter(1).Middleware())
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	limited := false
	for i := 0; i < 10; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/x", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		router.ServeHTTP(w, req)
		if w.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Error("rate limiter never triggered")
	}
}
