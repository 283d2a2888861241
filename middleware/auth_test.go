package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"onlinelibrary_go/config"
	"onlinelibrary_go/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// setupAuthTest 准备数据库和一个已签发token的用户
func setupAuthTest(t *testing.T) (*models.User, string) {
	t.Helper()
	db, err := config.OpenDatabase(sqlite.Open(filepath.Join(t.TempDir(), "auth.db")))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := config.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	config.DB = db
	config.RedisClient = nil
	t.Cleanup(func() {
		_ = config.CloseDatabase()
		config.DB = nil
	})

	user := &models.User{
		Username:           "ada",
		FirstName:          "Ada",
		LastName:           "Lovelace",
		Email:              "ada@example.com",
		Password:           "hash",
		AuthorizationLevel: models.LevelBasic,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	token, err := config.GetJWTService().GenerateToken(user)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return user, token
}

func newAuthRouter() *gin.Engine {
	r := gin.New()
	whoami := func(c *gin.Context) {
		if user := CurrentUser(c); user != nil {
			c.String(http.StatusOK, user.Username)
			return
		}
		c.String(http.StatusOK, "anonymous")
	}
	r.GET("/private", AuthMiddleware(), whoami)
	r.GET("/public", OptionalAuth(), whoami)
	return r
}

func doGet(r http.Handler, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	user, token := setupAuthTest(t)
	r := newAuthRouter()

	t.Run("valid token", func(t *testing.T) {
		w := doGet(r, "/private", token)
		if w.Code != http.StatusOK || w.Body.String() != "ada" {
			t.Fatalf("expected 200 ada, got %d %s", w.Code, w.Body.String())
		}
	})

	t.Run("query token", func(t *testing.T) {
		w := doGet(r, "/private?token="+token, "")
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
	})

	t.Run("missing token", func(t *testing.T) {
		if w := doGet(r, "/private", ""); w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
	})

	t.Run("malformed token", func(t *testing.T) {
		if w := doGet(r, "/private", "not-a-jwt"); w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
	})

	t.Run("level changes apply immediately", func(t *testing.T) {
		if err := config.DB.Model(&models.User{}).Where("id = ?", user.ID).
			Update("authorization_level", models.LevelModerator).Error; err != nil {
			t.Fatalf("promote: %v", err)
		}
		var seen *models.User
		r := gin.New()
		r.GET("/", AuthMiddleware(), func(c *gin.Context) { seen = CurrentUser(c) })
		doGet(r, "/", token)
		if seen == nil || !seen.AuthorizationLevel.IsModerator() {
			t.Fatalf("expected current level from database, got %+v", seen)
		}
	})

	t.Run("deleted user", func(t *testing.T) {
		if err := config.DB.Where("id = ?", user.ID).Delete(&models.User{}).Error; err != nil {
			t.Fatalf("delete user: %v", err)
		}
		if w := doGet(r, "/private", token); w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
	})
}

func TestAuthMiddlewareRejectsRevokedToken(t *testing.T) {
	_, token := setupAuthTest(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	config.RedisClient = client
	t.Cleanup(func() {
		config.RedisClient = nil
		_ = client.Close()
	})
	r := newAuthRouter()

	if w := doGet(r, "/private", token); w.Code != http.StatusOK {
		t.Fatalf("expected 200 before revocation, got %d", w.Code)
	}
	claims, err := config.GetJWTService().ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if err := config.GetJWTService().Revoke(context.Background(), claims); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if w := doGet(r, "/private", token); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after revocation, got %d", w.Code)
	}
	if w := doGet(r, "/public", token); w.Body.String() != "anonymous" {
		t.Fatalf("revoked token must be treated as anonymous, got %s", w.Body.String())
	}
}

func TestOptionalAuth(t *testing.T) {
	_, token := setupAuthTest(t)
	r := newAuthRouter()

	if w := doGet(r, "/public", ""); w.Code != http.StatusOK || w.Body.String() != "anonymous" {
		t.Fatalf("expected anonymous, got %d %s", w.Code, w.Body.String())
	}
	if w := doGet(r, "/public", token); w.Body.String() != "ada" {
		t.Fatalf("expected ada, got %s", w.Body.String())
	}
	if w := doGet(r, "/public", "garbage"); w.Code != http.StatusOK || w.Body.String() != "anonymous" {
		t.Fatalf("invalid token must fall back to anonymous, got %d %s", w.Code, w.Body.String())
	}
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{"bearer header", "Bearer abc", "", "abc"},
		{"case insensitive scheme", "bearer abc", "", "abc"},
		{"wrong scheme", "Basic abc", "", ""},
		{"header wins over query", "Bearer abc", "xyz", "abc"},
		{"query fallback", "", "xyz", "xyz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/?token="+tt.query, nil)
			if tt.header != "" {
				c.Request.Header.Set("Authorization", tt.header)
			}
			if got := ExtractToken(c); got != tt.want {
				t.Fatalf("ExtractToken() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	config.RedisClient = client
	t.Cleanup(func() {
		config.RedisClient = nil
		_ = client.Close()
	})

	r := gin.New()
	r.POST("/login", RateLimit(2, time.Minute), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for i, want := range []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
		if w.Code != want {
			t.Fatalf("request %d: expected %d, got %d", i+1, want, w.Code)
		}
	}
}

func TestLoggerSetsRequestID(t *testing.T) {
	SetLogger(nil)
	r := gin.New()
	r.Use(Logger())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Fatalf("expected propagated request id, got %q", got)
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"http://app.example.com"}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://app.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://app.example.com" {
		t.Fatalf("expected allowed origin header, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unknown origin, got %d", w.Code)
	}
}

func TestCORSWildcard(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"*"}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://anywhere.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard origin, got %q", got)
	}
	if w.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Fatal("wildcard origins must not allow credentials")
	}
}
