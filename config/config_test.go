package config

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"onlinelibrary_go/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
)

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("LIB_TEST_STRING", "hello")
	t.Setenv("LIB_TEST_INT", "42")
	t.Setenv("LIB_TEST_BAD_INT", "forty")
	t.Setenv("LIB_TEST_BOOL", "true")
	t.Setenv("LIB_TEST_FLOAT", "2.5")
	t.Setenv("LIB_TEST_DURATION", "90s")
	t.Setenv("LIB_TEST_LIST", " a, b ,,c ")

	if got := GetEnv("LIB_TEST_STRING", "x"); got != "hello" {
		t.Errorf("GetEnv = %q", got)
	}
	if got := GetEnv("LIB_TEST_MISSING", "x"); got != "x" {
		t.Errorf("GetEnv default = %q", got)
	}
	if got := GetEnvInt("LIB_TEST_INT", 1); got != 42 {
		t.Errorf("GetEnvInt = %d", got)
	}
	if got := GetEnvInt("LIB_TEST_BAD_INT", 7); got != 7 {
		t.Errorf("GetEnvInt with bad value = %d, want default", got)
	}
	if got := GetEnvBool("LIB_TEST_BOOL", false); !got {
		t.Error("GetEnvBool = false")
	}
	if got := GetEnvFloat("LIB_TEST_FLOAT", 0); got != 2.5 {
		t.Errorf("GetEnvFloat = %v", got)
	}
	if got := GetEnvDuration("LIB_TEST_DURATION", time.Second); got != 90*time.Second {
		t.Errorf("GetEnvDuration = %v", got)
	}
	list := GetEnvList("LIB_TEST_LIST", nil)
	if len(list) != 3 || list[0] != "a" || list[1] != "b" || list[2] != "c" {
		t.Errorf("GetEnvList = %v", list)
	}
	if got := GetEnvList("LIB_TEST_MISSING", []string{"d"}); len(got) != 1 || got[0] != "d" {
		t.Errorf("GetEnvList default = %v", got)
	}
}

func TestLoadConfigFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "library.yaml")
	content := "lib_test_alpha: from-file\nlib_test_beta: from-file\nlib_test:\n  nested: 3\n"
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	// 已有的环境变量优先
	t.Setenv("LIB_TEST_BETA", "from-env")
	t.Cleanup(func() {
		os.Unsetenv("LIB_TEST_ALPHA")
		os.Unsetenv("LIB_TEST_NESTED")
	})

	if err := LoadConfigFile(file); err != nil {
		t.Fatalf("load config: %v", err)
	}
	if got := os.Getenv("LIB_TEST_ALPHA"); got != "from-file" {
		t.Errorf("LIB_TEST_ALPHA = %q", got)
	}
	if got := os.Getenv("LIB_TEST_BETA"); got != "from-env" {
		t.Errorf("LIB_TEST_BETA = %q, environment must win", got)
	}
	if got := GetEnvInt("LIB_TEST_NESTED", 0); got != 3 {
		t.Errorf("LIB_TEST_NESTED = %d", got)
	}

	if err := LoadConfigFile(""); err != nil {
		t.Errorf("empty path must be a no-op: %v", err)
	}
	if err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDialector(t *testing.T) {
	tests := []struct {
		driver string
		name   string
	}{
		{"mysql", "mysql"},
		{"postgres", "postgres"},
		{"sqlite", "sqlite"},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			t.Setenv("DB_DRIVER", tt.driver)
			d, err := GetDatabaseConfig().Dialector()
			if err != nil {
				t.Fatalf("dialector: %v", err)
			}
			if d.Name() != tt.name {
				t.Fatalf("expected %s dialector, got %s", tt.name, d.Name())
			}
		})
	}

	t.Setenv("DB_DRIVER", "oracle")
	if _, err := GetDatabaseConfig().Dialector(); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}

func TestPostgresDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_PASSWORD", "hunter22")
	cfg := GetDatabaseConfig()
	if cfg.Port != "5432" || cfg.User != "postgres" {
		t.Fatalf("unexpected postgres defaults: port=%s user=%s", cfg.Port, cfg.User)
	}
	if s := cfg.String(); strings.Contains(s, "hunter22") || !strings.Contains(s, "hu***") {
		t.Fatalf("password must be masked in %q", s)
	}
}

func TestMaskPassword(t *testing.T) {
	tests := map[string]string{"": "(empty)", "ab": "***", "secret": "se***"}
	for in, want := range tests {
		if got := maskPassword(in); got != want {
			t.Errorf("maskPassword(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestJWTRoundTrip(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	svc := NewJWTService()
	user := &models.User{ID: "user-1", Username: "ada", AuthorizationLevel: models.LevelPublisher}

	token, err := svc.GenerateToken(user)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != "user-1" || claims.Username != "ada" || claims.Level != models.LevelPublisher || claims.ID == "" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	second, err := svc.GenerateToken(user)
	if err != nil {
		t.Fatalf("generate second: %v", err)
	}
	if second == token {
		t.Fatal("tokens issued in the same second must differ")
	}

	t.Setenv("JWT_SECRET", "other-secret")
	if _, err := NewJWTService().ValidateToken(token); err == nil {
		t.Fatal("token signed with another secret must be rejected")
	}
	if _, err := svc.ValidateToken("garbage"); err == nil {
		t.Fatal("garbage token must be rejected")
	}
}

func TestRevocation(t *testing.T) {
	svc := NewJWTService()
	token, err := svc.GenerateToken(&models.User{ID: "user-1", Username: "ada"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	ctx := context.Background()

	// 未启用Redis时注销为空操作
	RedisClient = nil
	if err := svc.Revoke(ctx, claims); err != nil {
		t.Fatalf("revoke without redis: %v", err)
	}
	if revoked, _ := svc.IsRevoked(ctx, claims); revoked {
		t.Fatal("nothing can be revoked without redis")
	}

	mr := miniredis.RunT(t)
	RedisClient = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = RedisClient.Close()
		RedisClient = nil
	})
	if err := svc.Revoke(ctx, claims); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if revoked, err := svc.IsRevoked(ctx, claims); err != nil || !revoked {
		t.Fatalf("expected revoked, got %v %v", revoked, err)
	}
	if ttl := mr.TTL(RevocationKey(claims.ID)); ttl <= 0 || ttl > 24*7*time.Hour {
		t.Fatalf("unexpected revocation ttl %v", ttl)
	}
}

func TestHealthEndpoint(t *testing.T) {
	t.Setenv("GIN_MODE", "test")
	db, err := OpenDatabase(sqlite.Open(filepath.Join(t.TempDir(), "health.db")))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	DB = db
	RedisClient = nil
	t.Cleanup(func() {
		_ = CloseDatabase()
		DB = nil
	})

	r := SetupRouter()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["database"] != "connected" || body["redis"] != "not initialized" {
		t.Fatalf("unexpected health: %v", body)
	}
}
