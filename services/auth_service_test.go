package services

import (
	"testing"

	"onlinelibrary_go/models"
)

func registerRequest(username string) *RegisterRequest {
	return &RegisterRequest{
		Username:  username,
		Password:  "correct-horse",
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     username + "@example.com",
	}
}

func TestRegisterAndLogin(t *testing.T) {
	setupTestDB(t)
	setupTestRedis(t)
	as := NewAuthService()

	user, token, err := as.Register(registerRequest("ada"), "10.0.0.1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if token == "" {
		t.Fatal("expected token on register")
	}
	if user.AuthorizationLevel != models.LevelBasic || user.Balance != 0 {
		t.Fatalf("expected basic user with zero balance, got %+v", user)
	}
	if user.Password == "correct-horse" {
		t.Fatal("password must be stored hashed")
	}

	_, _, err = as.Register(registerRequest("ada"), "10.0.0.2")
	expectErr(t, err, ErrConflict)

	logged, token, err := as.Login(&LoginRequest{Username: "ada", Password: "correct-horse"}, "10.0.0.1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if logged.ID != user.ID || token == "" || logged.LastLogin == nil {
		t.Fatalf("unexpected login result: %+v", logged)
	}

	_, _, err = as.Login(&LoginRequest{Username: "ada", Password: "wrong-password"}, "10.0.0.1")
	expectErr(t, err, ErrUnauthorized)
	_, _, err = as.Login(&LoginRequest{Username: "nobody", Password: "whatever"}, "10.0.0.1")
	expectErr(t, err, ErrUnauthorized)
}

func TestLoginLockout(t *testing.T) {
	setupTestDB(t)
	setupTestRedis(t)
	t.Setenv("MAX_LOGIN_ATTEMPTS", "2")
	as := NewAuthService()

	if _, _, err := as.Register(registerRequest("ada"), "10.0.0.1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	for i := 0; i < 2; i++ {
		_, _, err := as.Login(&LoginRequest{Username: "ada", Password: "wrong-password"}, "10.0.0.1")
		expectErr(t, err, ErrUnauthorized)
	}

	// 超过失败次数后即使密码正确也被拒绝
	_, _, err := as.Login(&LoginRequest{Username: "ada", Password: "correct-horse"}, "10.0.0.1")
	expectErr(t, err, ErrForbidden)

	// 其他IP不受影响
	if _, _, err := as.Login(&LoginRequest{Username: "ada", Password: "correct-horse"}, "10.0.0.9"); err != nil {
		t.Fatalf("login from other ip: %v", err)
	}
}

func TestRegisterRateLimit(t *testing.T) {
	setupTestDB(t)
	setupTestRedis(t)
	t.Setenv("REGISTER_LIMIT_PER_HOUR", "1")
	as := NewAuthService()

	if _, _, err := as.Register(registerRequest("ada"), "10.0.0.1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, _, err := as.Register(registerRequest("grace"), "10.0.0.1")
	expectErr(t, err, ErrForbidden)
}

func TestLogoutAndRefresh(t *testing.T) {
	setupTestDB(t)
	setupTestRedis(t)
	as := NewAuthService()

	_, token, err := as.Register(registerRequest("ada"), "10.0.0.1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	refreshed, err := as.RefreshToken(token)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed == token {
		t.Fatal("expected a new token")
	}
	if !IsTokenRevoked(token) {
		t.Fatal("old token must be revoked after refresh")
	}
	_, err = as.RefreshToken(token)
	expectErr(t, err, ErrUnauthorized)

	if err := as.Logout(refreshed); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if !IsTokenRevoked(refreshed) {
		t.Fatal("token must be revoked after logout")
	}

	expectErr(t, as.Logout("not-a-token"), ErrUnauthorized)
}

func TestTokenNotRevokedWithoutRedis(t *testing.T) {
	setupTestDB(t)
	as := NewAuthService()

	_, token, err := as.Register(registerRequest("ada"), "10.0.0.1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := as.Logout(token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if IsTokenRevoked(token) {
		t.Fatal("without redis tokens cannot be revoked")
	}
}

func TestCreateModerator(t *testing.T) {
	setupTestDB(t)
	as := NewAuthService()

	mod, err := as.CreateModerator("root", "supersecret", "root@example.com")
	if err != nil {
		t.Fatalf("create moderator: %v", err)
	}
	if mod.AuthorizationLevel != models.LevelModerator {
		t.Fatalf("expected moderator, got %v", mod.AuthorizationLevel)
	}

	// 已存在的用户被提升为管理员
	createUser(t, "ada", models.LevelBasic, 0)
	promoted, err := as.CreateModerator("ada", "supersecret", "")
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if reload(t, promoted.ID).AuthorizationLevel != models.LevelModerator {
		t.Fatal("expected existing user promoted to moderator")
	}
	if _, _, err := as.Login(&LoginRequest{Username: "ada", Password: "supersecret"}, "127.0.0.1"); err != nil {
		t.Fatalf("login with reset password: %v", err)
	}

	_, err = as.CreateModerator("weak", "short", "")
	expectErr(t, err, ErrInvalidInput)
}
