package controllers

import (
	"onlinelibrary_go/middleware"
	"onlinelibrary_go/models"
	"onlinelibrary_go/services"
	"onlinelibrary_go/utils"

	"github.com/gin-gonic/gin"
)

// AuthController 认证控制器
type AuthController struct {
	authService *services.AuthService
}

// NewAuthController 创建认证控制器实例
func NewAuthController() *AuthController {
	return &AuthController{
		authService: services.NewAuthService(),
	}
}

// Register 用户注册
// @Summary 用户注册
// @Description 创建新用户账号，初始等级为Basic
// @Tags auth
// @Accept json
// @Produce json
// @Param request body services.RegisterRequest true "注册信息"
// @Success 200 {object} utils.Response
// @Router /api/auth/register [post]
func (ac *AuthController) Register(c *gin.Context) {
	var req services.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	user, token, err := ac.authService.Register(&req, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessWithMessage(c, "Registration successful", sessionPayload(user, token))
}

// Login 用户登录
// @Summary 用户登录
// @Description 用户名密码登录获取JWT token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body services.LoginRequest true "登录信息"
// @Success 200 {object} utils.Response
// @Router /api/auth/login [post]
func (ac *AuthController) Login(c *gin.Context) {
	var req services.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	user, token, err := ac.authService.Login(&req, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessWithMessage(c, "Login successful", sessionPayload(user, token))
}

// RefreshToken 刷新token
// @Summary 刷新token
// @Tags auth
// @Produce json
// @Security Bearer
// @Success 200 {object} utils.Response
// @Router /api/auth/refresh [post]
func (ac *AuthController) RefreshToken(c *gin.Context) {
	token := middleware.ExtractToken(c)
	if token == "" {
		utils.Unauthorized(c, "Authorization header is required")
		return
	}

	newToken, err := ac.authService.RefreshToken(token)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.Success(c, gin.H{"token": newToken})
}

// Logout 用户登出
// @Summary 用户登出
// @Tags auth
// @Security Bearer
// @Router /api/auth/logout [post]
func (ac *AuthController) Logout(c *gin.Context) {
	if err := ac.authService.Logout(middleware.CurrentToken(c)); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "Logout successful", nil)
}

// Me 当前登录用户
func (ac *AuthController) Me(c *gin.Context) {
	user := middleware.CurrentUser(c)
	utils.Success(c, gin.H{
		"user":                user.ToPublic(),
		"email":               user.Email,
		"balance":             user.Balance,
		"authorization_level": user.AuthorizationLevel.String(),
	})
}

func sessionPayload(user *models.User, token string) gin.H {
	return gin.H{
		"token": token,
		"user": gin.H{
			"id":                  user.ID,
			"username":            user.Username,
			"email":               user.Email,
			"balance":             user.Balance,
			"authorization_level": user.AuthorizationLevel.String(),
		},
	}
}
