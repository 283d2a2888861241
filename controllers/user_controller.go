package controllers

import (
	"onlinelibrary_go/middleware"
	"onlinelibrary_go/services"
	"onlinelibrary_go/utils"
	"onlinelibrary_go/websocket"

	"github.com/gin-gonic/gin"
)

// UserController 用户控制器
type UserController struct {
	userService           *services.UserService
	bookService           *services.BookService
	friendService         *services.FriendService
	recommendationService *services.RecommendationService
	publisherService      *services.PublisherService
}

// NewUserController 创建用户控制器实例
func NewUserController() *UserController {
	return &UserController{
		userService:           services.NewUserService(),
		bookService:           services.NewBookService(),
		friendService:         services.NewFriendService(),
		recommendationService: services.NewRecommendationService(),
		publisherService:      services.NewPublisherService(),
	}
}

// GetUserProfile 获取用户主页
// @Summary 获取用户主页
// @Description 匿名可访问；本人和管理员能看到更多信息
// @Tags users
// @Produce json
// @Param username path string true "用户名"
// @Success 200 {object} utils.Response
// @Router /api/users/{username} [get]
func (uc *UserController) GetUserProfile(c *gin.Context) {
	profile, err := uc.userService.GetProfile(c.Request.Context(), middleware.CurrentUser(c), c.Param("username"))
	if err != nil {
		respondError(c, err)
		return
	}
	profile.Online = websocket.DefaultHub().IsOnline(profile.User.ID)
	utils.Success(c, profile)
}

// UpdateUserProfile 更新本人资料
// @Summary 更新用户资料
// @Tags users
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body services.UpdateProfileRequest true "资料"
// @Router /api/users/me [put]
func (uc *UserController) UpdateUserProfile(c *gin.Context) {
	var req services.UpdateProfileRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := uc.userService.UpdateProfile(middleware.CurrentUser(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "Profile updated", gin.H{
		"user":          user.ToPublic(),
		"email":         user.Email,
		"address":       user.Address,
		"privacy_level": user.PrivacyLevel,
	})
}

// TopUp 余额充值
func (uc *UserController) TopUp(c *gin.Context) {
	balance, err := uc.userService.TopUp(middleware.CurrentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, gin.H{"balance": balance})
}

// RequestPublisher 申请成为出版者
func (uc *UserController) RequestPublisher(c *gin.Context) {
	if err := uc.publisherService.RequestPublisher(middleware.CurrentUser(c)); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "Publisher request submitted", nil)
}

// GetOwnedBooks 用户拥有的书籍
func (uc *UserController) GetOwnedBooks(c *gin.Context) {
	books, err := uc.userService.ListOwnedBooks(middleware.CurrentUser(c), c.Param("username"))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, books)
}

// GetPublishedBooks 用户出版的书籍
func (uc *UserController) GetPublishedBooks(c *gin.Context) {
	books, err := uc.bookService.ListPublishedBy(middleware.CurrentUser(c), c.Param("username"))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, books)
}

// GetFriends 好友列表（仅本人）
func (uc *UserController) GetFriends(c *gin.Context) {
	friends, err := uc.friendService.ListFriends(middleware.CurrentUser(c), c.Param("username"))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, friends)
}

// GetFriendRequests 收到的好友请求（仅本人）
func (uc *UserController) GetFriendRequests(c *gin.Context) {
	requests, err := uc.friendService.ListIncomingRequests(middleware.CurrentUser(c), c.Param("username"))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, requests)
}

// GetRecommendations 收到的推荐（仅本人）
func (uc *UserController) GetRecommendations(c *gin.Context) {
	inbox, err := uc.recommendationService.Inbox(middleware.CurrentUser(c), c.Param("username"))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, inbox)
}

// DeleteUser 注销账号（本人或管理员）
func (uc *UserController) DeleteUser(c *gin.Context) {
	if err := uc.userService.DeleteUser(middleware.CurrentUser(c), c.Param("username")); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "User deleted", nil)
}
