package controllers

import (
	"onlinelibrary_go/middleware"
	"onlinelibrary_go/models"
	"onlinelibrary_go/services"
	"onlinelibrary_go/utils"

	"github.com/gin-gonic/gin"
)

// FriendController 好友关系控制器，路径中的username为对方用户
type FriendController struct {
	friendService *services.FriendService
}

// NewFriendController 创建好友控制器实例
func NewFriendController() *FriendController {
	return &FriendController{friendService: services.NewFriendService()}
}

// SendRequest 发送好友请求
// @Summary 发送好友请求
// @Tags friends
// @Security Bearer
// @Param username path string true "目标用户名"
// @Router /api/users/{username}/friend-request [post]
func (fc *FriendController) SendRequest(c *gin.Context) {
	friendship, err := fc.friendService.SendRequest(middleware.CurrentUser(c), c.Param("username"))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "Friend request sent", friendship)
}

// Accept 接受对方发来的好友请求
func (fc *FriendController) Accept(c *gin.Context) {
	fc.transition(c, fc.friendService.Accept, "Friend request accepted", models.FriendStatusFriends)
}

// Reject 拒绝对方发来的好友请求
func (fc *FriendController) Reject(c *gin.Context) {
	fc.transition(c, fc.friendService.Reject, "Friend request rejected", models.FriendStatusNotFriends)
}

// Cancel 撤回自己发出的好友请求
func (fc *FriendController) Cancel(c *gin.Context) {
	fc.transition(c, fc.friendService.Cancel, "Friend request cancelled", models.FriendStatusNotFriends)
}

// Unfriend 解除好友关系
func (fc *FriendController) Unfriend(c *gin.Context) {
	fc.transition(c, fc.friendService.Unfriend, "Unfriended", models.FriendStatusNotFriends)
}

func (fc *FriendController) transition(c *gin.Context, action func(*models.User, string) error,
	message string, status models.FriendStatus) {
	if err := action(middleware.CurrentUser(c), c.Param("username")); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessWithMessage(c, message, gin.H{"friend_status": status})
}
