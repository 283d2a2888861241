package controllers

import (
	"onlinelibrary_go/middleware"
	"onlinelibrary_go/models"
	"onlinelibrary_go/services"
	"onlinelibrary_go/utils"

	"github.com/gin-gonic/gin"
)

// ModerationController 管理员控制器
type ModerationController struct {
	moderationService *services.ModerationService
	publisherService  *services.PublisherService
}

// NewModerationController 创建管理员控制器实例
func NewModerationController() *ModerationController {
	return &ModerationController{
		moderationService: services.NewModerationService(),
		publisherService:  services.NewPublisherService(),
	}
}

// GetPendingPublishers 待审核的出版者申请
// @Summary 出版者申请队列
// @Tags moderation
// @Security Bearer
// @Router /api/moderation/publishers [get]
func (mc *ModerationController) GetPendingPublishers(c *gin.Context) {
	users, err := mc.moderationService.PendingPublishers(middleware.CurrentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, users)
}

// GetPendingPublications 待审核的书籍
func (mc *ModerationController) GetPendingPublications(c *gin.Context) {
	books, err := mc.moderationService.PendingPublications(middleware.CurrentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, books)
}

// GetReportedReviews 被举报的书评
func (mc *ModerationController) GetReportedReviews(c *gin.Context) {
	reviews, err := mc.moderationService.ReportedReviews(middleware.CurrentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, reviews)
}

// GetQueueSizes 各审核队列长度
func (mc *ModerationController) GetQueueSizes(c *gin.Context) {
	sizes, err := mc.moderationService.CountQueues(c.Request.Context(), middleware.CurrentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, sizes)
}

// ApprovePublisher 通过出版者申请
func (mc *ModerationController) ApprovePublisher(c *gin.Context) {
	mc.changeLevel(c, mc.publisherService.ApprovePublisher, "Publisher approved")
}

// RejectPublisher 拒绝出版者申请
func (mc *ModerationController) RejectPublisher(c *gin.Context) {
	mc.changeLevel(c, mc.publisherService.RejectPublisher, "Publisher request rejected")
}

// BlockUser 封禁用户
func (mc *ModerationController) BlockUser(c *gin.Context) {
	mc.changeLevel(c, mc.publisherService.Block, "User blocked")
}

// UnblockUser 解封用户
func (mc *ModerationController) UnblockUser(c *gin.Context) {
	mc.changeLevel(c, mc.publisherService.Unblock, "User unblocked")
}

func (mc *ModerationController) changeLevel(c *gin.Context, action func(*models.User, string) error, message string) {
	if err := action(middleware.CurrentUser(c), c.Param("username")); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessWithMessage(c, message, nil)
}
