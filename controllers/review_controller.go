package controllers

import (
	"onlinelibrary_go/middleware"
	"onlinelibrary_go/models"
	"onlinelibrary_go/services"
	"onlinelibrary_go/utils"

	"github.com/gin-gonic/gin"
)

// ReviewController 书评控制器
type ReviewController struct {
	reviewService *services.ReviewService
}

// NewReviewController 创建书评控制器实例
func NewReviewController() *ReviewController {
	return &ReviewController{reviewService: services.NewReviewService()}
}

// VoteRequest 投票请求
type VoteRequest struct {
	Direction models.VoteDirection `json:"direction" binding:"required,oneof=up down"`
}

// GetReview 书评详情（含评论）
// @Summary 书评详情
// @Tags reviews
// @Produce json
// @Param id path string true "书评ID"
// @Router /api/reviews/{id} [get]
func (rc *ReviewController) GetReview(c *gin.Context) {
	details, err := rc.reviewService.GetReviewDetails(middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, details)
}

// VoteReview 对书评点赞或点踩，每人每条书评只能投一次
func (rc *ReviewController) VoteReview(c *gin.Context) {
	var req VoteRequest
	if !bindJSON(c, &req) {
		return
	}

	review, err := rc.reviewService.VoteReview(middleware.CurrentUser(c), c.Param("id"), req.Direction)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, gin.H{
		"nb_likes":    review.NbLikes,
		"nb_dislikes": review.NbDislikes,
	})
}

// CommentReview 评论书评
func (rc *ReviewController) CommentReview(c *gin.Context) {
	var req services.CommentRequest
	if !bindJSON(c, &req) {
		return
	}

	comment, err := rc.reviewService.CommentReview(middleware.CurrentUser(c), c.Param("id"), req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, comment)
}

// ReportReview 举报书评
func (rc *ReviewController) ReportReview(c *gin.Context) {
	if err := rc.reviewService.ReportReview(middleware.CurrentUser(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "Review reported", nil)
}

// DeleteReview 删除书评（作者本人或管理员），评分保留
func (rc *ReviewController) DeleteReview(c *gin.Context) {
	if err := rc.reviewService.DeleteReview(middleware.CurrentUser(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "Review deleted", nil)
}
