package controllers

import (
	"errors"

	"onlinelibrary_go/middleware"
	"onlinelibrary_go/models"
	"onlinelibrary_go/services"
	"onlinelibrary_go/utils"

	"github.com/gin-gonic/gin"
)

// BookController 书籍控制器
type BookController struct {
	bookService           *services.BookService
	reviewService         *services.ReviewService
	recommendationService *services.RecommendationService
	uploader              *utils.FileUploader
}

// NewBookController 创建书籍控制器实例，uploader为nil时封面上传不可用
func NewBookController(uploader *utils.FileUploader) *BookController {
	return &BookController{
		bookService:           services.NewBookService(),
		reviewService:         services.NewReviewService(),
		recommendationService: services.NewRecommendationService(),
		uploader:              uploader,
	}
}

// RateRequest 评分请求
type RateRequest struct {
	Evaluation int `json:"evaluation" binding:"required,min=1,max=5"`
}

// RecommendRequest 推荐请求
type RecommendRequest struct {
	Target string `json:"target" binding:"required"`
}

// GetBooks 获取已上架书籍列表
// @Summary 获取书籍列表
// @Description 分页获取已上架书籍，可按分类和关键词筛选
// @Tags books
// @Produce json
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Param category query string false "分类"
// @Param q query string false "书名或作者关键词"
// @Success 200 {object} utils.PageResponse
// @Router /api/books [get]
func (bc *BookController) GetBooks(c *gin.Context) {
	var q services.CatalogQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	page, err := bc.bookService.ListCatalog(q)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.Paginate(c, page.Books, page.Total, page.Page, page.Limit)
}

// GetBook 获取书籍详情
// @Summary 获取书籍详情
// @Tags books
// @Produce json
// @Param isbn path string true "ISBN"
// @Success 200 {object} utils.Response
// @Router /api/books/{isbn} [get]
func (bc *BookController) GetBook(c *gin.Context) {
	details, err := bc.bookService.GetBookDetails(middleware.CurrentUser(c), c.Param("isbn"))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, details)
}

// CreateBook 提交新书，进入待审核状态
// @Summary 提交新书
// @Tags books
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body services.SubmitBookRequest true "书籍信息"
// @Success 200 {object} utils.Response
// @Router /api/books [post]
func (bc *BookController) CreateBook(c *gin.Context) {
	var req services.SubmitBookRequest
	if !bindJSON(c, &req) {
		return
	}

	book, err := bc.bookService.Submit(middleware.CurrentUser(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessWithMessage(c, "Book submitted for review", book)
}

// UploadCover 上传书籍封面，返回可用作image_url的地址
// @Summary 上传封面
// @Tags books
// @Accept multipart/form-data
// @Produce json
// @Security Bearer
// @Param file formData file true "封面图片(jpg/jpeg/png)"
// @Router /api/books/cover [post]
func (bc *BookController) UploadCover(c *gin.Context) {
	if bc.uploader == nil {
		utils.Unavailable(c, "cover storage is not configured")
		return
	}
	if !middleware.CurrentUser(c).AuthorizationLevel.CanPublish() {
		respondError(c, services.ErrForbidden)
		return
	}

	result, err := bc.uploader.UploadFile(c, "file", middleware.CurrentUser(c).ID)
	if err != nil {
		utils.BadRequest(c, err.Error())
		return
	}
	utils.Success(c, result)
}

// DeleteCover 删除本人上传但不再使用的封面
// @Summary 删除封面
// @Tags books
// @Security Bearer
// @Param key query string true "上传返回的file_name"
// @Router /api/books/cover [delete]
func (bc *BookController) DeleteCover(c *gin.Context) {
	if bc.uploader == nil {
		utils.Unavailable(c, "cover storage is not configured")
		return
	}
	key := c.Query("key")
	if key == "" {
		utils.BadRequest(c, "key is required")
		return
	}

	// 只有上传者本人可以删除
	meta, err := bc.uploader.GetFileMetadata(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, utils.ErrFileNotTracked) {
			utils.NotFound(c, "cover not found")
			return
		}
		respondError(c, err)
		return
	}
	if meta["owner"] != middleware.CurrentUser(c).ID {
		utils.Forbidden(c, "you can only delete covers you uploaded")
		return
	}

	if err := bc.uploader.DeleteFile(c.Request.Context(), key); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "Cover deleted", nil)
}

// BuyBook 购买书籍
// @Summary 购买书籍
// @Tags books
// @Security Bearer
// @Param isbn path string true "ISBN"
// @Router /api/books/{isbn}/buy [post]
func (bc *BookController) BuyBook(c *gin.Context) {
	user := middleware.CurrentUser(c)
	ownership, err := bc.bookService.Buy(user, c.Param("isbn"))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "Purchase successful", gin.H{
		"ownership": ownership,
		"balance":   user.Balance,
	})
}

// RateBook 评分（重复评分覆盖原值）
func (bc *BookController) RateBook(c *gin.Context) {
	var req RateRequest
	if !bindJSON(c, &req) {
		return
	}

	rating, err := bc.reviewService.Rate(middleware.CurrentUser(c), c.Param("isbn"), req.Evaluation)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, rating)
}

// WriteReview 撰写书评
func (bc *BookController) WriteReview(c *gin.Context) {
	var req services.WriteReviewRequest
	if !bindJSON(c, &req) {
		return
	}

	review, err := bc.reviewService.WriteReview(middleware.CurrentUser(c), c.Param("isbn"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "Review published", review)
}

// GetRecommendTargets 可以接收该书推荐的好友
func (bc *BookController) GetRecommendTargets(c *gin.Context) {
	targets, err := bc.recommendationService.EligibleTargets(middleware.CurrentUser(c), c.Param("isbn"))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, targets)
}

// Recommend 向好友推荐书籍
func (bc *BookController) Recommend(c *gin.Context) {
	var req RecommendRequest
	if !bindJSON(c, &req) {
		return
	}

	rec, err := bc.recommendationService.Recommend(middleware.CurrentUser(c), c.Param("isbn"), req.Target)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "Recommendation sent", rec)
}

// ApproveBook 审核通过（管理员）
func (bc *BookController) ApproveBook(c *gin.Context) {
	bc.moderate(c, bc.bookService.Approve, "Book approved")
}

// RejectBook 审核拒绝（管理员）
func (bc *BookController) RejectBook(c *gin.Context) {
	bc.moderate(c, bc.bookService.Reject, "Book rejected")
}

// RemoveBook 下架书籍（管理员）
func (bc *BookController) RemoveBook(c *gin.Context) {
	bc.moderate(c, bc.bookService.Remove, "Book removed")
}

func (bc *BookController) moderate(c *gin.Context, action func(*models.User, string) error, message string) {
	if err := action(middleware.CurrentUser(c), c.Param("isbn")); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessWithMessage(c, message, nil)
}
