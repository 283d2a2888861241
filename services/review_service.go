package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"onlinelibrary_go/config"
	"onlinelibrary_go/events"
	"onlinelibrary_go/metrics"
	"onlinelibrary_go/models"
	"onlinelibrary_go/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 书评字段长度限制
const (
	MaxReviewContentLength  = 5000
	MaxReviewSummaryLength  = 140
	MaxCommentContentLength = 1000
)

// ReviewService 评分、书评、投票与评论服务
type ReviewService struct{}

// NewReviewService 创建书评服务实例
func NewReviewService() *ReviewService {
	return &ReviewService{}
}

// ==================== 评分 ====================

// Rate 为已上架的书籍评分；同一用户对同一本书只保留一条评分，重复评分覆盖旧值
func (rs *ReviewService) Rate(user *models.User, isbn string, evaluation int) (*models.Rating, error) {
	if err := requireActive(user); err != nil {
		return nil, err
	}
	if !models.ValidEvaluation(evaluation) {
		return nil, invalidInput("evaluation must be between %d and %d", models.MinEvaluation, models.MaxEvaluation)
	}
	book, err := findPublishedBook(config.DB, isbn)
	if err != nil {
		return nil, err
	}

	return upsertRating(config.DB, user.ID, book.ISBN, evaluation)
}

// upsertRating 按 (user_id, book_isbn) 插入或更新评分，返回最新记录
func upsertRating(tx *gorm.DB, userID, isbn string, evaluation int) (*models.Rating, error) {
	rating := models.Rating{UserID: userID, BookISBN: isbn, Evaluation: evaluation}
	err := tx.Omit("User", "Book").Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "book_isbn"}},
		DoUpdates: clause.AssignmentColumns([]string{"evaluation", "updated_at"}),
	}).Create(&rating).Error
	if err != nil {
		return nil, fmt.Errorf("failed to save rating: %w", err)
	}

	// 冲突更新时主键仍是新生成的值，需要重新读取
	var saved models.Rating
	if err := tx.Where("user_id = ? AND book_isbn = ?", userID, isbn).First(&saved).Error; err != nil {
		return nil, wrapLookup(err, "rating")
	}
	return &saved, nil
}

// ==================== 书评 ====================

// WriteReviewRequest 撰写书评请求
type WriteReviewRequest struct {
	Evaluation int    `json:"evaluation" binding:"required,min=1,max=5"`
	Summary    string `json:"summary" binding:"required,max=140"`
	Content    string `json:"content" binding:"required,max=5000"`
}

// WriteReview 撰写书评：先写入评分，再创建与之一一对应的书评，两步在同一事务中完成
func (rs *ReviewService) WriteReview(user *models.User, isbn string, req *WriteReviewRequest) (*models.Review, error) {
	// 1. 校验
	if err := requireActive(user); err != nil {
		return nil, err
	}
	if !models.ValidEvaluation(req.Evaluation) {
		return nil, invalidInput("evaluation must be between %d and %d", models.MinEvaluation, models.MaxEvaluation)
	}
	summary := utils.SanitizeString(req.Summary)
	content := utils.SanitizeString(req.Content)
	if summary == "" || len(summary) > MaxReviewSummaryLength {
		return nil, invalidInput("summary must be 1-%d characters", MaxReviewSummaryLength)
	}
	if content == "" || len(content) > MaxReviewContentLength {
		return nil, invalidInput("content must be 1-%d characters", MaxReviewContentLength)
	}

	book, err := findPublishedBook(config.DB, isbn)
	if err != nil {
		return nil, err
	}

	// 2. 事务：检查是否已有书评 -> 写入评分 -> 创建书评
	var review models.Review
	err = config.DB.Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.Review{}).
			Where("user_id = ? AND book_isbn = ?", user.ID, book.ISBN).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("failed to check existing review: %w", err)
		}
		if existing > 0 {
			return conflict("you already reviewed this book")
		}

		rating, err := upsertRating(tx, user.ID, book.ISBN, req.Evaluation)
		if err != nil {
			return err
		}

		review = models.Review{
			RatingID: rating.ID,
			UserID:   user.ID,
			BookISBN: book.ISBN,
			Summary:  summary,
			Content:  content,
		}
		if err := tx.Omit(clause.Associations).Create(&review).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return conflict("you already reviewed this book")
			}
			return fmt.Errorf("failed to create review: %w", err)
		}
		review.Rating = *rating
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &review, nil
}

// findVisibleReview 加载书评，所属书籍未上架时只有管理员可见
func findVisibleReview(db *gorm.DB, viewer *models.User, reviewID string) (*models.Review, error) {
	var review models.Review
	if err := db.Where("id = ?", reviewID).First(&review).Error; err != nil {
		return nil, wrapLookup(err, "review")
	}
	if viewer != nil && viewer.AuthorizationLevel.IsModerator() {
		return &review, nil
	}
	if _, err := findPublishedBook(db, review.BookISBN); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound("review not found")
		}
		return nil, err
	}
	return &review, nil
}

// VoteReview 为书评投票，每个用户对每条书评只能投一次
func (rs *ReviewService) VoteReview(voter *models.User, reviewID string, direction models.VoteDirection) (*models.Review, error) {
	if err := requireActive(voter); err != nil {
		return nil, err
	}
	if !direction.Valid() {
		return nil, invalidInput("vote direction must be up or down")
	}

	var review models.Review
	err := config.DB.Transaction(func(tx *gorm.DB) error {
		found, err := findVisibleReview(tx, voter, reviewID)
		if err != nil {
			return err
		}
		review = *found

		// 1. 记录投票人，已投过则不产生任何变化
		vote := models.ReviewVote{ReviewID: review.ID, UserID: voter.ID, Direction: direction}
		result := tx.Omit(clause.Associations).Clauses(clause.OnConflict{DoNothing: true}).Create(&vote)
		if result.Error != nil {
			return fmt.Errorf("failed to record vote: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return conflict("you already voted on this review")
		}

		// 2. 赞同增加点赞数，反对增加点踩数
		column := "nb_likes"
		if direction == models.VoteDown {
			column = "nb_dislikes"
		}
		if err := tx.Model(&models.Review{}).Where("id = ?", review.ID).
			UpdateColumn(column, gorm.Expr(column+" + ?", 1)).Error; err != nil {
			return fmt.Errorf("failed to update vote counter: %w", err)
		}

		return tx.Where("id = ?", review.ID).First(&review).Error
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordReviewVote(string(direction))
	events.Publish(events.Event{Type: events.ReviewVoted, ActorID: voter.ID, TargetUserID: review.UserID, ReviewID: review.ID})
	return &review, nil
}

// ReportReview 举报书评；管理员和作者本人不能举报，同一用户可以多次举报
func (rs *ReviewService) ReportReview(reporter *models.User, reviewID string) error {
	if err := requireActive(reporter); err != nil {
		return err
	}
	if reporter.AuthorizationLevel.IsModerator() {
		return forbidden("moderators cannot report reviews")
	}

	review, err := findVisibleReview(config.DB, reporter, reviewID)
	if err != nil {
		return err
	}
	if review.UserID == reporter.ID {
		return forbidden("you cannot report your own review")
	}

	if err := config.DB.Model(&models.Review{}).Where("id = ?", review.ID).
		UpdateColumn("nb_reports", gorm.Expr("nb_reports + ?", 1)).Error; err != nil {
		return fmt.Errorf("failed to report review: %w", err)
	}

	events.Publish(events.Event{Type: events.ReviewReported, ActorID: reporter.ID, ReviewID: review.ID})
	return nil
}

// DeleteReview 删除书评（作者本人或管理员），同时删除其评论和投票，评分保留
func (rs *ReviewService) DeleteReview(actor *models.User, reviewID string) error {
	var review models.Review
	if err := config.DB.Where("id = ?", reviewID).First(&review).Error; err != nil {
		return wrapLookup(err, "review")
	}
	isModerator := actor.AuthorizationLevel.IsModerator()
	if review.UserID != actor.ID && !isModerator {
		return forbidden("only the author or a moderator can delete this review")
	}

	err := config.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("review_id = ?", review.ID).Delete(&models.Comment{}).Error; err != nil {
			return fmt.Errorf("failed to delete comments: %w", err)
		}
		if err := tx.Where("review_id = ?", review.ID).Delete(&models.ReviewVote{}).Error; err != nil {
			return fmt.Errorf("failed to delete votes: %w", err)
		}
		result := tx.Where("id = ?", review.ID).Delete(&models.Review{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete review: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return notFound("review not found")
		}
		return nil
	})
	if err != nil {
		return err
	}

	if isModerator && review.UserID != actor.ID {
		metrics.RecordModerationAction("delete_review")
	}
	events.Publish(events.Event{Type: events.ReviewDeleted, ActorID: actor.ID, TargetUserID: review.UserID, ReviewID: review.ID})
	return nil
}

// ==================== 评论 ====================

// CommentRequest 评论请求
type CommentRequest struct {
	Content string `json:"content" binding:"required,max=1000"`
}

// CommentReview 在书评下追加评论
func (rs *ReviewService) CommentReview(user *models.User, reviewID, content string) (*models.Comment, error) {
	if err := requireActive(user); err != nil {
		return nil, err
	}
	content = utils.SanitizeString(content)
	if content == "" || len(content) > MaxCommentContentLength {
		return nil, invalidInput("comment must be 1-%d characters", MaxCommentContentLength)
	}

	review, err := findVisibleReview(config.DB, user, reviewID)
	if err != nil {
		return nil, err
	}

	comment := models.Comment{ReviewID: review.ID, UserID: user.ID, Content: content}
	if err := config.DB.Omit(clause.Associations).Create(&comment).Error; err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}
	comment.User = *user

	events.Publish(events.Event{Type: events.ReviewCommented, ActorID: user.ID, TargetUserID: review.UserID, ReviewID: review.ID})
	return &comment, nil
}

// ==================== 查询 ====================

// ReviewView 书评展示结构
type ReviewView struct {
	ID         string            `json:"id"`
	BookISBN   string            `json:"book_isbn"`
	Author     models.PublicUser `json:"author"`
	Evaluation int               `json:"evaluation"`
	Summary    string            `json:"summary"`
	Content    string            `json:"content"`
	NbLikes    int               `json:"nb_likes"`
	NbDislikes int               `json:"nb_dislikes"`
	NbReports  int               `json:"nb_reports"`
	CreatedAt  time.Time         `json:"created_at"`
}

// CommentView 评论展示结构
type CommentView struct {
	ID        string            `json:"id"`
	Author    models.PublicUser `json:"author"`
	Content   string            `json:"content"`
	CreatedAt time.Time         `json:"created_at"`
}

// ReviewDetails 书评详情
type ReviewDetails struct {
	ReviewView
	Comments []CommentView `json:"comments"`
}

// GetReviewDetails 书评详情，包括作者、评分和评论；viewer 可以为 nil
func (rs *ReviewService) GetReviewDetails(viewer *models.User, reviewID string) (*ReviewDetails, error) {
	if _, err := findVisibleReview(config.DB, viewer, reviewID); err != nil {
		return nil, err
	}

	var review models.Review
	err := config.DB.Preload("User").Preload("Rating").
		Preload("Comments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Comments.User").
		Where("id = ?", reviewID).First(&review).Error
	if err != nil {
		return nil, wrapLookup(err, "review")
	}

	details := &ReviewDetails{ReviewView: toReviewView(&review), Comments: make([]CommentView, 0, len(review.Comments))}
	for _, c := range review.Comments {
		details.Comments = append(details.Comments, CommentView{
			ID:        c.ID,
			Author:    c.User.ToPublic(),
			Content:   c.Content,
			CreatedAt: c.CreatedAt,
		})
	}
	return details, nil
}

// listReviewViews 按给定条件列出书评，点赞多的在前
func listReviewViews(scope *gorm.DB) ([]ReviewView, error) {
	var reviews []models.Review
	if err := scope.Preload("User").Preload("Rating").
		Order("reviews.nb_likes DESC").Order("reviews.created_at DESC").
		Find(&reviews).Error; err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}

	views := make([]ReviewView, 0, len(reviews))
	for i := range reviews {
		views = append(views, toReviewView(&reviews[i]))
	}
	return views, nil
}

// toReviewView 转换为展示结构
func toReviewView(r *models.Review) ReviewView {
	return ReviewView{
		ID:         r.ID,
		BookISBN:   r.BookISBN,
		Author:     r.User.ToPublic(),
		Evaluation: r.Rating.Evaluation,
		Summary:    r.Summary,
		Content:    strings.TrimSpace(r.Content),
		NbLikes:    r.NbLikes,
		NbDislikes: r.NbDislikes,
		NbReports:  r.NbReports,
		CreatedAt:  r.CreatedAt,
	}
}
