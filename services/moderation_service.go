package services

import (
	"context"
	"fmt"

	"onlinelibrary_go/config"
	"onlinelibrary_go/models"

	"golang.org/x/sync/errgroup"
)

// DefaultReportThreshold 书评进入举报队列的默认举报次数
const DefaultReportThreshold = 5

// ModerationService 管理员审核队列
type ModerationService struct {
	reportThreshold int
}

// NewModerationService 创建审核服务实例
func NewModerationService() *ModerationService {
	threshold := config.GetEnvInt("REPORT_THRESHOLD", DefaultReportThreshold)
	if threshold < 1 {
		threshold = DefaultReportThreshold
	}
	return &ModerationService{reportThreshold: threshold}
}

// PendingPublishers 等待审核的出版者申请
func (ms *ModerationService) PendingPublishers(moderator *models.User) ([]models.PublicUser, error) {
	if err := requireModerator(moderator); err != nil {
		return nil, err
	}

	var users []models.User
	if err := config.DB.Where("authorization_level = ?", models.LevelPublisherPending).
		Order("updated_at ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list publisher requests: %w", err)
	}
	return toPublicUsers(users), nil
}

// PendingPublications 等待审核的书籍
func (ms *ModerationService) PendingPublications(moderator *models.User) ([]models.Book, error) {
	if err := requireModerator(moderator); err != nil {
		return nil, err
	}

	var books []models.Book
	if err := config.DB.Preload("Category").
		Where("status = ?", models.BookPendingApproval).
		Order("created_at ASC").Find(&books).Error; err != nil {
		return nil, fmt.Errorf("failed to list pending books: %w", err)
	}
	return books, nil
}

// ReportedReviews 举报次数达到阈值的书评
func (ms *ModerationService) ReportedReviews(moderator *models.User) ([]ReviewView, error) {
	if err := requireModerator(moderator); err != nil {
		return nil, err
	}
	return listReviewViews(config.DB.Where("reviews.nb_reports >= ?", ms.reportThreshold))
}

// QueueSizes 三个审核队列的长度
type QueueSizes struct {
	PendingPublishers   int64 `json:"pending_publishers"`
	PendingPublications int64 `json:"pending_publications"`
	ReportedReviews     int64 `json:"reported_reviews"`
}

// CountQueues 并发统计三个审核队列的长度
func (ms *ModerationService) CountQueues(ctx context.Context, moderator *models.User) (*QueueSizes, error) {
	if err := requireModerator(moderator); err != nil {
		return nil, err
	}

	sizes := &QueueSizes{}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return config.DB.WithContext(ctx).Model(&models.User{}).
			Where("authorization_level = ?", models.LevelPublisherPending).
			Count(&sizes.PendingPublishers).Error
	})
	g.Go(func() error {
		return config.DB.WithContext(ctx).Model(&models.Book{}).
			Where("status = ?", models.BookPendingApproval).
			Count(&sizes.PendingPublications).Error
	})
	g.Go(func() error {
		return config.DB.WithContext(ctx).Model(&models.Review{}).
			Where("nb_reports >= ?", ms.reportThreshold).
			Count(&sizes.ReportedReviews).Error
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to count moderation queues: %w", err)
	}
	return sizes, nil
}
