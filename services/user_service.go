package services

import (
	"context"
	"fmt"

	"onlinelibrary_go/config"
	"onlinelibrary_go/middleware"
	"onlinelibrary_go/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// DefaultTopUpAmount 每次充值金额
const DefaultTopUpAmount = 100.00

// UserService 用户资料与钱包服务
type UserService struct {
	topUpAmount float64
	friends     *FriendService
	moderation  *ModerationService
}

// NewUserService 创建用户服务实例
func NewUserService() *UserService {
	return &UserService{
		topUpAmount: config.GetEnvFloat("TOPUP_AMOUNT", DefaultTopUpAmount),
		friends:     NewFriendService(),
		moderation:  NewModerationService(),
	}
}

// Profile 用户主页信息
type Profile struct {
	User         models.PublicUser   `json:"user"`
	FriendStatus models.FriendStatus `json:"friend_status"`
	Online       bool                `json:"online"`

	// 仅本人可见
	Email                 string   `json:"email,omitempty"`
	Address               string   `json:"address,omitempty"`
	Balance               *float64 `json:"balance,omitempty"`
	PendingFriendRequests *int64   `json:"pending_friend_requests,omitempty"`
	Recommendations       *int64   `json:"recommendations,omitempty"`

	// 仅管理员可见
	Moderation *QueueSizes `json:"moderation,omitempty"`
}

// GetProfile 用户主页；本人额外看到待处理请求数和推荐数，管理员额外看到审核队列长度
func (us *UserService) GetProfile(ctx context.Context, viewer *models.User, username string) (*Profile, error) {
	subject, err := findUserByUsername(config.DB, username)
	if err != nil {
		return nil, err
	}

	profile := &Profile{User: subject.ToPublic()}
	g, gctx := errgroup.WithContext(ctx)

	// 1. 好友关系状态
	g.Go(func() error {
		status, err := us.friends.FriendStatusOf(viewerID(viewer), subject.ID)
		profile.FriendStatus = status
		return err
	})

	// 2. 本人可见的统计
	if viewer != nil && viewer.ID == subject.ID {
		balance := subject.Balance
		profile.Email = subject.Email
		profile.Address = subject.Address
		profile.Balance = &balance

		var pending, recs int64
		profile.PendingFriendRequests = &pending
		profile.Recommendations = &recs
		g.Go(func() error {
			return config.DB.WithContext(gctx).Model(&models.Friendship{}).
				Where("target_id = ? AND status = ?", subject.ID, models.FriendshipPending).
				Count(&pending).Error
		})
		g.Go(func() error {
			return config.DB.WithContext(gctx).Model(&models.Recommendation{}).
				Where("target_id = ?", subject.ID).
				Count(&recs).Error
		})
	}

	// 3. 管理员可见的审核队列
	if viewer != nil && viewer.AuthorizationLevel.IsModerator() {
		g.Go(func() error {
			sizes, err := us.moderation.CountQueues(gctx, viewer)
			profile.Moderation = sizes
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to build profile: %w", err)
	}
	return profile, nil
}

// UpdateProfileRequest 更新资料请求
type UpdateProfileRequest struct {
	Email        *string              `json:"email" binding:"omitempty,email,max=150"`
	Address      *string              `json:"address" binding:"omitempty,max=300"`
	PrivacyLevel *models.PrivacyLevel `json:"privacy_level" binding:"omitempty,min=0,max=2"`
}

// UpdateProfile 更新本人的邮箱、地址和隐私等级
func (us *UserService) UpdateProfile(user *models.User, req *UpdateProfileRequest) (*models.User, error) {
	updates := make(map[string]interface{})
	if req.Email != nil {
		updates["email"] = *req.Email
	}
	if req.Address != nil {
		updates["address"] = *req.Address
	}
	if req.PrivacyLevel != nil {
		if !req.PrivacyLevel.Valid() {
			return nil, invalidInput("privacy level must be 0, 1 or 2")
		}
		updates["privacy_level"] = *req.PrivacyLevel
	}
	if len(updates) == 0 {
		return nil, invalidInput("no fields to update")
	}

	if err := config.DB.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return findUserByID(config.DB, user.ID)
}

// TopUp 为本人余额充值固定金额
func (us *UserService) TopUp(user *models.User) (float64, error) {
	err := config.DB.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.User{}).Where("id = ?", user.ID).
			UpdateColumn("balance", gorm.Expr("balance + ?", us.topUpAmount))
		if result.Error != nil {
			return fmt.Errorf("failed to top up balance: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return notFound("user not found")
		}
		return tx.Model(&models.User{}).Select("balance").Where("id = ?", user.ID).Scan(&user.Balance).Error
	})
	if err != nil {
		return 0, err
	}
	return user.Balance, nil
}

// ListOwnedBooks 用户拥有的已上架书籍，受隐私等级限制
func (us *UserService) ListOwnedBooks(viewer *models.User, username string) ([]models.BookSummary, error) {
	owner, err := findUserByUsername(config.DB, username)
	if err != nil {
		return nil, err
	}
	if !canViewPrivateContent(viewer, owner) {
		return nil, forbidden("%s's library is private", owner.Username)
	}

	var books []models.Book
	err = config.DB.Preload("Category").
		Joins("JOIN ownerships ON ownerships.book_isbn = books.isbn").
		Where("ownerships.user_id = ? AND books.status = ?", owner.ID, models.BookPublished).
		Order("ownerships.created_at DESC").
		Find(&books).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list owned books: %w", err)
	}
	return summarize(config.DB, books)
}

// DeleteUser 删除用户及其所有关联数据
// 外键约束会级联删除，这里在事务中显式删除，驱动未开启外键约束时同样成立
func (us *UserService) DeleteUser(actor *models.User, username string) error {
	target, err := findUserByUsername(config.DB, username)
	if err != nil {
		return err
	}
	if actor.ID != target.ID {
		if !actor.AuthorizationLevel.IsModerator() {
			return forbidden("you can only delete your own account")
		}
		if target.AuthorizationLevel.IsModerator() {
			return forbidden("moderators cannot be deleted by other moderators")
		}
	}

	err = config.DB.Transaction(func(tx *gorm.DB) error {
		// 1. 用户的书评及其评论、投票
		reviewIDs := tx.Model(&models.Review{}).Select("id").Where("user_id = ?", target.ID)
		steps := []struct {
			what  string
			query *gorm.DB
			model interface{}
		}{
			{"comments on reviews", tx.Where("review_id IN (?)", reviewIDs), &models.Comment{}},
			{"votes on reviews", tx.Where("review_id IN (?)", reviewIDs), &models.ReviewVote{}},
			{"comments", tx.Where("user_id = ?", target.ID), &models.Comment{}},
			{"votes", tx.Where("user_id = ?", target.ID), &models.ReviewVote{}},
			{"reviews", tx.Where("user_id = ?", target.ID), &models.Review{}},
			{"ratings", tx.Where("user_id = ?", target.ID), &models.Rating{}},
			{"recommendations", tx.Where("sender_id = ? OR target_id = ?", target.ID, target.ID), &models.Recommendation{}},
			{"friendships", tx.Where("sender_id = ? OR target_id = ?", target.ID, target.ID), &models.Friendship{}},
			{"ownerships", tx.Where("user_id = ?", target.ID), &models.Ownership{}},
		}
		for _, step := range steps {
			if err := step.query.Delete(step.model).Error; err != nil {
				return fmt.Errorf("failed to delete %s: %w", step.what, err)
			}
		}

		// 2. 出版的书籍保留，作者置空
		if err := tx.Model(&models.Book{}).Where("author_id = ?", target.ID).
			Update("author_id", nil).Error; err != nil {
			return fmt.Errorf("failed to detach authored books: %w", err)
		}

		return tx.Where("id = ?", target.ID).Delete(&models.User{}).Error
	})
	if err != nil {
		return err
	}

	middleware.InfoLogger("user deleted", zap.String("user_id", target.ID), zap.String("actor_id", actor.ID))
	return nil
}
