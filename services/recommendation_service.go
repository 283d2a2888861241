package services

import (
	"fmt"

	"onlinelibrary_go/config"
	"onlinelibrary_go/events"
	"onlinelibrary_go/metrics"
	"onlinelibrary_go/models"

	"gorm.io/gorm/clause"
)

// RecommendationService 书籍推荐服务
type RecommendationService struct{}

// NewRecommendationService 创建推荐服务实例
func NewRecommendationService() *RecommendationService {
	return &RecommendationService{}
}

// Recommend 向好友推荐一本自己拥有的书
func (rs *RecommendationService) Recommend(sender *models.User, isbn, targetUsername string) (*models.Recommendation, error) {
	// 1. 被封禁用户不能推荐
	if err := requireActive(sender); err != nil {
		return nil, err
	}

	// 2. 书籍必须已上架
	book, err := findPublishedBook(config.DB, isbn)
	if err != nil {
		return nil, err
	}

	// 3. 目标必须是好友
	target, err := findUserByUsername(config.DB, targetUsername)
	if err != nil {
		return nil, err
	}
	friends, err := areFriends(config.DB, sender.ID, target.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check friendship: %w", err)
	}
	if !friends {
		return nil, forbidden("%s is not your friend", target.Username)
	}

	// 4. 推荐人必须拥有该书，被推荐人不能已拥有
	senderOwns, err := owns(config.DB, sender.ID, book.ISBN)
	if err != nil {
		return nil, fmt.Errorf("failed to check ownership: %w", err)
	}
	if !senderOwns {
		return nil, forbidden("you can only recommend books you own")
	}
	targetOwns, err := owns(config.DB, target.ID, book.ISBN)
	if err != nil {
		return nil, fmt.Errorf("failed to check ownership: %w", err)
	}
	if targetOwns {
		return nil, conflict("%s already owns this book", target.Username)
	}

	// 5. 同一(推荐人, 被推荐人, 书)只能有一条推荐
	rec := models.Recommendation{
		SenderID: sender.ID,
		TargetID: target.ID,
		BookISBN: book.ISBN,
	}
	result := config.DB.Omit(clause.Associations).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to create recommendation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, conflict("you already recommended this book to %s", target.Username)
	}

	metrics.RecordRecommendation()
	events.Publish(events.Event{
		Type:         events.RecommendationReceived,
		ActorID:      sender.ID,
		TargetUserID: target.ID,
		BookISBN:     book.ISBN,
	})
	return &rec, nil
}

// EligibleTargets 可以推荐该书的好友：未拥有该书且尚未收到推荐人的推荐
func (rs *RecommendationService) EligibleTargets(sender *models.User, isbn string) ([]models.PublicUser, error) {
	book, err := findPublishedBook(config.DB, isbn)
	if err != nil {
		return nil, err
	}

	var users []models.User
	err = config.DB.
		Where("id IN (?) OR id IN (?)",
			config.DB.Model(&models.Friendship{}).Select("target_id").
				Where("sender_id = ? AND status = ?", sender.ID, models.FriendshipAccepted),
			config.DB.Model(&models.Friendship{}).Select("sender_id").
				Where("target_id = ? AND status = ?", sender.ID, models.FriendshipAccepted),
		).
		Where("id NOT IN (?)", config.DB.Model(&models.Ownership{}).Select("user_id").Where("book_isbn = ?", book.ISBN)).
		Where("id NOT IN (?)", config.DB.Model(&models.Recommendation{}).Select("target_id").
			Where("sender_id = ? AND book_isbn = ?", sender.ID, book.ISBN)).
		Order("username ASC").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list recommendation targets: %w", err)
	}

	return toPublicUsers(users), nil
}

// InboxItem 收到的推荐
type InboxItem struct {
	ID        string            `json:"id"`
	Sender    models.PublicUser `json:"sender"`
	Book      models.Book       `json:"book"`
	CreatedAt string            `json:"created_at"`
}

// Inbox 用户收到的推荐，按时间倒序（仅本人可查看）
func (rs *RecommendationService) Inbox(viewer *models.User, username string) ([]InboxItem, error) {
	owner, err := findUserByUsername(config.DB, username)
	if err != nil {
		return nil, err
	}
	if viewer == nil || viewer.ID != owner.ID {
		return nil, forbidden("only %s can view these recommendations", owner.Username)
	}

	var recs []models.Recommendation
	err = config.DB.Preload("Sender").Preload("Book").
		Where("target_id = ?", owner.ID).
		Order("created_at DESC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list recommendations: %w", err)
	}

	items := make([]InboxItem, 0, len(recs))
	for _, rec := range recs {
		items = append(items, InboxItem{
			ID:        rec.ID,
			Sender:    rec.Sender.ToPublic(),
			Book:      rec.Book,
			CreatedAt: rec.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return items, nil
}
