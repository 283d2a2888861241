package services

import (
	"context"
	"time"

	"onlinelibrary_go/models"

	"gorm.io/gorm"
)

const redisTimeout = 2 * time.Second

// redisContext 返回带超时的Redis上下文
func redisContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), redisTimeout)
}

// findUserByID 按ID加载用户
func findUserByID(db *gorm.DB, id string) (*models.User, error) {
	var user models.User
	if err := db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, wrapLookup(err, "user")
	}
	return &user, nil
}

// findUserByUsername 按用户名加载用户
func findUserByUsername(db *gorm.DB, username string) (*models.User, error) {
	var user models.User
	if err := db.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, wrapLookup(err, "user")
	}
	return &user, nil
}

// findBook 按ISBN加载书籍
func findBook(db *gorm.DB, isbn string) (*models.Book, error) {
	var book models.Book
	if err := db.Where("isbn = ?", isbn).First(&book).Error; err != nil {
		return nil, wrapLookup(err, "book")
	}
	return &book, nil
}

// findPublishedBook 加载已上架的书籍，未上架的书籍对所有角色都视为不存在
func findPublishedBook(db *gorm.DB, isbn string) (*models.Book, error) {
	var book models.Book
	err := db.Where("isbn = ? AND status = ?", isbn, models.BookPublished).First(&book).Error
	if err != nil {
		return nil, wrapLookup(err, "book")
	}
	return &book, nil
}

// requireActive 被封禁用户不能执行社交类写操作
func requireActive(user *models.User) error {
	if user.AuthorizationLevel.IsBlocked() {
		return forbidden("user %s is blocked", user.Username)
	}
	return nil
}

// requireModerator 仅管理员可执行
func requireModerator(user *models.User) error {
	if !user.AuthorizationLevel.IsModerator() {
		return forbidden("moderator privileges required")
	}
	return nil
}

// owns 用户是否已拥有该书
func owns(db *gorm.DB, userID, isbn string) (bool, error) {
	var count int64
	err := db.Model(&models.Ownership{}).
		Where("user_id = ? AND book_isbn = ?", userID, isbn).
		Count(&count).Error
	return count > 0, err
}

// areFriends 两个用户是否已是好友（不区分方向）
func areFriends(db *gorm.DB, a, b string) (bool, error) {
	var count int64
	err := db.Model(&models.Friendship{}).
		Where("pair_key = ? AND status = ?", models.PairKey(a, b), models.FriendshipAccepted).
		Count(&count).Error
	return count > 0, err
}

// pagination 规范化分页参数
func pagination(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}

// canViewPrivateContent 按隐私等级判断观察者能否查看用户的书籍等内容
// 公开：任何人；对访客隐藏：已登录用户；对所有人隐藏：本人和管理员
func canViewPrivateContent(viewer, owner *models.User) bool {
	if viewer != nil && (viewer.ID == owner.ID || viewer.AuthorizationLevel.IsModerator()) {
		return true
	}
	switch owner.PrivacyLevel {
	case models.PrivacyPublic:
		return true
	case models.PrivacyHiddenToVisitors:
		return viewer != nil
	}
	return false
}

// viewerID 未登录时返回空字符串
func viewerID(viewer *models.User) string {
	if viewer == nil {
		return ""
	}
	return viewer.ID
}
