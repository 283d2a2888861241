package services

import (
	"fmt"

	"onlinelibrary_go/config"
	"onlinelibrary_go/events"
	"onlinelibrary_go/metrics"
	"onlinelibrary_go/models"
)

// PublisherService 出版者申请与封禁管理
//
// 普通(1) -> 申请中(2) -> 出版者(3)；申请中(2) -> 普通(1)；
// 管理员可将低于管理员的用户封禁为(0)，封禁(0) -> 普通(1)。
// 所有迁移都是带当前等级条件的更新，并发迁移不会互相覆盖。
type PublisherService struct{}

// NewPublisherService 创建出版者服务实例
func NewPublisherService() *PublisherService {
	return &PublisherService{}
}

// RequestPublisher 普通用户申请成为出版者
func (ps *PublisherService) RequestPublisher(user *models.User) error {
	if err := requireActive(user); err != nil {
		return err
	}

	ok, err := ps.transition(user.ID, models.LevelPublisherPending, "authorization_level = ?", models.LevelBasic)
	if err != nil {
		return err
	}
	if !ok {
		return ps.rejectTransition(user.ID, "only basic users can request publisher status")
	}

	user.AuthorizationLevel = models.LevelPublisherPending
	events.Publish(events.Event{Type: events.PublisherRequested, ActorID: user.ID})
	return nil
}

// ApprovePublisher 管理员批准出版者申请
func (ps *PublisherService) ApprovePublisher(moderator *models.User, username string) error {
	return ps.moderate(moderator, username, "approve_publisher", events.PublisherApproved,
		models.LevelPublisher, "authorization_level = ?", models.LevelPublisherPending)
}

// RejectPublisher 管理员拒绝出版者申请，用户回到普通等级
func (ps *PublisherService) RejectPublisher(moderator *models.User, username string) error {
	return ps.moderate(moderator, username, "reject_publisher", events.PublisherRejected,
		models.LevelBasic, "authorization_level = ?", models.LevelPublisherPending)
}

// Block 管理员封禁用户（不能封禁管理员，已封禁的用户视为冲突）
func (ps *PublisherService) Block(moderator *models.User, username string) error {
	return ps.moderate(moderator, username, "block", events.UserBlocked,
		models.LevelBlocked, "authorization_level > ? AND authorization_level < ?", models.LevelBlocked, models.LevelModerator)
}

// Unblock 管理员解除封禁，用户回到普通等级
func (ps *PublisherService) Unblock(moderator *models.User, username string) error {
	return ps.moderate(moderator, username, "unblock", events.UserUnblocked,
		models.LevelBasic, "authorization_level = ?", models.LevelBlocked)
}

// moderate 管理员发起的等级迁移
func (ps *PublisherService) moderate(moderator *models.User, username, action string, eventType events.Type,
	to models.AuthorizationLevel, where string, args ...interface{}) error {
	// 1. 操作者必须是管理员
	if err := requireModerator(moderator); err != nil {
		return err
	}

	// 2. 加载目标用户
	target, err := findUserByUsername(config.DB, username)
	if err != nil {
		return err
	}
	if target.ID == moderator.ID {
		return forbidden("moderators cannot change their own level")
	}

	// 3. 条件更新
	ok, err := ps.transition(target.ID, to, where, args...)
	if err != nil {
		return err
	}
	if !ok {
		return ps.rejectTransition(target.ID, fmt.Sprintf("cannot %s user %s", action, target.Username))
	}

	metrics.RecordModerationAction(action)
	events.Publish(events.Event{Type: eventType, ActorID: moderator.ID, TargetUserID: target.ID})
	return nil
}

// transition 仅当当前等级满足条件时更新，返回是否更新成功
func (ps *PublisherService) transition(userID string, to models.AuthorizationLevel, where string, args ...interface{}) (bool, error) {
	result := config.DB.Model(&models.User{}).
		Where("id = ?", userID).
		Where(where, args...).
		Update("authorization_level", to)
	if result.Error != nil {
		return false, fmt.Errorf("failed to update authorization level: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// rejectTransition 区分用户不存在、目标为管理员与状态冲突
func (ps *PublisherService) rejectTransition(userID, reason string) error {
	current, err := findUserByID(config.DB, userID)
	if err != nil {
		return err
	}
	if current.AuthorizationLevel.IsModerator() {
		return forbidden("%s: target is a moderator", reason)
	}
	return conflict("%s: current level is %s", reason, current.AuthorizationLevel)
}
