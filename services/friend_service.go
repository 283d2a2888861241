package services

import (
	"fmt"

	"onlinelibrary_go/config"
	"onlinelibrary_go/events"
	"onlinelibrary_go/metrics"
	"onlinelibrary_go/models"

	"gorm.io/gorm/clause"
)

// FriendService 好友关系服务
//
// 状态迁移：无 -> 待处理 -> 已接受；待处理与已接受都可以被删除回到无。
// 每对用户（不分方向）最多一行记录，由 pair_key 唯一索引保证。
type FriendService struct{}

// NewFriendService 创建好友服务实例
func NewFriendService() *FriendService {
	return &FriendService{}
}

// SendRequest 发送好友请求
func (fs *FriendService) SendRequest(requester *models.User, targetUsername string) (*models.Friendship, error) {
	// 1. 被封禁用户不能发送请求
	if err := requireActive(requester); err != nil {
		return nil, err
	}

	// 2. 加载目标用户
	target, err := findUserByUsername(config.DB, targetUsername)
	if err != nil {
		return nil, err
	}
	if target.ID == requester.ID {
		return nil, invalidInput("cannot send a friend request to yourself")
	}

	// 3. 任一方向已存在记录（待处理或已接受）则拒绝
	var existing int64
	if err := config.DB.Model(&models.Friendship{}).
		Where("pair_key = ?", models.PairKey(requester.ID, target.ID)).
		Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("failed to check friendship: %w", err)
	}
	if existing > 0 {
		return nil, conflict("a friendship or pending request already exists with %s", target.Username)
	}

	// 4. 插入；并发请求由唯一索引兜底，未插入即视为冲突
	friendship := models.Friendship{
		SenderID: requester.ID,
		TargetID: target.ID,
		Status:   models.FriendshipPending,
	}
	result := config.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&friendship)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to create friend request: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, conflict("a friendship or pending request already exists with %s", target.Username)
	}

	metrics.RecordFriendshipTransition("requested")
	events.Publish(events.Event{Type: events.FriendRequestSent, ActorID: requester.ID, TargetUserID: target.ID})
	return &friendship, nil
}

// Accept 接受好友请求（当前用户为请求的接收方）
func (fs *FriendService) Accept(target *models.User, requesterUsername string) error {
	if err := requireActive(target); err != nil {
		return err
	}
	requester, err := findUserByUsername(config.DB, requesterUsername)
	if err != nil {
		return err
	}

	result := config.DB.Model(&models.Friendship{}).
		Where("sender_id = ? AND target_id = ? AND status = ?", requester.ID, target.ID, models.FriendshipPending).
		Update("status", models.FriendshipAccepted)
	if result.Error != nil {
		return fmt.Errorf("failed to accept friend request: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return notFound("no pending friend request from %s", requester.Username)
	}

	metrics.RecordFriendshipTransition("accepted")
	events.Publish(events.Event{Type: events.FriendRequestAccepted, ActorID: target.ID, TargetUserID: requester.ID})
	return nil
}

// Reject 拒绝好友请求，删除待处理记录
func (fs *FriendService) Reject(target *models.User, requesterUsername string) error {
	requester, err := findUserByUsername(config.DB, requesterUsername)
	if err != nil {
		return err
	}

	result := config.DB.
		Where("sender_id = ? AND target_id = ? AND status = ?", requester.ID, target.ID, models.FriendshipPending).
		Delete(&models.Friendship{})
	if result.Error != nil {
		return fmt.Errorf("failed to reject friend request: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return notFound("no pending friend request from %s", requester.Username)
	}

	metrics.RecordFriendshipTransition("rejected")
	events.Publish(events.Event{Type: events.FriendRequestRejected, ActorID: target.ID, TargetUserID: requester.ID})
	return nil
}

// Cancel 撤回自己发出的待处理请求
func (fs *FriendService) Cancel(requester *models.User, targetUsername string) error {
	target, err := findUserByUsername(config.DB, targetUsername)
	if err != nil {
		return err
	}

	result := config.DB.
		Where("sender_id = ? AND target_id = ? AND status = ?", requester.ID, target.ID, models.FriendshipPending).
		Delete(&models.Friendship{})
	if result.Error != nil {
		return fmt.Errorf("failed to cancel friend request: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return notFound("no pending friend request to %s", target.Username)
	}

	metrics.RecordFriendshipTransition("cancelled")
	events.Publish(events.Event{Type: events.FriendRequestCancelled, ActorID: requester.ID, TargetUserID: target.ID})
	return nil
}

// Unfriend 解除好友关系（不区分方向）
func (fs *FriendService) Unfriend(user *models.User, otherUsername string) error {
	other, err := findUserByUsername(config.DB, otherUsername)
	if err != nil {
		return err
	}

	result := config.DB.
		Where("pair_key = ? AND status = ?", models.PairKey(user.ID, other.ID), models.FriendshipAccepted).
		Delete(&models.Friendship{})
	if result.Error != nil {
		return fmt.Errorf("failed to unfriend: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return notFound("%s is not your friend", other.Username)
	}

	metrics.RecordFriendshipTransition("unfriended")
	events.Publish(events.Event{Type: events.Unfriended, ActorID: user.ID, TargetUserID: other.ID})
	return nil
}

// FriendStatusOf 计算观察者与目标用户之间的关系
// viewerID 为空表示未登录访客
func (fs *FriendService) FriendStatusOf(viewerID, subjectID string) (models.FriendStatus, error) {
	if viewerID == "" {
		return models.FriendStatusNotFriends, nil
	}
	if viewerID == subjectID {
		return models.FriendStatusSelf, nil
	}

	var friendships []models.Friendship
	if err := config.DB.Where("pair_key = ?", models.PairKey(viewerID, subjectID)).
		Find(&friendships).Error; err != nil {
		return "", fmt.Errorf("failed to load friendship: %w", err)
	}

	for _, f := range friendships {
		switch {
		case f.Status == models.FriendshipAccepted:
			return models.FriendStatusFriends, nil
		case f.SenderID == viewerID:
			return models.FriendStatusRequestSent, nil
		default:
			return models.FriendStatusRequestReceived, nil
		}
	}
	return models.FriendStatusNotFriends, nil
}

// ListFriends 列出用户的全部好友（仅本人可查看）
func (fs *FriendService) ListFriends(viewer *models.User, username string) ([]models.PublicUser, error) {
	owner, err := fs.ownerOnly(viewer, username)
	if err != nil {
		return nil, err
	}

	var friends []models.User
	err = config.DB.
		Where("id IN (?) OR id IN (?)",
			config.DB.Model(&models.Friendship{}).Select("target_id").
				Where("sender_id = ? AND status = ?", owner.ID, models.FriendshipAccepted),
			config.DB.Model(&models.Friendship{}).Select("sender_id").
				Where("target_id = ? AND status = ?", owner.ID, models.FriendshipAccepted),
		).
		Order("username ASC").
		Find(&friends).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list friends: %w", err)
	}

	return toPublicUsers(friends), nil
}

// ListIncomingRequests 列出发给用户的待处理请求的发送者（仅本人可查看）
func (fs *FriendService) ListIncomingRequests(viewer *models.User, username string) ([]models.PublicUser, error) {
	owner, err := fs.ownerOnly(viewer, username)
	if err != nil {
		return nil, err
	}

	var senders []models.User
	err = config.DB.
		Joins("JOIN friendships ON friendships.sender_id = users.id").
		Where("friendships.target_id = ? AND friendships.status = ?", owner.ID, models.FriendshipPending).
		Order("friendships.created_at DESC").
		Find(&senders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list friend requests: %w", err)
	}

	return toPublicUsers(senders), nil
}

// ownerOnly 仅允许用户查看自己的数据
func (fs *FriendService) ownerOnly(viewer *models.User, username string) (*models.User, error) {
	owner, err := findUserByUsername(config.DB, username)
	if err != nil {
		return nil, err
	}
	if viewer == nil || viewer.ID != owner.ID {
		return nil, forbidden("only %s can view this list", owner.Username)
	}
	return owner, nil
}

// toPublicUsers 转换为对外展示结构
func toPublicUsers(users []models.User) []models.PublicUser {
	result := make([]models.PublicUser, 0, len(users))
	for i := range users {
		result = append(result, users[i].ToPublic())
	}
	return result
}
