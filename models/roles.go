package models

// AuthorizationLevel 用户权限等级（有序）
type AuthorizationLevel int

const (
	LevelBlocked          AuthorizationLevel = 0 // 已封禁
	LevelBasic            AuthorizationLevel = 1 // 普通用户
	LevelPublisherPending AuthorizationLevel = 2 // 出版者申请中
	LevelPublisher        AuthorizationLevel = 3 // 出版者
	LevelModerator        AuthorizationLevel = 4 // 管理员
)

// String 返回权限等级名称
func (l AuthorizationLevel) String() string {
	switch l {
	case LevelBlocked:
		return "blocked"
	case LevelBasic:
		return "basic"
	case LevelPublisherPending:
		return "publisher_pending"
	case LevelPublisher:
		return "publisher"
	case LevelModerator:
		return "moderator"
	}
	return "unknown"
}

// Valid 是否为合法的权限等级
func (l AuthorizationLevel) Valid() bool {
	return l >= LevelBlocked && l <= LevelModerator
}

// IsModerator 是否为管理员
func (l AuthorizationLevel) IsModerator() bool {
	return l == LevelModerator
}

// IsBlocked 是否已被封禁
func (l AuthorizationLevel) IsBlocked() bool {
	return l == LevelBlocked
}

// CanPublish 是否可以提交新书（仅限出版者）
func (l AuthorizationLevel) CanPublish() bool {
	return l == LevelPublisher
}

// PrivacyLevel 个人主页隐私等级
type PrivacyLevel int

const (
	PrivacyPublic           PrivacyLevel = 0 // 对所有人公开
	PrivacyHiddenToVisitors PrivacyLevel = 1 // 对未登录访客隐藏
	PrivacyHiddenToAll      PrivacyLevel = 2 // 对所有人隐藏
)

// String 返回隐私等级名称
func (p PrivacyLevel) String() string {
	switch p {
	case PrivacyPublic:
		return "public"
	case PrivacyHiddenToVisitors:
		return "hidden_to_visitors"
	case PrivacyHiddenToAll:
		return "hidden_to_all"
	}
	return "unknown"
}

// Valid 是否为合法的隐私等级
func (p PrivacyLevel) Valid() bool {
	return p >= PrivacyPublic && p <= PrivacyHiddenToAll
}

// FriendshipStatus 好友关系状态
type FriendshipStatus int

const (
	FriendshipPending  FriendshipStatus = 0 // 等待对方确认
	FriendshipAccepted FriendshipStatus = 1 // 已成为好友
)

// BookStatus 书籍发布状态
type BookStatus int

const (
	BookPendingApproval BookStatus = 0 // 等待审核
	BookPublished       BookStatus = 1 // 已上架
	BookRemoved         BookStatus = 2 // 已下架（终态）
)

// String 返回书籍状态名称
func (s BookStatus) String() string {
	switch s {
	case BookPendingApproval:
		return "pending_approval"
	case BookPublished:
		return "published"
	case BookRemoved:
		return "removed"
	}
	return "unknown"
}

// CanTransitionTo 书籍状态是否允许迁移到目标状态
// Removed 为终态，任何状态都不能回到 PendingApproval
func (s BookStatus) CanTransitionTo(next BookStatus) bool {
	switch s {
	case BookPendingApproval:
		return next == BookPublished || next == BookRemoved
	case BookPublished:
		return next == BookRemoved
	}
	return false
}

// FriendStatus 观察者与目标用户之间的关系（仅用于展示，不存储）
type FriendStatus string

const (
	FriendStatusSelf            FriendStatus = "self"
	FriendStatusRequestSent     FriendStatus = "request_sent"
	FriendStatusRequestReceived FriendStatus = "request_received"
	FriendStatusFriends         FriendStatus = "friends"
	FriendStatusNotFriends      FriendStatus = "not_friends"
)
