package models

import (
	"time"

	"gorm.io/gorm"
)

// Friendship 好友关系
// Sender 为发起请求的一方；PairKey 为无序用户对的规范键
type Friendship struct {
	ID        string           `gorm:"type:varchar(36);primaryKey" json:"id"`
	SenderID  string           `gorm:"type:varchar(36);not null;uniqueIndex:idx_friendship_sender_target" json:"sender_id"`
	TargetID  string           `gorm:"type:varchar(36);not null;uniqueIndex:idx_friendship_sender_target;index" json:"target_id"`
	PairKey   string           `gorm:"type:varchar(73);not null;uniqueIndex" json:"-"`
	Status    FriendshipStatus `gorm:"not null;default:0;comment:0=待处理,1=已接受" json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`

	// 关联关系
	Sender User `gorm:"foreignKey:SenderID;constraint:OnDelete:CASCADE" json:"sender,omitempty"`
	Target User `gorm:"foreignKey:TargetID;constraint:OnDelete:CASCADE" json:"target,omitempty"`
}

// TableName 指定表名
func (Friendship) TableName() string {
	return "friendships"
}

// BeforeCreate 创建前钩子
func (f *Friendship) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = generateUUID()
	}
	f.PairKey = PairKey(f.SenderID, f.TargetID)
	return nil
}
