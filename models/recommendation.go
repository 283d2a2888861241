package models

import (
	"time"

	"gorm.io/gorm"
)

// Recommendation 好友之间的书籍推荐，创建后不可修改
type Recommendation struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	SenderID  string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_recommendation_triple" json:"sender_id"`
	TargetID  string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_recommendation_triple;index" json:"target_id"`
	BookISBN  string    `gorm:"type:varchar(17);not null;uniqueIndex:idx_recommendation_triple" json:"book_isbn"`
	CreatedAt time.Time `json:"created_at"`

	// 关联关系
	Sender User `gorm:"foreignKey:SenderID;constraint:OnDelete:CASCADE" json:"sender,omitempty"`
	Target User `gorm:"foreignKey:TargetID;constraint:OnDelete:CASCADE" json:"-"`
	Book   Book `gorm:"foreignKey:BookISBN;references:ISBN;constraint:OnDelete:CASCADE" json:"book,omitempty"`
}

// TableName 指定表名
func (Recommendation) TableName() string {
	return "recommendations"
}

// BeforeCreate 创建前钩子
func (r *Recommendation) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = generateUUID()
	}
	return nil
}
