package models

import (
	"time"

	"gorm.io/gorm"
)

// 评分取值范围
const (
	MinEvaluation = 1
	MaxEvaluation = 5
)

// Rating 用户对书籍的评分，每个用户每本书最多一条
type Rating struct {
	ID         string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID     string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_rating_user_book" json:"user_id"`
	BookISBN   string    `gorm:"type:varchar(17);not null;uniqueIndex:idx_rating_user_book;index" json:"book_isbn"`
	Evaluation int       `gorm:"not null;check:evaluation >= 1 AND evaluation <= 5" json:"evaluation"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// 关联关系
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Book Book `gorm:"foreignKey:BookISBN;references:ISBN;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName 指定表名
func (Rating) TableName() string {
	return "ratings"
}

// BeforeCreate 创建前钩子
func (r *Rating) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = generateUUID()
	}
	return nil
}

// ValidEvaluation 评分是否在合法范围内
func ValidEvaluation(v int) bool {
	return v >= MinEvaluation && v <= MaxEvaluation
}

// Review 书评，与评分一一对应
type Review struct {
	ID         string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	RatingID   string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"rating_id"`
	UserID     string    `gorm:"type:varchar(36);not null;index" json:"user_id"`
	BookISBN   string    `gorm:"type:varchar(17);not null;index" json:"book_isbn"`
	Summary    string    `gorm:"type:varchar(140);not null" json:"summary"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	NbLikes    int       `gorm:"not null;default:0" json:"nb_likes"`
	NbDislikes int       `gorm:"not null;default:0" json:"nb_dislikes"`
	NbReports  int       `gorm:"not null;default:0;index" json:"nb_reports"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// 关联关系
	Rating   Rating    `gorm:"foreignKey:RatingID;constraint:OnDelete:CASCADE" json:"rating,omitempty"`
	User     User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Comments []Comment `gorm:"foreignKey:ReviewID;constraint:OnDelete:CASCADE" json:"comments,omitempty"`
}

// TableName 指定表名
func (Review) TableName() string {
	return "reviews"
}

// BeforeCreate 创建前钩子
func (r *Review) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = generateUUID()
	}
	return nil
}

// VoteDirection 投票方向
type VoteDirection string

const (
	VoteUp   VoteDirection = "up"
	VoteDown VoteDirection = "down"
)

// Valid 是否为合法的投票方向
func (d VoteDirection) Valid() bool {
	return d == VoteUp || d == VoteDown
}

// ReviewVote 书评投票记录，每个用户对每条书评只能投一次
type ReviewVote struct {
	ReviewID  string        `gorm:"type:varchar(36);primaryKey" json:"review_id"`
	UserID    string        `gorm:"type:varchar(36);primaryKey;index" json:"user_id"`
	Direction VoteDirection `gorm:"type:varchar(8);not null" json:"direction"`
	CreatedAt time.Time     `json:"created_at"`

	// 关联关系
	Review Review `gorm:"foreignKey:ReviewID;constraint:OnDelete:CASCADE" json:"-"`
	User   User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName 指定表名
func (ReviewVote) TableName() string {
	return "review_votes"
}

// Comment 书评下的评论，只能追加
type Comment struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	ReviewID  string    `gorm:"type:varchar(36);not null;index" json:"review_id"`
	UserID    string    `gorm:"type:varchar(36);not null;index" json:"user_id"`
	Content   string    `gorm:"type:varchar(1000);not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`

	// 关联关系
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
}

// TableName 指定表名
func (Comment) TableName() string {
	return "comments"
}

// BeforeCreate 创建前钩子
func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = generateUUID()
	}
	return nil
}

// AllModels 返回需要自动迁移的全部模型，顺序保证外键依赖先于引用方创建
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Category{},
		&Book{},
		&Ownership{},
		&Friendship{},
		&Recommendation{},
		&Rating{},
		&Review{},
		&ReviewVote{},
		&Comment{},
	}
}
