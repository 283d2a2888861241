package models

import (
	"time"

	"gorm.io/gorm"
)

// User 用户模型
type User struct {
	ID                 string             `gorm:"type:varchar(36);primaryKey;comment:用户ID (UUID)" json:"id"`
	Username           string             `gorm:"type:varchar(150);uniqueIndex;not null;comment:用户名" json:"username"`
	FirstName          string             `gorm:"type:varchar(30);not null;comment:名" json:"first_name"`
	LastName           string             `gorm:"type:varchar(150);not null;comment:姓" json:"last_name"`
	Email              string             `gorm:"type:varchar(150);not null;comment:邮箱" json:"email,omitempty"`
	Address            string             `gorm:"type:varchar(300);comment:地址" json:"address,omitempty"`
	Birthday           *time.Time         `gorm:"type:date;comment:生日" json:"birthday,omitempty"`
	Password           string             `gorm:"type:varchar(255);not null;comment:密码" json:"-"` // 不返回给前端
	Balance            float64            `gorm:"type:decimal(10,2);not null;default:0;comment:余额" json:"balance"`
	AuthorizationLevel AuthorizationLevel `gorm:"not null;default:1;index;comment:0=封禁,1=普通,2=出版者申请中,3=出版者,4=管理员" json:"authorization_level"`
	PrivacyLevel       PrivacyLevel       `gorm:"not null;default:0;comment:0=公开,1=对访客隐藏,2=对所有人隐藏" json:"privacy_level"`
	LastLogin          *time.Time         `gorm:"comment:最后登录时间" json:"last_login,omitempty"`
	CreatedAt          time.Time          `gorm:"comment:创建时间" json:"created_at"`
	UpdatedAt          time.Time          `gorm:"comment:更新时间" json:"updated_at"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// BeforeCreate 创建前钩子
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = generateUUID()
	}
	return nil
}

// PublicUser 对外展示的用户信息（不含邮箱、地址、余额）
type PublicUser struct {
	ID                 string             `json:"id"`
	Username           string             `json:"username"`
	FirstName          string             `json:"first_name"`
	LastName           string             `json:"last_name"`
	AuthorizationLevel AuthorizationLevel `json:"authorization_level"`
	PrivacyLevel       PrivacyLevel       `json:"privacy_level"`
}

// ToPublic 转换为对外展示结构
func (u *User) ToPublic() PublicUser {
	return PublicUser{
		ID:                 u.ID,
		Username:           u.Username,
		FirstName:          u.FirstName,
		LastName:           u.LastName,
		AuthorizationLevel: u.AuthorizationLevel,
		PrivacyLevel:       u.PrivacyLevel,
	}
}

// Ownership 用户已购书籍
type Ownership struct {
	UserID    string    `gorm:"type:varchar(36);primaryKey" json:"user_id"`
	BookISBN  string    `gorm:"type:varchar(17);primaryKey;index" json:"book_isbn"`
	Price     float64   `gorm:"type:decimal(6,2);not null;comment:购买价格" json:"price"`
	CreatedAt time.Time `json:"created_at"`

	// 关联关系
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Book Book `gorm:"foreignKey:BookISBN;references:ISBN;constraint:OnDelete:CASCADE" json:"book,omitempty"`
}

// TableName 指定表名
func (Ownership) TableName() string {
	return "ownerships"
}
