package models

import (
	"regexp"
	"strings"
	"time"
)

// 书籍字段约束
const (
	MaxTitleLength     = 100
	MaxPseudonymLength = 50
	MaxCategoryLength  = 20
	MinYearOfPub       = 1901
)

var (
	// isbnPattern X-XXXX-XXXX-X，可带三位前缀
	isbnPattern = regexp.MustCompile(`^([0-9]{3}-)?[0-9]-[0-9]{4}-[0-9]{4}-[0-9]$`)
	// imageURLPattern 仅接受 http(s) 的 jpg/jpeg/png 地址
	imageURLPattern = regexp.MustCompile(`(?i)^https?://[^\s/$.?#][^\s]*\.(jpg|jpeg|png)$`)
)

// ValidISBN 校验ISBN格式
func ValidISBN(isbn string) bool {
	return isbnPattern.MatchString(isbn)
}

// ValidImageURL 校验封面图片地址
func ValidImageURL(url string) bool {
	return imageURLPattern.MatchString(strings.TrimSpace(url))
}

// ValidYearOfPub 校验出版年份（1901 至今年）
func ValidYearOfPub(year int) bool {
	return year >= MinYearOfPub && year <= time.Now().Year()
}

// Category 书籍分类
type Category struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(20);uniqueIndex;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName 指定表名
func (Category) TableName() string {
	return "categories"
}

// Book 书籍模型，ISBN 为主键
type Book struct {
	ISBN            string     `gorm:"type:varchar(17);primaryKey;comment:X-XXXX-XXXX-X 或 XXX-X-XXXX-XXXX-X" json:"isbn"`
	Status          BookStatus `gorm:"not null;default:0;index;comment:0=待审核,1=已上架,2=已下架" json:"status"`
	Title           string     `gorm:"type:varchar(100);not null;index" json:"title"`
	AuthorID        *string    `gorm:"type:varchar(36);index;comment:出版者用户ID，导入的书籍为空" json:"author_id,omitempty"`
	AuthorPseudonym string     `gorm:"type:varchar(50);not null" json:"author_pseudonym"`
	Price           float64    `gorm:"type:decimal(6,2);not null" json:"price"`
	YearOfPub       int        `gorm:"not null;index" json:"year_of_pub"`
	ImageURL        string     `gorm:"type:varchar(1000)" json:"image_url"`
	CategoryID      uint       `gorm:"not null;index" json:"category_id"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	// 关联关系
	Author   *User    `gorm:"foreignKey:AuthorID;constraint:OnDelete:SET NULL" json:"author,omitempty"`
	Category Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
}

// TableName 指定表名
func (Book) TableName() string {
	return "books"
}

// IsPublished 是否已上架
func (b *Book) IsPublished() bool {
	return b.Status == BookPublished
}

// IsAuthoredBy 是否由指定用户出版
func (b *Book) IsAuthoredBy(userID string) bool {
	return b.AuthorID != nil && *b.AuthorID == userID
}

// BookSummary 书籍列表项（附带评分统计）
type BookSummary struct {
	Book
	AvgRating float64 `json:"avg_rating"`
	NbRatings int64   `json:"nb_ratings"`
}
