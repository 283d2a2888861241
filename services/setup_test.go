package services

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"onlinelibrary_go/config"
	"onlinelibrary_go/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
)

// setupTestDB 每个测试使用独立的临时SQLite数据库，Redis默认关闭
func setupTestDB(t *testing.T) {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "library.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := config.OpenDatabase(sqlite.Open(dsn))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := config.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	config.DB = db
	config.RedisClient = nil
	t.Cleanup(func() {
		config.DB = nil
		_ = sqlDB.Close()
	})
}

// setupTestRedis 启用基于miniredis的Redis
func setupTestRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	config.RedisClient = client
	t.Cleanup(func() {
		config.RedisClient = nil
		_ = client.Close()
	})
	return mr
}

// createUser 直接写入用户，等级为0时需要单独更新（gorm会对零值使用列默认值）
func createUser(t *testing.T, username string, level models.AuthorizationLevel, balance float64) *models.User {
	t.Helper()
	user := models.User{
		Username:           username,
		FirstName:          "Test",
		LastName:           username,
		Email:              username + "@example.com",
		Password:           "not-a-real-hash",
		Balance:            balance,
		AuthorizationLevel: level,
	}
	if err := config.DB.Create(&user).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	if level == models.LevelBlocked {
		if err := config.DB.Model(&user).Update("authorization_level", models.LevelBlocked).Error; err != nil {
			t.Fatalf("block user %s: %v", username, err)
		}
	}
	return reload(t, user.ID)
}

// reload 重新加载用户的最新状态
func reload(t *testing.T, id string) *models.User {
	t.Helper()
	var user models.User
	if err := config.DB.Where("id = ?", id).First(&user).Error; err != nil {
		t.Fatalf("reload user %s: %v", id, err)
	}
	return &user
}

var isbnSeq = 0

// createBook 直接写入一本指定状态的书籍
func createBook(t *testing.T, author *models.User, status models.BookStatus, price float64) *models.Book {
	t.Helper()
	isbnSeq++
	category := models.Category{Name: "Fiction"}
	if err := config.DB.Where("name = ?", category.Name).FirstOrCreate(&category).Error; err != nil {
		t.Fatalf("create category: %v", err)
	}

	book := models.Book{
		ISBN:            fmt.Sprintf("978-1-%04d-0000-1", isbnSeq),
		Status:          status,
		Title:           fmt.Sprintf("Book %d", isbnSeq),
		AuthorPseudonym: "Anon",
		Price:           price,
		YearOfPub:       2001,
		ImageURL:        "https://example.com/cover.jpg",
		CategoryID:      category.ID,
	}
	if author != nil {
		book.AuthorID = &author.ID
	}
	if err := config.DB.Omit("Author", "Category").Create(&book).Error; err != nil {
		t.Fatalf("create book: %v", err)
	}
	return &book
}

// makeFriends 建立已接受的好友关系
func makeFriends(t *testing.T, a, b *models.User) {
	t.Helper()
	fs := NewFriendService()
	if _, err := fs.SendRequest(a, b.Username); err != nil {
		t.Fatalf("send request: %v", err)
	}
	if err := fs.Accept(b, a.Username); err != nil {
		t.Fatalf("accept request: %v", err)
	}
}

// giveBook 记录拥有关系
func giveBook(t *testing.T, user *models.User, book *models.Book) {
	t.Helper()
	if err := config.DB.Omit("User", "Book").Create(&models.Ownership{UserID: user.ID, BookISBN: book.ISBN, Price: book.Price}).Error; err != nil {
		t.Fatalf("give book: %v", err)
	}
}

// countRows 统计表中满足条件的行数
func countRows(t *testing.T, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := config.DB.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return n
}

// expectErr 断言错误属于指定分类
func expectErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}
