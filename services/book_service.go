package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"onlinelibrary_go/config"
	"onlinelibrary_go/events"
	"onlinelibrary_go/metrics"
	"onlinelibrary_go/middleware"
	"onlinelibrary_go/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	catalogVersionKey = "catalog:version"
	catalogCacheTTL   = 5 * time.Minute
)

// BookService 书籍服务
//
// 发布状态：待审核(0) -> 已上架(1)，待审核(0) -> 已下架(2)，已上架(1) -> 已下架(2)。
// 已下架为终态。书目、搜索、购买、评分、书评和推荐都只针对已上架的书籍。
type BookService struct {
	cacheTTL time.Duration
}

// NewBookService 创建书籍服务实例
func NewBookService() *BookService {
	return &BookService{
		cacheTTL: config.GetEnvDuration("CATALOG_CACHE_TTL", catalogCacheTTL),
	}
}

// ==================== 提交与审核 ====================

// SubmitBookRequest 提交新书请求
type SubmitBookRequest struct {
	ISBN            string  `json:"isbn" binding:"required,isbn"`
	Title           string  `json:"title" binding:"required,max=100"`
	AuthorPseudonym string  `json:"author_pseudonym" binding:"required,max=50"`
	Price           float64 `json:"price" binding:"gte=0,lte=9999.99"`
	YearOfPub       int     `json:"year_of_pub" binding:"required,pubyear"`
	ImageURL        string  `json:"image_url" binding:"required,imageurl,max=1000"`
	Category        string  `json:"category" binding:"required,max=20"`
}

// validate 服务层校验（不依赖HTTP绑定）
func (req *SubmitBookRequest) validate() error {
	req.Title = strings.TrimSpace(req.Title)
	req.AuthorPseudonym = strings.TrimSpace(req.AuthorPseudonym)
	req.Category = strings.TrimSpace(req.Category)

	switch {
	case !models.ValidISBN(req.ISBN):
		return invalidInput("isbn must look like X-XXXX-XXXX-X or XXX-X-XXXX-XXXX-X")
	case req.Title == "" || len(req.Title) > models.MaxTitleLength:
		return invalidInput("title must be 1-%d characters", models.MaxTitleLength)
	case req.AuthorPseudonym == "" || len(req.AuthorPseudonym) > models.MaxPseudonymLength:
		return invalidInput("author pseudonym must be 1-%d characters", models.MaxPseudonymLength)
	case req.Price < 0:
		return invalidInput("price must not be negative")
	case !models.ValidYearOfPub(req.YearOfPub):
		return invalidInput("year of publication must be between %d and %d", models.MinYearOfPub, time.Now().Year())
	case !models.ValidImageURL(req.ImageURL):
		return invalidInput("image url must be an http(s) .jpg, .jpeg or .png address")
	case req.Category == "" || len(req.Category) > models.MaxCategoryLength:
		return invalidInput("category must be 1-%d characters", models.MaxCategoryLength)
	}
	return nil
}

// Submit 出版者提交新书，进入待审核状态
func (bs *BookService) Submit(author *models.User, req *SubmitBookRequest) (*models.Book, error) {
	// 1. 只有出版者可以提交
	if !author.AuthorizationLevel.CanPublish() {
		return nil, forbidden("only publishers can submit books")
	}

	// 2. 校验字段
	if err := req.validate(); err != nil {
		return nil, err
	}

	// 3. 在事务中创建分类（如不存在）和书籍
	authorID := author.ID
	book := models.Book{
		ISBN:            req.ISBN,
		Status:          models.BookPendingApproval,
		Title:           req.Title,
		AuthorID:        &authorID,
		AuthorPseudonym: req.AuthorPseudonym,
		Price:           req.Price,
		YearOfPub:       req.YearOfPub,
		ImageURL:        strings.TrimSpace(req.ImageURL),
	}

	err := config.DB.Transaction(func(tx *gorm.DB) error {
		category, err := findOrCreateCategory(tx, req.Category)
		if err != nil {
			return err
		}
		book.CategoryID = category.ID
		book.Category = *category

		var existing int64
		if err := tx.Model(&models.Book{}).Where("isbn = ?", book.ISBN).Count(&existing).Error; err != nil {
			return fmt.Errorf("failed to check isbn: %w", err)
		}
		if existing > 0 {
			return conflict("a book with isbn %s already exists", book.ISBN)
		}

		if err := tx.Omit("Author", "Category").Create(&book).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return conflict("a book with isbn %s already exists", book.ISBN)
			}
			return fmt.Errorf("failed to create book: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	events.Publish(events.Event{Type: events.BookSubmitted, ActorID: author.ID, BookISBN: book.ISBN})
	return &book, nil
}

// Approve 管理员批准上架
func (bs *BookService) Approve(moderator *models.User, isbn string) error {
	return bs.transition(moderator, isbn, models.BookPublished, "approve_book", events.BookApproved,
		models.BookPendingApproval)
}

// Reject 管理员拒绝待审核的书籍
func (bs *BookService) Reject(moderator *models.User, isbn string) error {
	return bs.transition(moderator, isbn, models.BookRemoved, "reject_book", events.BookRejected,
		models.BookPendingApproval)
}

// Remove 管理员下架书籍（待审核或已上架）
func (bs *BookService) Remove(moderator *models.User, isbn string) error {
	return bs.transition(moderator, isbn, models.BookRemoved, "remove_book", events.BookRemoved,
		models.BookPendingApproval, models.BookPublished)
}

// transition 带当前状态条件的状态迁移
func (bs *BookService) transition(moderator *models.User, isbn string, to models.BookStatus,
	action string, eventType events.Type, from ...models.BookStatus) error {
	// 1. 操作者必须是管理员
	if err := requireModerator(moderator); err != nil {
		return err
	}

	// 2. 条件更新，起始状态必须符合状态机
	allowed := make([]models.BookStatus, 0, len(from))
	for _, s := range from {
		if s.CanTransitionTo(to) {
			allowed = append(allowed, s)
		}
	}
	result := config.DB.Model(&models.Book{}).
		Where("isbn = ? AND status IN ?", isbn, allowed).
		Update("status", to)
	if result.Error != nil {
		return fmt.Errorf("failed to update book status: %w", result.Error)
	}

	// 3. 未更新时区分书籍不存在与状态不允许
	book, err := findBook(config.DB, isbn)
	if err != nil {
		return err
	}
	if result.RowsAffected == 0 {
		return conflict("cannot %s: book is %s", strings.ReplaceAll(action, "_", " "), book.Status)
	}

	// 4. 书目发生变化，清除缓存
	bs.InvalidateCatalog()

	metrics.RecordModerationAction(action)
	event := events.Event{Type: eventType, ActorID: moderator.ID, BookISBN: isbn}
	if book.AuthorID != nil {
		event.TargetUserID = *book.AuthorID
	}
	events.Publish(event)
	return nil
}

// findOrCreateCategory 按名称查找分类，不存在则创建
func findOrCreateCategory(tx *gorm.DB, name string) (*models.Category, error) {
	category := models.Category{Name: name}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&category).Error; err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	if err := tx.Where("name = ?", name).First(&category).Error; err != nil {
		return nil, wrapLookup(err, "category")
	}
	return &category, nil
}

// ==================== 书目 ====================

// CatalogQuery 书目查询条件
type CatalogQuery struct {
	Page     int    `form:"page"`
	Limit    int    `form:"limit"`
	Category string `form:"category"`
	Query    string `form:"q"`
}

// CatalogPage 书目分页结果
type CatalogPage struct {
	Books []models.BookSummary `json:"books"`
	Total int64                `json:"total"`
	Page  int                  `json:"page"`
	Limit int                  `json:"limit"`
}

// ListCatalog 已上架书籍列表（按出版年份倒序），附带平均评分
func (bs *BookService) ListCatalog(q CatalogQuery) (*CatalogPage, error) {
	q.Page, q.Limit = pagination(q.Page, q.Limit)
	q.Category = strings.TrimSpace(q.Category)
	q.Query = strings.TrimSpace(q.Query)

	// 1. 尝试从Redis获取
	cacheKey := bs.catalogCacheKey(q)
	if cacheKey != "" {
		ctx, cancel := redisContext()
		cached, err := config.RedisClient.Get(ctx, cacheKey).Result()
		cancel()
		if err == nil {
			var page CatalogPage
			if json.Unmarshal([]byte(cached), &page) == nil {
				metrics.RecordCatalogCache(true)
				return &page, nil
			}
		}
		metrics.RecordCatalogCache(false)
	}

	// 2. 构建查询
	query := config.DB.Model(&models.Book{}).Where("books.status = ?", models.BookPublished)
	if q.Category != "" {
		query = query.Joins("JOIN categories ON categories.id = books.category_id").
			Where("categories.name = ?", q.Category)
	}
	if q.Query != "" {
		like := "%" + strings.ToLower(q.Query) + "%"
		query = query.Where("LOWER(books.title) LIKE ? OR LOWER(books.author_pseudonym) LIKE ? OR books.isbn = ?", like, like, q.Query)
	}

	// 3. 获取总数
	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count books: %w", err)
	}

	// 4. 获取数据
	var books []models.Book
	if err := query.Session(&gorm.Session{}).
		Preload("Category").
		Order("books.year_of_pub DESC").
		Order("books.title ASC").
		Limit(q.Limit).
		Offset((q.Page - 1) * q.Limit).
		Find(&books).Error; err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}

	summaries, err := summarize(config.DB, books)
	if err != nil {
		return nil, err
	}
	page := &CatalogPage{Books: summaries, Total: total, Page: q.Page, Limit: q.Limit}

	// 5. 写入缓存
	if cacheKey != "" {
		if data, err := json.Marshal(page); err == nil {
			ctx, cancel := redisContext()
			config.RedisClient.Set(ctx, cacheKey, data, bs.cacheTTL)
			cancel()
		}
	}

	return page, nil
}

// InvalidateCatalog 使所有书目缓存失效（递增版本号，旧key自然过期）
func (bs *BookService) InvalidateCatalog() {
	if config.RedisClient == nil {
		return
	}
	ctx, cancel := redisContext()
	defer cancel()
	if err := config.RedisClient.Incr(ctx, catalogVersionKey).Err(); err != nil {
		middleware.WarnLogger("failed to invalidate catalog cache", zap.Error(err))
	}
}

// catalogCacheKey 构建书目缓存key，Redis不可用时返回空字符串
func (bs *BookService) catalogCacheKey(q CatalogQuery) string {
	if config.RedisClient == nil {
		return ""
	}
	ctx, cancel := redisContext()
	defer cancel()
	version, err := config.RedisClient.Get(ctx, catalogVersionKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return ""
	}
	return fmt.Sprintf("catalog:v%d:%d:%d:%s:%s", version, q.Page, q.Limit, q.Category, strings.ToLower(q.Query))
}

// ratingStat 评分聚合
type ratingStat struct {
	BookISBN  string
	AvgRating float64
	NbRatings int64
}

// summarize 为书籍附加评分统计
func summarize(db *gorm.DB, books []models.Book) ([]models.BookSummary, error) {
	summaries := make([]models.BookSummary, 0, len(books))
	if len(books) == 0 {
		return summaries, nil
	}

	isbns := make([]string, 0, len(books))
	for _, b := range books {
		isbns = append(isbns, b.ISBN)
	}

	var stats []ratingStat
	if err := db.Model(&models.Rating{}).
		Select("book_isbn, AVG(evaluation) AS avg_rating, COUNT(*) AS nb_ratings").
		Where("book_isbn IN ?", isbns).
		Group("book_isbn").
		Scan(&stats).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate ratings: %w", err)
	}

	byISBN := make(map[string]ratingStat, len(stats))
	for _, s := range stats {
		byISBN[s.BookISBN] = s
	}
	for _, b := range books {
		s := byISBN[b.ISBN]
		summaries = append(summaries, models.BookSummary{Book: b, AvgRating: s.AvgRating, NbRatings: s.NbRatings})
	}
	return summaries, nil
}

// ==================== 详情 ====================

// BookDetails 书籍详情
type BookDetails struct {
	Book        models.Book  `json:"book"`
	TimesBought int64        `json:"times_bought"`
	NbRatings   int64        `json:"nb_ratings"`
	AvgRating   float64      `json:"avg_rating"`
	NbReviews   int64        `json:"nb_reviews"`
	UserRating  *int         `json:"user_rating,omitempty"`
	Owned       bool         `json:"owned"`
	Reviews     []ReviewView `json:"reviews"`
}

// GetBookDetails 书籍详情；未上架的书籍仅作者本人和管理员可见
func (bs *BookService) GetBookDetails(viewer *models.User, isbn string) (*BookDetails, error) {
	// 1. 加载书籍并判断可见性
	var book models.Book
	if err := config.DB.Preload("Category").Where("isbn = ?", isbn).First(&book).Error; err != nil {
		return nil, wrapLookup(err, "book")
	}
	if !book.IsPublished() {
		if viewer == nil || !(viewer.AuthorizationLevel.IsModerator() || book.IsAuthoredBy(viewer.ID)) {
			return nil, notFound("book not found")
		}
	}

	details := &BookDetails{Book: book}

	// 2. 统计
	if err := config.DB.Model(&models.Ownership{}).Where("book_isbn = ?", isbn).Count(&details.TimesBought).Error; err != nil {
		return nil, fmt.Errorf("failed to count purchases: %w", err)
	}
	summaries, err := summarize(config.DB, []models.Book{book})
	if err != nil {
		return nil, err
	}
	details.AvgRating = summaries[0].AvgRating
	details.NbRatings = summaries[0].NbRatings
	if err := config.DB.Model(&models.Review{}).Where("book_isbn = ?", isbn).Count(&details.NbReviews).Error; err != nil {
		return nil, fmt.Errorf("failed to count reviews: %w", err)
	}

	// 3. 当前用户的评分与拥有情况
	if viewer != nil {
		var rating models.Rating
		err := config.DB.Where("user_id = ? AND book_isbn = ?", viewer.ID, isbn).First(&rating).Error
		if err == nil {
			details.UserRating = &rating.Evaluation
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to load rating: %w", err)
		}
		if details.Owned, err = owns(config.DB, viewer.ID, isbn); err != nil {
			return nil, fmt.Errorf("failed to check ownership: %w", err)
		}
	}

	// 4. 书评
	if details.Reviews, err = listReviewViews(config.DB.Where("reviews.book_isbn = ?", isbn)); err != nil {
		return nil, err
	}

	return details, nil
}

// ==================== 购买 ====================

// Buy 购买书籍：扣减余额与记录拥有关系在同一事务中完成
func (bs *BookService) Buy(user *models.User, isbn string) (*models.Ownership, error) {
	// 1. 被封禁用户不能购买
	if err := requireActive(user); err != nil {
		return nil, err
	}

	// 2. 书籍必须已上架
	book, err := findPublishedBook(config.DB, isbn)
	if err != nil {
		return nil, err
	}

	ownership := models.Ownership{UserID: user.ID, BookISBN: book.ISBN, Price: book.Price}
	err = config.DB.Transaction(func(tx *gorm.DB) error {
		// 3. 已拥有则冲突
		owned, err := owns(tx, user.ID, book.ISBN)
		if err != nil {
			return fmt.Errorf("failed to check ownership: %w", err)
		}
		if owned {
			return conflict("you already own this book")
		}

		// 4. 余额充足时扣款
		result := tx.Model(&models.User{}).
			Where("id = ? AND balance >= ?", user.ID, book.Price).
			Update("balance", gorm.Expr("balance - ?", book.Price))
		if result.Error != nil {
			return fmt.Errorf("failed to debit balance: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return forbidden("insufficient balance")
		}

		// 5. 记录拥有关系，并发重复购买由主键兜底并回滚扣款
		insert := tx.Omit("User", "Book").Clauses(clause.OnConflict{DoNothing: true}).Create(&ownership)
		if insert.Error != nil {
			return fmt.Errorf("failed to record ownership: %w", insert.Error)
		}
		if insert.RowsAffected == 0 {
			return conflict("you already own this book")
		}

		return tx.Model(&models.User{}).Select("balance").Where("id = ?", user.ID).Scan(&user.Balance).Error
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordPurchase(book.Price)
	events.Publish(events.Event{Type: events.BookPurchased, ActorID: user.ID, BookISBN: book.ISBN})
	ownership.Book = *book
	return &ownership, nil
}

// ==================== 出版列表 ====================

// ListPublishedBy 用户出版的书籍；作者本人和管理员还能看到未上架的书籍
func (bs *BookService) ListPublishedBy(viewer *models.User, username string) ([]models.BookSummary, error) {
	author, err := findUserByUsername(config.DB, username)
	if err != nil {
		return nil, err
	}
	if !canViewPrivateContent(viewer, author) {
		return nil, forbidden("%s's books are private", author.Username)
	}

	query := config.DB.Preload("Category").Where("author_id = ?", author.ID)
	if viewer == nil || !(viewer.ID == author.ID || viewer.AuthorizationLevel.IsModerator()) {
		query = query.Where("status = ?", models.BookPublished)
	}

	var books []models.Book
	if err := query.Order("created_at DESC").Find(&books).Error; err != nil {
		return nil, fmt.Errorf("failed to list published books: %w", err)
	}
	return summarize(config.DB, books)
}
