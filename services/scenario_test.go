package services

import (
	"testing"

	"onlinelibrary_go/models"
)

// TestMarketplaceScenario 从出版者审核到好友推荐的完整流程
func TestMarketplaceScenario(t *testing.T) {
	setupTestDB(t)
	publishers := NewPublisherService()
	books := NewBookService()
	recs := NewRecommendationService()

	mod := createUser(t, "mod", models.LevelModerator, 0)
	pub := createUser(t, "pub", models.LevelBasic, 0)
	carol := createUser(t, "carol", models.LevelBasic, 30)
	dave := createUser(t, "dave", models.LevelBasic, 0)

	// 1. 出版者申请并获批
	if err := publishers.RequestPublisher(pub); err != nil {
		t.Fatalf("request publisher: %v", err)
	}
	if err := publishers.ApprovePublisher(mod, "pub"); err != nil {
		t.Fatalf("approve publisher: %v", err)
	}
	pub = reload(t, pub.ID)
	if pub.AuthorizationLevel != models.LevelPublisher {
		t.Fatalf("expected publisher, got %v", pub.AuthorizationLevel)
	}

	// 2. 提交新书，审核前不可购买
	book, err := books.Submit(pub, validSubmitRequest("978-0-1234-5678-9"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	_, err = books.Buy(carol, book.ISBN)
	expectErr(t, err, ErrNotFound)

	// 3. 管理员批准上架
	if err := books.Approve(mod, book.ISBN); err != nil {
		t.Fatalf("approve book: %v", err)
	}

	// 4. 购买并扣减余额
	if _, err := books.Buy(carol, book.ISBN); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if got := reload(t, carol.ID).Balance; got != 17.5 {
		t.Fatalf("expected balance 17.5, got %v", got)
	}

	// 5. 成为好友后推荐给对方，重复推荐被拒绝
	makeFriends(t, carol, dave)
	if _, err := recs.Recommend(carol, book.ISBN, "dave"); err != nil {
		t.Fatalf("recommend: %v", err)
	}
	_, err = recs.Recommend(carol, book.ISBN, "dave")
	expectErr(t, err, ErrConflict)
	if n := countRows(t, &models.Recommendation{}, "target_id = ?", dave.ID); n != 1 {
		t.Fatalf("expected one recommendation for dave, got %d", n)
	}

	inbox, err := recs.Inbox(dave, "dave")
	if err != nil {
		t.Fatalf("inbox: %v", err)
	}
	if len(inbox) != 1 || inbox[0].Book.Title != "The Go Gopher" {
		t.Fatalf("unexpected inbox: %+v", inbox)
	}
}
