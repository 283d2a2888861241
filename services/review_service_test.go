package services

import (
	"testing"

	"onlinelibrary_go/config"
	"onlinelibrary_go/models"
)

func writeTestReview(t *testing.T, user *models.User, book *models.Book) *models.Review {
	t.Helper()
	review, err := NewReviewService().WriteReview(user, book.ISBN, &WriteReviewRequest{
		Evaluation: 4,
		Summary:    "Worth reading",
		Content:    "A thoughtful book with a <b>strong</b> ending.",
	})
	if err != nil {
		t.Fatalf("write review: %v", err)
	}
	return review
}

func TestRateBook(t *testing.T) {
	setupTestDB(t)
	rs := NewReviewService()
	pub := createUser(t, "pub", models.LevelPublisher, 0)
	reader := createUser(t, "reader", models.LevelBasic, 0)
	book := createBook(t, pub, models.BookPublished, 5)

	for _, bad := range []int{0, 6, -1} {
		_, err := rs.Rate(reader, book.ISBN, bad)
		expectErr(t, err, ErrInvalidInput)
	}
	if n := countRows(t, &models.Rating{}, ""); n != 0 {
		t.Fatalf("invalid ratings must not be stored, got %d rows", n)
	}

	if _, err := rs.Rate(reader, book.ISBN, 3); err != nil {
		t.Fatalf("rate 3: %v", err)
	}
	rating, err := rs.Rate(reader, book.ISBN, 5)
	if err != nil {
		t.Fatalf("rate 5: %v", err)
	}
	if rating.Evaluation != 5 {
		t.Fatalf("expected evaluation 5, got %d", rating.Evaluation)
	}
	if n := countRows(t, &models.Rating{}, "user_id = ? AND book_isbn = ?", reader.ID, book.ISBN); n != 1 {
		t.Fatalf("expected exactly one rating row, got %d", n)
	}

	pending := createBook(t, pub, models.BookPendingApproval, 5)
	_, err = rs.Rate(reader, pending.ISBN, 4)
	expectErr(t, err, ErrNotFound)
}

func TestWriteReview(t *testing.T) {
	setupTestDB(t)
	rs := NewReviewService()
	pub := createUser(t, "pub", models.LevelPublisher, 0)
	reader := createUser(t, "reader", models.LevelBasic, 0)
	book := createBook(t, pub, models.BookPublished, 5)

	review := writeTestReview(t, reader, book)
	if review.Content != "A thoughtful book with a strong ending." {
		t.Fatalf("expected sanitized content, got %q", review.Content)
	}
	if review.Rating.Evaluation != 4 {
		t.Fatalf("expected linked rating of 4, got %d", review.Rating.Evaluation)
	}

	_, err := rs.WriteReview(reader, book.ISBN, &WriteReviewRequest{Evaluation: 2, Summary: "again", Content: "again"})
	expectErr(t, err, ErrConflict)

	// 冲突时整个事务回滚，评分保持原值
	var rating models.Rating
	if err := config.DB.Where("user_id = ?", reader.ID).First(&rating).Error; err != nil {
		t.Fatalf("load rating: %v", err)
	}
	if rating.Evaluation != 4 {
		t.Fatalf("rating must be unchanged after conflict, got %d", rating.Evaluation)
	}
}

func TestVoteReviewOncePerVoter(t *testing.T) {
	setupTestDB(t)
	rs := NewReviewService()
	pub := createUser(t, "pub", models.LevelPublisher, 0)
	author := createUser(t, "author", models.LevelBasic, 0)
	voter := createUser(t, "voter", models.LevelBasic, 0)
	critic := createUser(t, "critic", models.LevelBasic, 0)
	review := writeTestReview(t, author, createBook(t, pub, models.BookPublished, 5))

	updated, err := rs.VoteReview(voter, review.ID, models.VoteUp)
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if updated.NbLikes != 1 {
		t.Fatalf("expected 1 like, got %d", updated.NbLikes)
	}

	_, err = rs.VoteReview(voter, review.ID, models.VoteUp)
	expectErr(t, err, ErrConflict)
	_, err = rs.VoteReview(voter, review.ID, models.VoteDown)
	expectErr(t, err, ErrConflict)

	// 反对票增加点踩数，不影响点赞数
	updated, err = rs.VoteReview(critic, review.ID, models.VoteDown)
	if err != nil {
		t.Fatalf("down vote: %v", err)
	}
	if updated.NbLikes != 1 || updated.NbDislikes != 1 {
		t.Fatalf("expected 1 like and 1 dislike, got %d/%d", updated.NbLikes, updated.NbDislikes)
	}
	if n := countRows(t, &models.ReviewVote{}, "review_id = ?", review.ID); n != 2 {
		t.Fatalf("expected 2 voters, got %d", n)
	}

	_, err = rs.VoteReview(voter, review.ID, models.VoteDirection("sideways"))
	expectErr(t, err, ErrInvalidInput)
}

func TestDeleteReviewRemovesCommentsKeepsRating(t *testing.T) {
	setupTestDB(t)
	rs := NewReviewService()
	pub := createUser(t, "pub", models.LevelPublisher, 0)
	author := createUser(t, "author", models.LevelBasic, 0)
	other := createUser(t, "other", models.LevelBasic, 0)
	mod := createUser(t, "mod", models.LevelModerator, 0)
	review := writeTestReview(t, author, createBook(t, pub, models.BookPublished, 5))

	if _, err := rs.CommentReview(other, review.ID, "Agreed!"); err != nil {
		t.Fatalf("comment: %v", err)
	}
	if _, err := rs.VoteReview(other, review.ID, models.VoteUp); err != nil {
		t.Fatalf("vote: %v", err)
	}

	expectErr(t, rs.DeleteReview(other, review.ID), ErrForbidden)

	if err := rs.DeleteReview(mod, review.ID); err != nil {
		t.Fatalf("delete review: %v", err)
	}
	if n := countRows(t, &models.Review{}, ""); n != 0 {
		t.Fatalf("expected review deleted, got %d", n)
	}
	if n := countRows(t, &models.Comment{}, ""); n != 0 {
		t.Fatalf("expected comments deleted, got %d", n)
	}
	if n := countRows(t, &models.ReviewVote{}, ""); n != 0 {
		t.Fatalf("expected votes deleted, got %d", n)
	}
	if n := countRows(t, &models.Rating{}, "user_id = ?", author.ID); n != 1 {
		t.Fatalf("expected rating to persist, got %d", n)
	}

	expectErr(t, rs.DeleteReview(author, review.ID), ErrNotFound)
}

func TestReportReview(t *testing.T) {
	setupTestDB(t)
	rs := NewReviewService()
	pub := createUser(t, "pub", models.LevelPublisher, 0)
	author := createUser(t, "author", models.LevelBasic, 0)
	reader := createUser(t, "reader", models.LevelBasic, 0)
	mod := createUser(t, "mod", models.LevelModerator, 0)
	review := writeTestReview(t, author, createBook(t, pub, models.BookPublished, 5))

	expectErr(t, rs.ReportReview(author, review.ID), ErrForbidden)
	expectErr(t, rs.ReportReview(mod, review.ID), ErrForbidden)

	t.Setenv("REPORT_THRESHOLD", "2")
	ms := NewModerationService()

	if err := rs.ReportReview(reader, review.ID); err != nil {
		t.Fatalf("report: %v", err)
	}
	reported, err := ms.ReportedReviews(mod)
	if err != nil {
		t.Fatalf("reported reviews: %v", err)
	}
	if len(reported) != 0 {
		t.Fatalf("expected review below threshold, got %d", len(reported))
	}

	if err := rs.ReportReview(reader, review.ID); err != nil {
		t.Fatalf("report: %v", err)
	}
	reported, err = ms.ReportedReviews(mod)
	if err != nil {
		t.Fatalf("reported reviews: %v", err)
	}
	if len(reported) != 1 || reported[0].NbReports != 2 {
		t.Fatalf("expected one review with 2 reports, got %+v", reported)
	}
}

func TestGetReviewDetails(t *testing.T) {
	setupTestDB(t)
	rs := NewReviewService()
	pub := createUser(t, "pub", models.LevelPublisher, 0)
	author := createUser(t, "author", models.LevelBasic, 0)
	reader := createUser(t, "reader", models.LevelBasic, 0)
	review := writeTestReview(t, author, createBook(t, pub, models.BookPublished, 5))

	if _, err := rs.CommentReview(reader, review.ID, "<script>alert(1)</script>Nice"); err != nil {
		t.Fatalf("comment: %v", err)
	}
	_, err := rs.CommentReview(reader, review.ID, "<p></p>")
	expectErr(t, err, ErrInvalidInput)

	details, err := rs.GetReviewDetails(nil, review.ID)
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if details.Author.Username != "author" || details.Evaluation != 4 {
		t.Fatalf("unexpected review view: %+v", details.ReviewView)
	}
	if len(details.Comments) != 1 || details.Comments[0].Content != "Nice" {
		t.Fatalf("expected sanitized comment, got %+v", details.Comments)
	}
	if details.Comments[0].Author.Username != "reader" {
		t.Fatalf("expected comment author reader, got %s", details.Comments[0].Author.Username)
	}

	_, err = rs.GetReviewDetails(nil, "missing")
	expectErr(t, err, ErrNotFound)
}

func TestReviewsOfRemovedBookAreHidden(t *testing.T) {
	setupTestDB(t)
	rs := NewReviewService()
	mod := createUser(t, "mod", models.LevelModerator, 0)
	author := createUser(t, "author", models.LevelBasic, 0)
	reader := createUser(t, "reader", models.LevelBasic, 0)
	book := createBook(t, nil, models.BookPublished, 5)
	review := writeTestReview(t, author, book)

	if err := NewBookService().Remove(mod, book.ISBN); err != nil {
		t.Fatalf("remove book: %v", err)
	}

	_, err := rs.VoteReview(reader, review.ID, models.VoteUp)
	expectErr(t, err, ErrNotFound)
	_, err = rs.CommentReview(reader, review.ID, "still here?")
	expectErr(t, err, ErrNotFound)
	expectErr(t, rs.ReportReview(reader, review.ID), ErrNotFound)
	_, err = rs.GetReviewDetails(nil, review.ID)
	expectErr(t, err, ErrNotFound)
	_, err = rs.GetReviewDetails(reader, review.ID)
	expectErr(t, err, ErrNotFound)

	if n := countRows(t, &models.ReviewVote{}, ""); n != 0 {
		t.Fatalf("expected no votes recorded, got %d", n)
	}
	if n := countRows(t, &models.Comment{}, ""); n != 0 {
		t.Fatalf("expected no comments recorded, got %d", n)
	}

	details, err := rs.GetReviewDetails(mod, review.ID)
	if err != nil {
		t.Fatalf("moderator details: %v", err)
	}
	if details.ID != review.ID {
		t.Fatalf("expected review %s, got %s", review.ID, details.ID)
	}
}
