package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/litreview/internal/model"
)

// チケット・レビュー・画像リポジトリがインターフェースを満たすことを検証
func TestPostgresTicketRepos_ImplementInterfaces(t *testing.T) {
	var _ TicketRepository = (*PostgresTicketRepo)(nil)
	var _ ReviewRepository = (*PostgresReviewRepo)(nil)
	var _ MediaRepository = (*PostgresMediaRepo)(nil)
}

func newTestTicket(authorID, title string, createdAt time.Time) *model.Ticket {
	return &model.Ticket{
		ID:        uuid.Must(uuid.NewV7()).String(),
		AuthorID:  authorID,
		Title:     title,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func newTestReview(ticketID, authorID string, createdAt time.Time) *model.Review {
	return &model.Review{
		ID:        uuid.Must(uuid.NewV7()).String(),
		TicketID:  ticketID,
		AuthorID:  authorID,
		Rating:    4,
		Headline:  "良かった",
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

// チケット削除で紐づくレビューも削除され、削除件数が返ることを検証
func TestPostgresTicketRepo_Delete_RemovesReviews(t *testing.T) {
	db := setupRepoDB(t)
	users := NewPostgresUserRepo(db)
	tickets := NewPostgresTicketRepo(db)
	reviews := NewPostgresReviewRepo(db)
	ctx := context.Background()

	a := createTestUser(t, users, "alice")
	b := createTestUser(t, users, "bob")
	c := createTestUser(t, users, "carol")
	now := time.Now()

	ticket := newTestTicket(a, "Dune", now)
	if err := tickets.Create(ctx, ticket); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	for _, author := range []string{b, c} {
		if err := reviews.Create(ctx, newTestReview(ticket.ID, author, now)); err != nil {
			t.Fatalf("review Create returned error: %v", err)
		}
	}
	if err := reviews.Create(ctx, newTestReview(ticket.ID, b, now)); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate review error = %v, want ErrDuplicate", err)
	}

	removed, err := tickets.Delete(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if removed != 2 {
		t.Errorf("reviews removed = %d, want 2", removed)
	}
	if got, _ := tickets.FindByID(ctx, ticket.ID); got != nil {
		t.Error("ticket should be deleted")
	}
	if exists, _ := reviews.ExistsByTicketAndAuthor(ctx, ticket.ID, b); exists {
		t.Error("review should be deleted with the ticket")
	}

	// 削除済みの行への更新・削除はErrNotFound
	if _, err := tickets.Delete(ctx, ticket.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
	if err := tickets.Update(ctx, ticket); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update of deleted ticket error = %v, want ErrNotFound", err)
	}
	gone := newTestReview(ticket.ID, b, now)
	if err := reviews.Update(ctx, gone); !errors.Is(err, ErrNotFound) {
		t.Errorf("review Update error = %v, want ErrNotFound", err)
	}
	if err := reviews.Delete(ctx, gone.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("review Delete error = %v, want ErrNotFound", err)
	}
}

// フィード用レビュー取得が自分のチケットへのレビューを含み、除外対象を除くことを検証
func TestPostgresReviewRepo_ListForFeed(t *testing.T) {
	db := setupRepoDB(t)
	users := NewPostgresUserRepo(db)
	tickets := NewPostgresTicketRepo(db)
	reviews := NewPostgresReviewRepo(db)
	ctx := context.Background()

	viewer := createTestUser(t, users, "viewer")
	followed := createTestUser(t, users, "followed")
	stranger := createTestUser(t, users, "stranger")
	blocked := createTestUser(t, users, "blocked")
	base := time.Now().Add(-time.Hour)

	own := newTestTicket(viewer, "mine", base)
	other := newTestTicket(stranger, "theirs", base)
	for _, tk := range []*model.Ticket{own, other} {
		if err := tickets.Create(ctx, tk); err != nil {
			t.Fatalf("ticket Create returned error: %v", err)
		}
	}

	onOwnByStranger := newTestReview(own.ID, stranger, base.Add(1*time.Minute))
	onOtherByFollowed := newTestReview(other.ID, followed, base.Add(2*time.Minute))
	onOwnByBlocked := newTestReview(own.ID, blocked, base.Add(3*time.Minute))
	for _, rv := range []*model.Review{onOwnByStranger, onOtherByFollowed, onOwnByBlocked} {
		if err := reviews.Create(ctx, rv); err != nil {
			t.Fatalf("review Create returned error: %v", err)
		}
	}

	got, err := reviews.ListForFeed(ctx, []string{viewer, followed}, viewer, []string{blocked})
	if err != nil {
		t.Fatalf("ListForFeed returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListForFeed returned %d reviews, want 2", len(got))
	}
	if got[0].ID != onOtherByFollowed.ID || got[1].ID != onOwnByStranger.ID {
		t.Errorf("unexpected order: %s, %s", got[0].ID, got[1].ID)
	}
	if got[1].TicketAuthorID != viewer {
		t.Errorf("TicketAuthorID = %q, want %q", got[1].TicketAuthorID, viewer)
	}

	reviewed, err := reviews.ListReviewedTicketIDs(ctx, followed, []string{own.ID, other.ID})
	if err != nil {
		t.Fatalf("ListReviewedTicketIDs returned error: %v", err)
	}
	if len(reviewed) != 1 || reviewed[0] != other.ID {
		t.Errorf("ListReviewedTicketIDs = %v, want [%s]", reviewed, other.ID)
	}
}

// チケットとレビューの同時作成でレビューが失敗した場合にチケットも残らないことを検証
func TestPostgresTicketRepo_CreateWithReview_Atomic(t *testing.T) {
	db := setupRepoDB(t)
	users := NewPostgresUserRepo(db)
	tickets := NewPostgresTicketRepo(db)
	ctx := context.Background()

	a := createTestUser(t, users, "alice")
	now := time.Now()

	ticket := newTestTicket(a, "Solaris", now)
	review := newTestReview(ticket.ID, a, now)
	review.Rating = 9 // CHECK制約違反

	if err := tickets.CreateWithReview(ctx, ticket, review); err == nil {
		t.Fatal("expected error for invalid rating")
	}
	if got, _ := tickets.FindByID(ctx, ticket.ID); got != nil {
		t.Error("ticket should not persist when review insert fails")
	}
}
