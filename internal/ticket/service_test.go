package ticket

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/hitoshi/litreview/internal/model"
	"github.com/hitoshi/litreview/internal/repository"
)

// --- モック定義 ---

type mockTicketRepo struct {
	tickets map[string]*model.Ticket

	createWithReviewFn func(ctx context.Context, t *model.Ticket, r *model.Review) error
	deleteFn           func(ctx context.Context, id string) (int, error)
	updateErr          error
	updated            *model.Ticket
}

func newMockTicketRepo(tickets ...*model.Ticket) *mockTicketRepo {
	m := &mockTicketRepo{tickets: make(map[string]*model.Ticket)}
	for _, t := range tickets {
		m.tickets[t.ID] = t
	}
	return m
}

func (m *mockTicketRepo) FindByID(_ context.Context, id string) (*model.Ticket, error) {
	t, ok := m.tickets[id]
	if !ok {
		return nil, nil
	}
	copied := *t
	return &copied, nil
}

func (m *mockTicketRepo) Create(_ context.Context, t *model.Ticket) error {
	m.tickets[t.ID] = t
	return nil
}

func (m *mockTicketRepo) CreateWithReview(ctx context.Context, t *model.Ticket, r *model.Review) error {
	if m.createWithReviewFn != nil {
		return m.createWithReviewFn(ctx, t, r)
	}
	m.tickets[t.ID] = t
	return nil
}

func (m *mockTicketRepo) Update(_ context.Context, t *model.Ticket) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updated = t
	m.tickets[t.ID] = t
	return nil
}

func (m *mockTicketRepo) Delete(ctx context.Context, id string) (int, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	delete(m.tickets, id)
	return 0, nil
}

func (m *mockTicketRepo) ListByAuthors(_ context.Context, authorIDs []string) ([]*model.Ticket, error) {
	var out []*model.Ticket
	for _, t := range m.tickets {
		for _, id := range authorIDs {
			if t.AuthorID == id {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

type mockReviewRepo struct {
	reviews map[string]*model.ReviewWithTicket

	createFn func(ctx context.Context, r *model.Review) error
	writeErr error
	created  *model.Review
	deleted  string
}

func newMockReviewRepo(reviews ...*model.ReviewWithTicket) *mockReviewRepo {
	m := &mockReviewRepo{reviews: make(map[string]*model.ReviewWithTicket)}
	for _, r := range reviews {
		m.reviews[r.ID] = r
	}
	return m
}

func (m *mockReviewRepo) FindByID(_ context.Context, id string) (*model.ReviewWithTicket, error) {
	r, ok := m.reviews[id]
	if !ok {
		return nil, nil
	}
	copied := *r
	return &copied, nil
}

func (m *mockReviewRepo) Create(ctx context.Context, r *model.Review) error {
	if m.createFn != nil {
		return m.createFn(ctx, r)
	}
	m.created = r
	m.reviews[r.ID] = &model.ReviewWithTicket{Review: *r}
	return nil
}

func (m *mockReviewRepo) Update(_ context.Context, r *model.Review) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.reviews[r.ID].Review = *r
	return nil
}

func (m *mockReviewRepo) Delete(_ context.Context, id string) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.deleted = id
	delete(m.reviews, id)
	return nil
}

func (m *mockReviewRepo) ExistsByTicketAndAuthor(_ context.Context, ticketID, authorID string) (bool, error) {
	for _, r := range m.reviews {
		if r.TicketID == ticketID && r.AuthorID == authorID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockReviewRepo) ListReviewedTicketIDs(context.Context, string, []string) ([]string, error) {
	return nil, nil
}

func (m *mockReviewRepo) ListForFeed(context.Context, []string, string, []string) ([]*model.ReviewWithTicket, error) {
	return nil, nil
}

func (m *mockReviewRepo) ListByAuthor(_ context.Context, authorID string) ([]*model.ReviewWithTicket, error) {
	var out []*model.ReviewWithTicket
	for _, r := range m.reviews {
		if r.AuthorID == authorID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockReviewRepo) ListReceived(_ context.Context, ownerID string) ([]*model.ReviewWithTicket, error) {
	var out []*model.ReviewWithTicket
	for _, r := range m.reviews {
		if r.TicketAuthorID == ownerID && r.AuthorID != ownerID {
			out = append(out, r)
		}
	}
	return out, nil
}

type mockMediaRepo struct {
	media map[string]*model.Media
}

func (m *mockMediaRepo) FindByID(_ context.Context, id string) (*model.Media, error) {
	return m.media[id], nil
}

func (m *mockMediaRepo) Create(context.Context, *model.Media) error { return nil }

type mockBlockChecker struct {
	blocked map[[2]string]bool
}

func (m *mockBlockChecker) ExistsBlockBetween(_ context.Context, a, b string) (bool, error) {
	return m.blocked[[2]string{a, b}] || m.blocked[[2]string{b, a}], nil
}

// stubSanitizer はタグを取り除いたことが分かるように印を付ける。
type stubSanitizer struct{}

func (stubSanitizer) SanitizeText(raw string) string {
	return strings.ReplaceAll(strings.ReplaceAll(raw, "<b>", ""), "</b>", "")
}

func (stubSanitizer) SanitizeRichText(raw string) string {
	return strings.ReplaceAll(raw, "<script>", "")
}

var _ repository.TicketRepository = (*mockTicketRepo)(nil)
var _ repository.ReviewRepository = (*mockReviewRepo)(nil)
var _ repository.MediaRepository = (*mockMediaRepo)(nil)

const (
	ticketID = "0190a4c2-0000-7000-8000-000000000001"
	reviewID = "0190a4c2-0000-7000-8000-000000000002"
	mediaID  = "0190a4c2-0000-7000-8000-000000000003"
)

type fixture struct {
	svc     *Service
	tickets *mockTicketRepo
	reviews *mockReviewRepo
	blocks  *mockBlockChecker
}

func newFixture() *fixture {
	tickets := newMockTicketRepo(&model.Ticket{ID: ticketID, AuthorID: "owner", Title: "Dune"})
	reviews := newMockReviewRepo()
	media := &mockMediaRepo{media: map[string]*model.Media{
		mediaID: {ID: mediaID, OwnerID: "owner", MimeType: "image/png"},
	}}
	blocks := &mockBlockChecker{blocked: map[[2]string]bool{}}
	return &fixture{
		svc:     NewService(tickets, reviews, media, blocks, stubSanitizer{}),
		tickets: tickets,
		reviews: reviews,
		blocks:  blocks,
	}
}

func assertAPIErrorCode(t *testing.T, err error, want string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want APIError %s", err, want)
	}
	if apiErr.Code != want {
		t.Errorf("error code = %s, want %s", apiErr.Code, want)
	}
}

// --- テスト ---

func TestCreateTicket_SanitizesAndStores(t *testing.T) {
	f := newFixture()
	cover := mediaID

	ticket, err := f.svc.CreateTicket(context.Background(), "owner", TicketInput{
		Title:        "<b>Foundation</b>",
		Description:  "classic<script>",
		CoverMediaID: &cover,
	})
	if err != nil {
		t.Fatalf("CreateTicket() error = %v", err)
	}
	if ticket.Title != "Foundation" || ticket.Description != "classic" {
		t.Errorf("ticket not sanitized: %+v", ticket)
	}
	if f.tickets.tickets[ticket.ID] == nil {
		t.Error("ticket should be persisted")
	}
}

func TestCreateTicket_Validation(t *testing.T) {
	otherMedia := "0190a4c2-0000-7000-8000-0000000000ff"
	tests := []struct {
		name     string
		input    TicketInput
		wantCode string
	}{
		{"タイトルなし", TicketInput{Title: "   "}, model.ErrCodeInvalidInput},
		{"タイトルが長すぎる", TicketInput{Title: strings.Repeat("本", MaxTitleLength+1)}, model.ErrCodeInvalidInput},
		{"説明が長すぎる", TicketInput{Title: "ok", Description: strings.Repeat("x", MaxDescriptionLength+1)}, model.ErrCodeInvalidInput},
		{"存在しない画像", TicketInput{Title: "ok", CoverMediaID: &otherMedia}, model.ErrCodeMediaNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.svc.CreateTicket(context.Background(), "owner", tt.input)
			assertAPIErrorCode(t, err, tt.wantCode)
		})
	}
}

// 他人の画像はカバーに使えないことを検証
func TestCreateTicket_ForeignCoverMedia(t *testing.T) {
	f := newFixture()
	cover := mediaID

	_, err := f.svc.CreateTicket(context.Background(), "someone-else", TicketInput{Title: "t", CoverMediaID: &cover})
	assertAPIErrorCode(t, err, model.ErrCodeMediaNotFound)
}

func TestUpdateAndDeleteTicket_OwnerOnly(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.UpdateTicket(ctx, "intruder", ticketID, TicketInput{Title: "mine now"})
	assertAPIErrorCode(t, err, model.ErrCodeNotOwner)

	_, err = f.svc.DeleteTicket(ctx, "intruder", ticketID)
	assertAPIErrorCode(t, err, model.ErrCodeNotOwner)

	updated, err := f.svc.UpdateTicket(ctx, "owner", ticketID, TicketInput{Title: "Dune Messiah"})
	if err != nil {
		t.Fatalf("UpdateTicket() error = %v", err)
	}
	if updated.Title != "Dune Messiah" || f.tickets.updated == nil {
		t.Errorf("ticket not updated: %+v", updated)
	}
}

func TestDeleteTicket_ReturnsRemovedReviews(t *testing.T) {
	f := newFixture()
	f.tickets.deleteFn = func(ctx context.Context, id string) (int, error) {
		return 3, nil
	}

	removed, err := f.svc.DeleteTicket(context.Background(), "owner", ticketID)
	if err != nil {
		t.Fatalf("DeleteTicket() error = %v", err)
	}
	if removed != 3 {
		t.Errorf("removed = %d, want 3", removed)
	}
}

func TestDeleteTicket_StoreFailure(t *testing.T) {
	f := newFixture()
	storeErr := errors.New("tx aborted")
	f.tickets.deleteFn = func(ctx context.Context, id string) (int, error) {
		return 0, storeErr
	}

	if _, err := f.svc.DeleteTicket(context.Background(), "owner", ticketID); !errors.Is(err, storeErr) {
		t.Errorf("DeleteTicket() error = %v, want %v", err, storeErr)
	}
}

func TestTicketNotFound(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	missing := "0190a4c2-0000-7000-8000-00000000dead"

	for _, id := range []string{missing, "not-a-uuid"} {
		_, err := f.svc.GetTicket(ctx, "owner", id)
		assertAPIErrorCode(t, err, model.ErrCodeTicketNotFound)

		_, err = f.svc.CreateReview(ctx, "reader", id, ReviewInput{Rating: 3, Headline: "h"})
		assertAPIErrorCode(t, err, model.ErrCodeTicketNotFound)
	}
}

func TestCreateReview(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	review, err := f.svc.CreateReview(ctx, "reader", ticketID, ReviewInput{Rating: 5, Headline: "<b>Great</b>", Body: "loved it"})
	if err != nil {
		t.Fatalf("CreateReview() error = %v", err)
	}
	if review.Headline != "Great" || review.TicketID != ticketID || review.AuthorID != "reader" {
		t.Errorf("review = %+v", review)
	}

	_, err = f.svc.CreateReview(ctx, "reader", ticketID, ReviewInput{Rating: 1, Headline: "again"})
	assertAPIErrorCode(t, err, model.ErrCodeAlreadyReviewed)
}

func TestCreateReview_ValidationAndBlocks(t *testing.T) {
	tests := []struct {
		name     string
		viewer   string
		block    bool
		input    ReviewInput
		wantCode string
	}{
		{"評価が範囲外（負）", "reader", false, ReviewInput{Rating: -1, Headline: "h"}, model.ErrCodeInvalidInput},
		{"評価が範囲外（6）", "reader", false, ReviewInput{Rating: 6, Headline: "h"}, model.ErrCodeInvalidInput},
		{"見出しなし", "reader", false, ReviewInput{Rating: 3}, model.ErrCodeInvalidInput},
		{"見出しが長すぎる", "reader", false, ReviewInput{Rating: 3, Headline: strings.Repeat("h", MaxHeadlineLength+1)}, model.ErrCodeInvalidInput},
		{"本文が長すぎる", "reader", false, ReviewInput{Rating: 3, Headline: "h", Body: strings.Repeat("b", MaxBodyLength+1)}, model.ErrCodeInvalidInput},
		{"作成者とブロック関係", "reader", true, ReviewInput{Rating: 3, Headline: "h"}, model.ErrCodeBlockedRelationship},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			if tt.block {
				f.blocks.blocked[[2]string{"owner", tt.viewer}] = true
			}
			_, err := f.svc.CreateReview(context.Background(), tt.viewer, ticketID, tt.input)
			assertAPIErrorCode(t, err, tt.wantCode)
			if f.reviews.created != nil {
				t.Error("review must not be created")
			}
		})
	}
}

// 事前確認をすり抜けた重複は一意制約違反としてALREADY_REVIEWEDになることを検証
func TestCreateReview_ConcurrentDuplicate(t *testing.T) {
	f := newFixture()
	f.reviews.createFn = func(ctx context.Context, r *model.Review) error {
		return repository.ErrDuplicate
	}

	_, err := f.svc.CreateReview(context.Background(), "reader", ticketID, ReviewInput{Rating: 2, Headline: "h"})
	assertAPIErrorCode(t, err, model.ErrCodeAlreadyReviewed)
}

func TestCreateTicketWithReview(t *testing.T) {
	f := newFixture()
	var gotTicket *model.Ticket
	var gotReview *model.Review
	f.tickets.createWithReviewFn = func(ctx context.Context, tk *model.Ticket, r *model.Review) error {
		gotTicket, gotReview = tk, r
		return nil
	}

	ticket, review, err := f.svc.CreateTicketWithReview(context.Background(), "owner",
		TicketInput{Title: "Hyperion"},
		ReviewInput{Rating: 4, Headline: "Pilgrims"},
	)
	if err != nil {
		t.Fatalf("CreateTicketWithReview() error = %v", err)
	}
	if gotTicket != ticket || gotReview != review {
		t.Error("ticket and review should be stored together")
	}
	if review.TicketID != ticket.ID || review.AuthorID != "owner" {
		t.Errorf("review = %+v, want linked to ticket %s", review, ticket.ID)
	}

	// レビューが不正な場合は何も保存しない
	f.tickets.createWithReviewFn = func(ctx context.Context, tk *model.Ticket, r *model.Review) error {
		t.Fatal("CreateWithReview should not be called")
		return nil
	}
	_, _, err = f.svc.CreateTicketWithReview(context.Background(), "owner",
		TicketInput{Title: "Hyperion"},
		ReviewInput{Rating: 9, Headline: "Pilgrims"},
	)
	assertAPIErrorCode(t, err, model.ErrCodeInvalidInput)
}

func TestGetTicket(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.reviews.reviews[reviewID] = &model.ReviewWithTicket{
		Review: model.Review{ID: reviewID, TicketID: ticketID, AuthorID: "reader"},
	}

	detail, err := f.svc.GetTicket(ctx, "reader", ticketID)
	if err != nil {
		t.Fatalf("GetTicket() error = %v", err)
	}
	if !detail.ViewerAlreadyResponded || detail.IsOwner {
		t.Errorf("detail = %+v", detail)
	}

	f.blocks.blocked[[2]string{"reader", "owner"}] = true
	_, err = f.svc.GetTicket(ctx, "reader", ticketID)
	assertAPIErrorCode(t, err, model.ErrCodeBlockedRelationship)

	detail, err = f.svc.GetTicket(ctx, "owner", ticketID)
	if err != nil {
		t.Fatalf("GetTicket() by owner error = %v", err)
	}
	if !detail.IsOwner {
		t.Error("IsOwner = false for the author")
	}
}

func TestUpdateAndDeleteReview(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.reviews.reviews[reviewID] = &model.ReviewWithTicket{
		Review: model.Review{ID: reviewID, TicketID: ticketID, AuthorID: "reader", Rating: 1, Headline: "meh"},
	}

	_, err := f.svc.UpdateReview(ctx, "owner", reviewID, ReviewInput{Rating: 0, Headline: "bad"})
	assertAPIErrorCode(t, err, model.ErrCodeNotOwner)

	updated, err := f.svc.UpdateReview(ctx, "reader", reviewID, ReviewInput{Rating: 4, Headline: "grew on me"})
	if err != nil {
		t.Fatalf("UpdateReview() error = %v", err)
	}
	if updated.Rating != 4 || f.reviews.reviews[reviewID].Headline != "grew on me" {
		t.Errorf("review not updated: %+v", updated)
	}

	err = f.svc.DeleteReview(ctx, "owner", reviewID)
	assertAPIErrorCode(t, err, model.ErrCodeNotOwner)

	if err := f.svc.DeleteReview(ctx, "reader", reviewID); err != nil {
		t.Fatalf("DeleteReview() error = %v", err)
	}
	if f.reviews.deleted != reviewID {
		t.Errorf("deleted = %q, want %q", f.reviews.deleted, reviewID)
	}

	err = f.svc.DeleteReview(ctx, "reader", reviewID)
	assertAPIErrorCode(t, err, model.ErrCodeReviewNotFound)
}

// 読み取り後に別のリクエストで削除された場合もNOT_FOUNDとして返すことを検証
func TestConcurrentlyDeleted_ReportsNotFound(t *testing.T) {
	gone := fmt.Errorf("row: %w", repository.ErrNotFound)
	ctx := context.Background()

	t.Run("チケット", func(t *testing.T) {
		f := newFixture()
		f.tickets.updateErr = gone
		f.tickets.deleteFn = func(ctx context.Context, id string) (int, error) {
			return 0, gone
		}

		_, err := f.svc.UpdateTicket(ctx, "owner", ticketID, TicketInput{Title: "Dune"})
		assertAPIErrorCode(t, err, model.ErrCodeTicketNotFound)

		_, err = f.svc.DeleteTicket(ctx, "owner", ticketID)
		assertAPIErrorCode(t, err, model.ErrCodeTicketNotFound)
	})

	t.Run("レビュー", func(t *testing.T) {
		f := newFixture()
		f.reviews.reviews[reviewID] = &model.ReviewWithTicket{
			Review: model.Review{ID: reviewID, TicketID: ticketID, AuthorID: "reader", Rating: 2, Headline: "ok"},
		}
		f.reviews.writeErr = gone

		_, err := f.svc.UpdateReview(ctx, "reader", reviewID, ReviewInput{Rating: 3, Headline: "better"})
		assertAPIErrorCode(t, err, model.ErrCodeReviewNotFound)

		err = f.svc.DeleteReview(ctx, "reader", reviewID)
		assertAPIErrorCode(t, err, model.ErrCodeReviewNotFound)
	})
}

func TestListPosts(t *testing.T) {
	f := newFixture()
	f.reviews.reviews["r-own"] = &model.ReviewWithTicket{
		Review:         model.Review{ID: "r-own", TicketID: ticketID, AuthorID: "owner"},
		TicketAuthorID: "owner",
	}
	f.reviews.reviews["r-received"] = &model.ReviewWithTicket{
		Review:         model.Review{ID: "r-received", TicketID: ticketID, AuthorID: "reader"},
		TicketAuthorID: "owner",
	}

	posts, err := f.svc.ListPosts(context.Background(), "owner")
	if err != nil {
		t.Fatalf("ListPosts() error = %v", err)
	}
	if len(posts.Tickets) != 1 || posts.Tickets[0].ID != ticketID {
		t.Errorf("Tickets = %+v", posts.Tickets)
	}
	if len(posts.Reviews) != 1 || posts.Reviews[0].ID != "r-own" {
		t.Errorf("Reviews = %+v", posts.Reviews)
	}
	if len(posts.Received) != 1 || posts.Received[0].ID != "r-received" {
		t.Errorf("Received = %+v", posts.Received)
	}
}
