package feed

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/hitoshi/litreview/internal/model"
	"github.com/hitoshi/litreview/internal/relationship"
)

// --- フェイク定義 ---

type edge struct{ from, to string }

// fakeStore はフォロー・ブロック・チケット・レビューを保持するメモリ上のストア。
// リポジトリのSQLと同じ絞り込み条件で結果を返す。
type fakeStore struct {
	follows map[edge]bool
	blocks  map[edge]bool
	tickets []*model.Ticket
	reviews []*model.ReviewWithTicket

	failTickets  error
	failReviews  error
	failReviewed error
	reviewedCall int
}

func newFakeStore() *fakeStore {
	return &fakeStore{follows: map[edge]bool{}, blocks: map[edge]bool{}}
}

func (s *fakeStore) follow(from, to string) { s.follows[edge{from, to}] = true }

func (s *fakeStore) block(from, to string) {
	s.blocks[edge{from, to}] = true
	delete(s.follows, edge{from, to})
	delete(s.follows, edge{to, from})
}

func (s *fakeStore) addTicket(id, author string, at time.Time) *model.Ticket {
	t := &model.Ticket{ID: id, AuthorID: author, Title: "title " + id, CreatedAt: at}
	s.tickets = append(s.tickets, t)
	return t
}

func (s *fakeStore) addReview(id, author, ticketID string, at time.Time) {
	var ticketAuthor string
	for _, t := range s.tickets {
		if t.ID == ticketID {
			ticketAuthor = t.AuthorID
		}
	}
	s.reviews = append(s.reviews, &model.ReviewWithTicket{
		Review:         model.Review{ID: id, TicketID: ticketID, AuthorID: author, Rating: 4, CreatedAt: at},
		TicketAuthorID: ticketAuthor,
	})
}

func (s *fakeStore) ListFollowedIDs(_ context.Context, userID string) ([]string, error) {
	var ids []string
	for e := range s.follows {
		if e.from == userID {
			ids = append(ids, e.to)
		}
	}
	return ids, nil
}

func (s *fakeStore) ListBlockPartnerIDs(_ context.Context, userID string) ([]string, error) {
	var ids []string
	for e := range s.blocks {
		if e.from == userID {
			ids = append(ids, e.to)
		}
		if e.to == userID {
			ids = append(ids, e.from)
		}
	}
	return ids, nil
}

func (s *fakeStore) ListByAuthors(_ context.Context, authorIDs []string) ([]*model.Ticket, error) {
	if s.failTickets != nil {
		return nil, s.failTickets
	}
	var out []*model.Ticket
	for _, t := range s.tickets {
		if slices.Contains(authorIDs, t.AuthorID) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeStore) ListForFeed(_ context.Context, authorIDs []string, ticketOwnerID string, excludeAuthorIDs []string) ([]*model.ReviewWithTicket, error) {
	if s.failReviews != nil {
		return nil, s.failReviews
	}
	var out []*model.ReviewWithTicket
	for _, r := range s.reviews {
		if slices.Contains(excludeAuthorIDs, r.AuthorID) {
			continue
		}
		if slices.Contains(authorIDs, r.AuthorID) || r.TicketAuthorID == ticketOwnerID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) ListReviewedTicketIDs(_ context.Context, authorID string, ticketIDs []string) ([]string, error) {
	s.reviewedCall++
	if s.failReviewed != nil {
		return nil, s.failReviewed
	}
	var out []string
	for _, r := range s.reviews {
		if r.AuthorID == authorID && slices.Contains(ticketIDs, r.TicketID) {
			out = append(out, r.TicketID)
		}
	}
	return out, nil
}

func newTestAggregator(store *fakeStore) *Aggregator {
	return NewAggregator(relationship.NewResolver(store), store, store, nil)
}

// itemKeys は比較用に種別とIDの組を返す。
func itemKeys(items []model.FeedItem) []string {
	keys := make([]string, len(items))
	for i, item := range items {
		keys[i] = string(item.Kind) + ":" + item.ID
	}
	return keys
}

func findItem(t *testing.T, items []model.FeedItem, id string) model.FeedItem {
	t.Helper()
	for _, item := range items {
		if item.ID == id {
			return item
		}
	}
	t.Fatalf("item %s not found in feed %v", id, itemKeys(items))
	return model.FeedItem{}
}

var base = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

func at(minutes int) time.Time { return base.Add(time.Duration(minutes) * time.Minute) }

// --- テスト ---

func TestBuild_VisibilityRules(t *testing.T) {
	store := newFakeStore()
	store.follow("viewer", "friend")
	store.follow("viewer", "enemy")
	store.block("enemy", "viewer")

	store.addTicket("t-own", "viewer", at(1))
	store.addTicket("t-friend", "friend", at(2))
	store.addTicket("t-stranger", "stranger", at(3))
	store.addTicket("t-enemy", "enemy", at(4))

	store.addReview("r-friend-on-stranger", "friend", "t-stranger", at(5))
	store.addReview("r-stranger-on-own", "stranger", "t-own", at(6))
	store.addReview("r-enemy-on-own", "enemy", "t-own", at(7))
	store.addReview("r-stranger-on-friend", "stranger", "t-friend", at(8))
	store.addReview("r-own-on-friend", "viewer", "t-friend", at(9))

	feed, err := newTestAggregator(store).Build(context.Background(), "viewer")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	want := []string{
		"REVIEW:r-own-on-friend",
		"REVIEW:r-stranger-on-own",
		"REVIEW:r-friend-on-stranger",
		"REQUEST:t-friend",
		"REQUEST:t-own",
	}
	if diff := cmp.Diff(want, itemKeys(feed.Items)); diff != "" {
		t.Errorf("feed mismatch (-want +got):\n%s", diff)
	}
	if !feed.HasAnyFollow {
		t.Error("HasAnyFollow = false, want true")
	}
}

// 入力順に関係なく作成日時の降順で並ぶことを検証
func TestBuild_OrderIndependentOfInput(t *testing.T) {
	inputs := [][]int{{3, 1, 2}, {1, 2, 3}, {2, 3, 1}}
	for _, order := range inputs {
		store := newFakeStore()
		ids := map[int]string{1: "t1", 2: "t2", 3: "t3"}
		minutes := map[int]int{1: 20, 2: 10, 3: 30}
		for _, n := range order {
			store.addTicket(ids[n], "viewer", at(minutes[n]))
		}

		feed, err := newTestAggregator(store).Build(context.Background(), "viewer")
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		want := []string{"REQUEST:t3", "REQUEST:t1", "REQUEST:t2"}
		if diff := cmp.Diff(want, itemKeys(feed.Items)); diff != "" {
			t.Errorf("input order %v: feed mismatch (-want +got):\n%s", order, diff)
		}
	}
}

func TestSortItems_TieBreak(t *testing.T) {
	same := at(0)
	items := []model.FeedItem{
		{Kind: model.FeedItemKindReview, ID: "b", CreatedAt: same},
		{Kind: model.FeedItemKindRequest, ID: "a", CreatedAt: same},
		{Kind: model.FeedItemKindReview, ID: "c", CreatedAt: same},
		{Kind: model.FeedItemKindRequest, ID: "d", CreatedAt: same},
		{Kind: model.FeedItemKindReview, ID: "z", CreatedAt: at(-1)},
	}

	SortItems(items)

	want := []string{"REQUEST:d", "REQUEST:a", "REVIEW:c", "REVIEW:b", "REVIEW:z"}
	if diff := cmp.Diff(want, itemKeys(items)); diff != "" {
		t.Errorf("SortItems mismatch (-want +got):\n%s", diff)
	}
}

// フォロー先のチケットにレビューすると、以後のフィードでレビュー済みになることを検証
func TestBuild_ViewerAlreadyResponded(t *testing.T) {
	store := newFakeStore()
	store.follow("viewer", "friend")
	store.addTicket("t-friend", "friend", at(1))

	agg := newTestAggregator(store)
	feed, err := agg.Build(context.Background(), "viewer")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if findItem(t, feed.Items, "t-friend").ViewerAlreadyResponded {
		t.Error("ViewerAlreadyResponded = true before reviewing")
	}

	store.addReview("r-viewer", "viewer", "t-friend", at(2))
	feed, err = agg.Build(context.Background(), "viewer")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !findItem(t, feed.Items, "t-friend").ViewerAlreadyResponded {
		t.Error("ViewerAlreadyResponded = false after reviewing")
	}
	if store.reviewedCall != 2 {
		t.Errorf("ListReviewedTicketIDs called %d times, want once per build", store.reviewedCall)
	}
}

// フォロー中の相手をブロックすると、その相手の項目とフォロー関係が消えることを検証
func TestBuild_BlockRemovesFollowedAuthor(t *testing.T) {
	store := newFakeStore()
	store.follow("viewer", "friend")
	store.addTicket("t-friend", "friend", at(1))
	agg := newTestAggregator(store)

	feed, err := agg.Build(context.Background(), "viewer")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(feed.Items) != 1 {
		t.Fatalf("items before block = %v", itemKeys(feed.Items))
	}

	store.block("viewer", "friend")

	feed, err = agg.Build(context.Background(), "viewer")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(feed.Items) != 0 {
		t.Errorf("items after block = %v, want none", itemKeys(feed.Items))
	}
	if feed.HasAnyFollow {
		t.Error("HasAnyFollow = true, want false after the follow edge was removed")
	}
}

func TestBuild_TicketAuthorIsBlocked(t *testing.T) {
	store := newFakeStore()
	store.follow("viewer", "friend")
	store.addTicket("t-enemy", "enemy", at(1))
	store.addReview("r-friend-on-enemy", "friend", "t-enemy", at(2))
	store.block("viewer", "enemy")

	feed, err := newTestAggregator(store).Build(context.Background(), "viewer")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	item := findItem(t, feed.Items, "r-friend-on-enemy")
	if item.AuthorIsBlocked {
		t.Error("AuthorIsBlocked = true for a followed reviewer")
	}
	if !item.TicketAuthorIsBlocked {
		t.Error("TicketAuthorIsBlocked = false, want true")
	}
}

func TestBuild_EmptyFeed(t *testing.T) {
	store := newFakeStore()

	feed, err := newTestAggregator(store).Build(context.Background(), "viewer")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(feed.Items) != 0 || feed.HasAnyFollow {
		t.Errorf("feed = %+v, want empty without follows", feed)
	}
	if store.reviewedCall != 0 {
		t.Error("ListReviewedTicketIDs should not be called without REQUEST items")
	}
}

// 読み取りに失敗した場合は部分的な結果を返さないことを検証
func TestBuild_StoreFailure(t *testing.T) {
	storeErr := errors.New("connection refused")
	tests := []struct {
		name  string
		setup func(s *fakeStore)
	}{
		{"チケット取得失敗", func(s *fakeStore) { s.failTickets = storeErr }},
		{"レビュー取得失敗", func(s *fakeStore) { s.failReviews = storeErr }},
		{"レビュー済み判定失敗", func(s *fakeStore) { s.failReviewed = storeErr }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			store.addTicket("t-own", "viewer", at(1))
			tt.setup(store)

			feed, err := newTestAggregator(store).Build(context.Background(), "viewer")
			if !errors.Is(err, storeErr) {
				t.Errorf("Build() error = %v, want %v", err, storeErr)
			}
			if feed != nil {
				t.Errorf("Build() returned partial feed %+v", feed)
			}
		})
	}
}
