package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/litreview/internal/feed"
	"github.com/hitoshi/litreview/internal/middleware"
	"github.com/hitoshi/litreview/internal/model"
	"github.com/hitoshi/litreview/internal/relationship"
	"github.com/hitoshi/litreview/internal/ticket"
)

const (
	testSessionID = "sess-test"
	testUserID    = "0192a000-0000-7000-8000-000000000001"
	testOtherID   = "0192a000-0000-7000-8000-000000000002"
	testCSRFToken = "csrf-test-token"
)

// --- モック定義 ---

type mockSessionFinder struct {
	sessions map[string]*model.Session
}

func (m *mockSessionFinder) FindByID(ctx context.Context, id string) (*model.Session, error) {
	return m.sessions[id], nil
}

type mockAuthService struct {
	signUpFn         func(ctx context.Context, username, password string) (*model.User, *model.Session, error)
	loginFn          func(ctx context.Context, username, password string) (*model.Session, error)
	logoutFn         func(ctx context.Context, sessionID string) error
	getCurrentUserFn func(ctx context.Context, sessionID string) (*model.User, error)
	changePasswordFn func(ctx context.Context, userID, currentSessionID, oldPassword, newPassword string) error
}

func (m *mockAuthService) SignUp(ctx context.Context, username, password string) (*model.User, *model.Session, error) {
	return m.signUpFn(ctx, username, password)
}

func (m *mockAuthService) Login(ctx context.Context, username, password string) (*model.Session, error) {
	return m.loginFn(ctx, username, password)
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	return m.getCurrentUserFn(ctx, sessionID)
}

func (m *mockAuthService) ChangePassword(ctx context.Context, userID, currentSessionID, oldPassword, newPassword string) error {
	return m.changePasswordFn(ctx, userID, currentSessionID, oldPassword, newPassword)
}

type mockRelationshipService struct {
	followFn           func(ctx context.Context, viewerID, targetID string) (*model.Follow, error)
	followByUsernameFn func(ctx context.Context, viewerID, username string) (*model.Follow, error)
	unfollowFn         func(ctx context.Context, viewerID, targetID string) (model.RemovalOutcome, error)
	blockFn            func(ctx context.Context, viewerID, targetID, reason string) (*model.BlockResult, error)
	unblockFn          func(ctx context.Context, viewerID, targetID string) (model.RemovalOutcome, error)
	listBlockedFn      func(ctx context.Context, userID string) ([]model.BlockWithUser, error)
	getOverviewFn      func(ctx context.Context, userID string) (*relationship.Overview, error)
}

func (m *mockRelationshipService) Follow(ctx context.Context, viewerID, targetID string) (*model.Follow, error) {
	return m.followFn(ctx, viewerID, targetID)
}

func (m *mockRelationshipService) FollowByUsername(ctx context.Context, viewerID, username string) (*model.Follow, error) {
	return m.followByUsernameFn(ctx, viewerID, username)
}

func (m *mockRelationshipService) Unfollow(ctx context.Context, viewerID, targetID string) (model.RemovalOutcome, error) {
	return m.unfollowFn(ctx, viewerID, targetID)
}

func (m *mockRelationshipService) Block(ctx context.Context, viewerID, targetID, reason string) (*model.BlockResult, error) {
	return m.blockFn(ctx, viewerID, targetID, reason)
}

func (m *mockRelationshipService) Unblock(ctx context.Context, viewerID, targetID string) (model.RemovalOutcome, error) {
	return m.unblockFn(ctx, viewerID, targetID)
}

func (m *mockRelationshipService) ListBlocked(ctx context.Context, userID string) ([]model.BlockWithUser, error) {
	return m.listBlockedFn(ctx, userID)
}

func (m *mockRelationshipService) GetOverview(ctx context.Context, userID string) (*relationship.Overview, error) {
	return m.getOverviewFn(ctx, userID)
}

type mockTicketService struct {
	createTicketFn           func(ctx context.Context, viewerID string, input ticket.TicketInput) (*model.Ticket, error)
	createTicketWithReviewFn func(ctx context.Context, viewerID string, ti ticket.TicketInput, ri ticket.ReviewInput) (*model.Ticket, *model.Review, error)
	getTicketFn              func(ctx context.Context, viewerID, ticketID string) (*ticket.TicketDetail, error)
	updateTicketFn           func(ctx context.Context, viewerID, ticketID string, input ticket.TicketInput) (*model.Ticket, error)
	deleteTicketFn           func(ctx context.Context, viewerID, ticketID string) (int, error)
	createReviewFn           func(ctx context.Context, viewerID, ticketID string, input ticket.ReviewInput) (*model.Review, error)
	updateReviewFn           func(ctx context.Context, viewerID, reviewID string, input ticket.ReviewInput) (*model.ReviewWithTicket, error)
	deleteReviewFn           func(ctx context.Context, viewerID, reviewID string) error
	listPostsFn              func(ctx context.Context, viewerID string) (*ticket.Posts, error)
}

func (m *mockTicketService) CreateTicket(ctx context.Context, viewerID string, input ticket.TicketInput) (*model.Ticket, error) {
	return m.createTicketFn(ctx, viewerID, input)
}

func (m *mockTicketService) CreateTicketWithReview(ctx context.Context, viewerID string, ti ticket.TicketInput, ri ticket.ReviewInput) (*model.Ticket, *model.Review, error) {
	return m.createTicketWithReviewFn(ctx, viewerID, ti, ri)
}

func (m *mockTicketService) GetTicket(ctx context.Context, viewerID, ticketID string) (*ticket.TicketDetail, error) {
	return m.getTicketFn(ctx, viewerID, ticketID)
}

func (m *mockTicketService) UpdateTicket(ctx context.Context, viewerID, ticketID string, input ticket.TicketInput) (*model.Ticket, error) {
	return m.updateTicketFn(ctx, viewerID, ticketID, input)
}

func (m *mockTicketService) DeleteTicket(ctx context.Context, viewerID, ticketID string) (int, error) {
	return m.deleteTicketFn(ctx, viewerID, ticketID)
}

func (m *mockTicketService) CreateReview(ctx context.Context, viewerID, ticketID string, input ticket.ReviewInput) (*model.Review, error) {
	return m.createReviewFn(ctx, viewerID, ticketID, input)
}

func (m *mockTicketService) UpdateReview(ctx context.Context, viewerID, reviewID string, input ticket.ReviewInput) (*model.ReviewWithTicket, error) {
	return m.updateReviewFn(ctx, viewerID, reviewID, input)
}

func (m *mockTicketService) DeleteReview(ctx context.Context, viewerID, reviewID string) error {
	return m.deleteReviewFn(ctx, viewerID, reviewID)
}

func (m *mockTicketService) ListPosts(ctx context.Context, viewerID string) (*ticket.Posts, error) {
	return m.listPostsFn(ctx, viewerID)
}

type mockFeedBuilder struct {
	buildFn func(ctx context.Context, viewerID string) (*feed.Feed, error)
}

func (m *mockFeedBuilder) Build(ctx context.Context, viewerID string) (*feed.Feed, error) {
	return m.buildFn(ctx, viewerID)
}

type mockMediaService struct {
	maxSize         int64
	uploadFn        func(ctx context.Context, ownerID string, data []byte) (*model.Media, error)
	importFromURLFn func(ctx context.Context, ownerID, rawURL string) (*model.Media, error)
	getFn           func(ctx context.Context, id string) (*model.Media, error)
}

func (m *mockMediaService) MaxSize() int64 { return m.maxSize }

func (m *mockMediaService) Upload(ctx context.Context, ownerID string, data []byte) (*model.Media, error) {
	return m.uploadFn(ctx, ownerID, data)
}

func (m *mockMediaService) ImportFromURL(ctx context.Context, ownerID, rawURL string) (*model.Media, error) {
	return m.importFromURLFn(ctx, ownerID, rawURL)
}

func (m *mockMediaService) Get(ctx context.Context, id string) (*model.Media, error) {
	return m.getFn(ctx, id)
}

type mockUserService struct {
	getProfileFn      func(ctx context.Context, userID string) (*model.User, error)
	setProfilePhotoFn func(ctx context.Context, userID string, mediaID *string) (*model.User, error)
	withdrawFn        func(ctx context.Context, userID string) error
}

func (m *mockUserService) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	return m.getProfileFn(ctx, userID)
}

func (m *mockUserService) SetProfilePhoto(ctx context.Context, userID string, mediaID *string) (*model.User, error) {
	return m.setProfilePhotoFn(ctx, userID, mediaID)
}

func (m *mockUserService) Withdraw(ctx context.Context, userID string) error {
	return m.withdrawFn(ctx, userID)
}

// --- テスト用ルーター ---

// newTestRouter はモックサービスでルーターを組み立てる。
// 未設定のサービスは空のモックになり、呼ばれるとnil関数呼び出しでpanicする。
func newTestRouter(t *testing.T, deps RouterDeps) http.Handler {
	t.Helper()

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	deps.RateLimiter = rl
	deps.SessionFinder = &mockSessionFinder{sessions: map[string]*model.Session{
		testSessionID: {ID: testSessionID, UserID: testUserID, ExpiresAt: time.Now().Add(time.Hour)},
	}}
	if deps.AuthService == nil {
		deps.AuthService = &mockAuthService{}
	}
	if deps.RelationshipService == nil {
		deps.RelationshipService = &mockRelationshipService{}
	}
	if deps.TicketService == nil {
		deps.TicketService = &mockTicketService{}
	}
	if deps.FeedBuilder == nil {
		deps.FeedBuilder = &mockFeedBuilder{}
	}
	if deps.MediaService == nil {
		deps.MediaService = &mockMediaService{maxSize: 1024}
	}
	if deps.UserService == nil {
		deps.UserService = &mockUserService{}
	}
	return NewRouter(&deps)
}

// authedRequest はセッションCookieとCSRFトークンを付けたリクエストを生成する。
func authedRequest(method, path, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: testSessionID})
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: testCSRFToken})
	req.Header.Set(middleware.CSRFHeaderName, testCSRFToken)
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}
