package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/diskuto-web/internal/content"
	"github.com/hitoshi/diskuto-web/internal/middleware"
	"github.com/hitoshi/diskuto-web/internal/model"
	"github.com/hitoshi/diskuto-web/internal/pagination"
)

// --- モック定義 ---

// mockContentService はContentServiceのモック実装。
type mockContentService struct {
	loadHomePageFn       func(ctx context.Context, window pagination.Window) (content.PaginatedResults, error)
	loadUserFeedFn       func(ctx context.Context, userID model.UserID, window pagination.Window) (content.PaginatedResults, error)
	loadUserPostsFn      func(ctx context.Context, userID model.UserID, window pagination.Window) (content.PaginatedResults, error)
	getItemPlusFn        func(ctx context.Context, userID model.UserID, signature model.Signature) *model.EnrichedItem
	getCommentsFn        func(ctx context.Context, userID model.UserID, signature model.Signature, maxCount int) []model.EnrichedItem
	getProfileFn         func(ctx context.Context, userID model.UserID) *model.ProfileRecord
	getProfileUncachedFn func(ctx context.Context, userID model.UserID) *model.ProfileRecord
	getDisplayNameFn     func(ctx context.Context, userID model.UserID) model.DisplayName
}

func (m *mockContentService) LoadHomePage(ctx context.Context, window pagination.Window) (content.PaginatedResults, error) {
	if m.loadHomePageFn != nil {
		return m.loadHomePageFn(ctx, window)
	}
	return content.PaginatedResults{}, nil
}

func (m *mockContentService) LoadUserFeed(ctx context.Context, userID model.UserID, window pagination.Window) (content.PaginatedResults, error) {
	if m.loadUserFeedFn != nil {
		return m.loadUserFeedFn(ctx, userID, window)
	}
	return content.PaginatedResults{}, nil
}

func (m *mockContentService) LoadUserPosts(ctx context.Context, userID model.UserID, window pagination.Window) (content.PaginatedResults, error) {
	if m.loadUserPostsFn != nil {
		return m.loadUserPostsFn(ctx, userID, window)
	}
	return content.PaginatedResults{}, nil
}

func (m *mockContentService) GetItemPlus(ctx context.Context, userID model.UserID, signature model.Signature) *model.EnrichedItem {
	if m.getItemPlusFn != nil {
		return m.getItemPlusFn(ctx, userID, signature)
	}
	return nil
}

func (m *mockContentService) GetComments(ctx context.Context, userID model.UserID, signature model.Signature, maxCount int) []model.EnrichedItem {
	if m.getCommentsFn != nil {
		return m.getCommentsFn(ctx, userID, signature, maxCount)
	}
	return nil
}

func (m *mockContentService) GetProfile(ctx context.Context, userID model.UserID) *model.ProfileRecord {
	if m.getProfileFn != nil {
		return m.getProfileFn(ctx, userID)
	}
	return nil
}

func (m *mockContentService) GetProfileUncached(ctx context.Context, userID model.UserID) *model.ProfileRecord {
	if m.getProfileUncachedFn != nil {
		return m.getProfileUncachedFn(ctx, userID)
	}
	return nil
}

func (m *mockContentService) GetDisplayName(ctx context.Context, userID model.UserID) model.DisplayName {
	if m.getDisplayNameFn != nil {
		return m.getDisplayNameFn(ctx, userID)
	}
	return model.ResolveDisplayName(userID, nil)
}

// --- ヘルパー ---

const testAPIURL = "https://api.example.com"

func testUserID(t *testing.T, b byte) model.UserID {
	t.Helper()
	id, err := model.UserIDFromBytes(bytes.Repeat([]byte{b}, model.UserIDLength))
	if err != nil {
		t.Fatalf("UserIDFromBytes: %v", err)
	}
	return id
}

func testSignature(t *testing.T, b byte) model.Signature {
	t.Helper()
	sig, err := model.SignatureFromBytes(bytes.Repeat([]byte{b}, model.SignatureLength))
	if err != nil {
		t.Fatalf("SignatureFromBytes: %v", err)
	}
	return sig
}

func enrichedPost(uid model.UserID, sig model.Signature, ts int64, title, name string) model.EnrichedItem {
	return model.EnrichedItem{
		ItemRecord: model.ItemRecord{
			Item:      model.Item{TimestampMsUTC: ts, Post: &model.Post{Title: title, Body: "body of " + title}},
			UserID:    uid,
			Signature: sig,
		},
		User: model.DisplayName{DisplayName: name},
	}
}

func newTestRouter(svc ContentService) http.Handler {
	return NewRouter(&RouterDeps{
		Content: svc,
		APIURL:  testAPIURL,
	})
}

// serve はリクエストを実行する。cookiesは順にリクエストへ付与する。
func serve(t *testing.T, router http.Handler, target string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func viewerCookie(uid model.UserID) *http.Cookie {
	return &http.Cookie{Name: middleware.ViewerCookieName, Value: uid.String()}
}

func notABotCookie() *http.Cookie {
	return &http.Cookie{Name: middleware.NotABotCookieName, Value: "!"}
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v\nbody: %s", err, w.Body.String())
	}
	return v
}

func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Errorf("status = %d, want %d (body: %s)", w.Code, status, w.Body.String())
	}
	body := decodeBody[middleware.ErrorResponseBody](t, w)
	if body.Code != code {
		t.Errorf("code = %q, want %q", body.Code, code)
	}
}

func hasCookie(w *httptest.ResponseRecorder, name string) bool {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return true
		}
	}
	return false
}
