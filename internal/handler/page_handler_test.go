package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/hitoshi/diskuto-web/internal/content"
	"github.com/hitoshi/diskuto-web/internal/model"
	"github.com/hitoshi/diskuto-web/internal/pagination"
)

// --- GET / ---

func TestPageHandler_Root_Redirects(t *testing.T) {
	viewer := testUserID(t, 1)
	router := newTestRouter(&mockContentService{})

	w := serve(t, router, "/")
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/home" {
		t.Errorf("anonymous: status = %d, Location = %q, want 302 /home", w.Code, w.Header().Get("Location"))
	}

	w = serve(t, router, "/", viewerCookie(viewer))
	want := "/u/" + viewer.String() + "/feed"
	if w.Code != http.StatusFound || w.Header().Get("Location") != want {
		t.Errorf("viewer: status = %d, Location = %q, want 302 %s", w.Code, w.Header().Get("Location"), want)
	}
}

// --- GET /home ---

func TestPageHandler_Home_Success(t *testing.T) {
	uid := testUserID(t, 1)
	svc := &mockContentService{
		loadHomePageFn: func(ctx context.Context, window pagination.Window) (content.PaginatedResults, error) {
			if window.Before == nil || *window.Before != 5000 {
				t.Errorf("window.Before = %v, want 5000", window.Before)
			}
			if window.After != nil {
				t.Errorf("window.After = %v, want nil", *window.After)
			}
			if window.MaxCount != 0 {
				t.Errorf("window.MaxCount = %d, want 0 (default)", window.MaxCount)
			}
			return content.PaginatedResults{
				Items: []model.EnrichedItem{
					enrichedPost(uid, testSignature(t, 2), 4000, "second", "Alice"),
					enrichedPost(uid, testSignature(t, 3), 3000, "first", "Alice"),
				},
				Pagination: pagination.Cursor{Before: pagination.Ptr(3000), After: pagination.Ptr(4000)},
			}, nil
		},
	}

	w := serve(t, newTestRouter(svc), "/home?before=5000")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	body := decodeBody[pageResponse](t, w)
	if body.Title != "Home Page" {
		t.Errorf("title = %q, want %q", body.Title, "Home Page")
	}
	if len(body.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(body.Items))
	}
	if body.Items[0].Item.Post.Title != "second" {
		t.Errorf("items[0].title = %q, want %q", body.Items[0].Item.Post.Title, "second")
	}
	if body.Items[0].User.DisplayName != "Alice" {
		t.Errorf("items[0].user = %q, want Alice", body.Items[0].User.DisplayName)
	}
	if body.Pagination.Before == nil || *body.Pagination.Before != 3000 {
		t.Errorf("pagination.before = %v, want 3000", body.Pagination.Before)
	}
	if body.End {
		t.Error("end should be false for a non-empty page")
	}
}

func TestPageHandler_Home_EmptyAfterRedirects(t *testing.T) {
	w := serve(t, newTestRouter(&mockContentService{}), "/home?after=9999")

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	if loc := w.Header().Get("Location"); loc != "/home" {
		t.Errorf("Location = %q, want /home", loc)
	}
}

func TestPageHandler_Home_EmptyBeforeIsEnd(t *testing.T) {
	svc := &mockContentService{
		loadHomePageFn: func(ctx context.Context, window pagination.Window) (content.PaginatedResults, error) {
			return content.PaginatedResults{Pagination: pagination.Cursor{After: pagination.Ptr(99)}}, nil
		},
	}

	w := serve(t, newTestRouter(svc), "/home?before=100")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	body := decodeBody[pageResponse](t, w)
	if !body.End {
		t.Error("end = false, want true")
	}
	if body.Items == nil || len(body.Items) != 0 {
		t.Errorf("items = %v, want empty array", body.Items)
	}
	if body.Pagination.After == nil || *body.Pagination.After != 99 {
		t.Errorf("pagination.after = %v, want 99", body.Pagination.After)
	}
}

func TestPageHandler_Home_EmptyWithBothBoundsRedirects(t *testing.T) {
	w := serve(t, newTestRouter(&mockContentService{}), "/home?before=500&after=300")

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	if loc := w.Header().Get("Location"); loc != "/home" {
		t.Errorf("Location = %q, want /home", loc)
	}
}

// 読み込めないアイテムだけのページは空でも、古い側のカーソルがあれば終端ではない。
func TestPageHandler_UserPosts_EmptyPageWithOlderCursorIsNotEnd(t *testing.T) {
	svc := &mockContentService{
		loadUserPostsFn: func(ctx context.Context, userID model.UserID, window pagination.Window) (content.PaginatedResults, error) {
			return content.PaginatedResults{Pagination: pagination.Cursor{
				Before: pagination.Ptr(400),
				After:  pagination.Ptr(600),
			}}, nil
		},
	}

	uid := testUserID(t, 1)
	w := serve(t, newTestRouter(svc), "/u/"+uid.String()+"/?before=700")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	body := decodeBody[pageResponse](t, w)
	if body.End {
		t.Error("end = true, want false")
	}
	if body.Pagination.Before == nil || *body.Pagination.Before != 400 {
		t.Errorf("pagination.before = %v, want 400", body.Pagination.Before)
	}
}

func TestPageHandler_Home_InvalidCursor(t *testing.T) {
	tests := []string{"/home?before=abc", "/home?after=1.5", "/home?before=99999999999999999999"}

	for _, target := range tests {
		t.Run(target, func(t *testing.T) {
			w := serve(t, newTestRouter(&mockContentService{}), target)
			assertErrorCode(t, w, http.StatusBadRequest, model.ErrCodeInvalidCursor)
		})
	}
}

func TestPageHandler_Home_UpstreamFailure(t *testing.T) {
	svc := &mockContentService{
		loadHomePageFn: func(ctx context.Context, window pagination.Window) (content.PaginatedResults, error) {
			return content.PaginatedResults{}, errors.New("connection refused")
		},
	}

	w := serve(t, newTestRouter(svc), "/home")
	assertErrorCode(t, w, http.StatusBadGateway, model.ErrCodeUpstreamFailed)
}

// --- GET /u/{uid}/ ---

func TestPageHandler_UserPosts_Success(t *testing.T) {
	uid := testUserID(t, 1)
	svc := &mockContentService{
		loadUserPostsFn: func(ctx context.Context, userID model.UserID, window pagination.Window) (content.PaginatedResults, error) {
			if userID != uid {
				t.Errorf("userID = %s, want %s", userID, uid)
			}
			return content.PaginatedResults{
				Items: []model.EnrichedItem{enrichedPost(uid, testSignature(t, 2), 1000, "hello", "Alice")},
			}, nil
		},
		getDisplayNameFn: func(ctx context.Context, userID model.UserID) model.DisplayName {
			return model.DisplayName{DisplayName: "Alice"}
		},
	}

	w := serve(t, newTestRouter(svc), "/u/"+uid.String()+"/")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	body := decodeBody[pageResponse](t, w)
	if body.Title != "Alice: Posts" {
		t.Errorf("title = %q, want %q", body.Title, "Alice: Posts")
	}
	if body.User == nil || body.User.DisplayName != "Alice" {
		t.Errorf("user = %+v, want Alice", body.User)
	}
}

func TestPageHandler_UserPosts_FallsBackToUserID(t *testing.T) {
	uid := testUserID(t, 1)

	w := serve(t, newTestRouter(&mockContentService{}), "/u/"+uid.String()+"/")
	body := decodeBody[pageResponse](t, w)

	if body.Title != uid.String()+": Posts" {
		t.Errorf("title = %q, want %q", body.Title, uid.String()+": Posts")
	}
	if body.User == nil || !body.User.IsID {
		t.Errorf("user = %+v, want id fallback", body.User)
	}
}

func TestPageHandler_UserPosts_InvalidUserID(t *testing.T) {
	w := serve(t, newTestRouter(&mockContentService{}), "/u/not-a-user/")
	assertErrorCode(t, w, http.StatusBadRequest, model.ErrCodeInvalidID)
}

func TestPageHandler_UserPosts_EmptyAfterRedirectsToUnboundedPage(t *testing.T) {
	uid := testUserID(t, 1)
	path := "/u/" + uid.String() + "/"

	w := serve(t, newTestRouter(&mockContentService{}), path+"?after=100")
	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	if loc := w.Header().Get("Location"); loc != path {
		t.Errorf("Location = %q, want %q", loc, path)
	}
}

// --- GET /u/{uid}/feed ---

func TestPageHandler_UserFeed_CursorRequiresNotABotCookie(t *testing.T) {
	uid := testUserID(t, 1)
	called := false
	svc := &mockContentService{
		loadUserFeedFn: func(ctx context.Context, userID model.UserID, window pagination.Window) (content.PaginatedResults, error) {
			called = true
			return content.PaginatedResults{
				Items: []model.EnrichedItem{enrichedPost(testUserID(t, 2), testSignature(t, 3), 50, "x", "Bob")},
			}, nil
		},
	}
	router := newTestRouter(svc)
	path := "/u/" + uid.String() + "/feed"

	// カーソルなしはCookieがなくても表示できる
	w := serve(t, router, path)
	if w.Code != http.StatusOK {
		t.Errorf("first page status = %d, want %d", w.Code, http.StatusOK)
	}
	if !hasCookie(w, "z") {
		t.Error("not-a-bot cookie should be set on the response")
	}

	called = false
	w = serve(t, router, path+"?before=100")
	assertErrorCode(t, w, http.StatusForbidden, model.ErrCodeBotDenied)
	if called {
		t.Error("LoadUserFeed should not be called for a denied request")
	}

	w = serve(t, router, path+"?before=100", notABotCookie())
	if w.Code != http.StatusOK {
		t.Errorf("with cookie status = %d, want %d", w.Code, http.StatusOK)
	}
	body := decodeBody[pageResponse](t, w)
	if body.Title != uid.String()+": Feed" {
		t.Errorf("title = %q, want %q", body.Title, uid.String()+": Feed")
	}
}

// --- GET /u/{uid}/profile ---

func TestPageHandler_Profile_CachedForOtherViewers(t *testing.T) {
	uid := testUserID(t, 1)
	var cached, uncached int
	profile := &model.ProfileRecord{
		UserID:  uid,
		Profile: model.Profile{DisplayName: "  Alice  ", About: "hi"},
	}
	svc := &mockContentService{
		getProfileFn: func(ctx context.Context, userID model.UserID) *model.ProfileRecord {
			cached++
			return profile
		},
		getProfileUncachedFn: func(ctx context.Context, userID model.UserID) *model.ProfileRecord {
			uncached++
			return profile
		},
	}
	router := newTestRouter(svc)
	path := "/u/" + uid.String() + "/profile"

	w := serve(t, router, path, viewerCookie(testUserID(t, 9)))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := decodeBody[profileResponse](t, w)
	if body.Title != "Alice: Profile" {
		t.Errorf("title = %q, want %q", body.Title, "Alice: Profile")
	}
	if body.Profile.Profile.About != "hi" {
		t.Errorf("about = %q, want %q", body.Profile.Profile.About, "hi")
	}
	if cached != 1 || uncached != 0 {
		t.Errorf("other viewer: cached = %d, uncached = %d, want 1, 0", cached, uncached)
	}

	serve(t, router, path, viewerCookie(uid))
	if cached != 1 || uncached != 1 {
		t.Errorf("own profile: cached = %d, uncached = %d, want 1, 1", cached, uncached)
	}
}

func TestPageHandler_Profile_NotFound(t *testing.T) {
	uid := testUserID(t, 1)
	w := serve(t, newTestRouter(&mockContentService{}), "/u/"+uid.String()+"/profile")
	assertErrorCode(t, w, http.StatusNotFound, model.ErrCodeProfileNotFound)
}

// --- GET /u/{uid}/i/{sig}/ ---

func TestPageHandler_Item_WithComments(t *testing.T) {
	uid := testUserID(t, 1)
	sig := testSignature(t, 2)
	commenter := testUserID(t, 3)
	post := enrichedPost(uid, sig, 1000, "hello", "Alice")

	svc := &mockContentService{
		getItemPlusFn: func(ctx context.Context, userID model.UserID, signature model.Signature) *model.EnrichedItem {
			if userID != uid || signature != sig {
				t.Errorf("GetItemPlus(%s, %s), want (%s, %s)", userID, signature, uid, sig)
			}
			return &post
		},
		getCommentsFn: func(ctx context.Context, userID model.UserID, signature model.Signature, maxCount int) []model.EnrichedItem {
			if maxCount != content.DefaultCommentCount {
				t.Errorf("maxCount = %d, want %d", maxCount, content.DefaultCommentCount)
			}
			return []model.EnrichedItem{{
				ItemRecord: model.ItemRecord{
					Item: model.Item{TimestampMsUTC: 2000, Comment: &model.Comment{
						ReplyTo: model.ReplyRef{UserID: uid, Signature: sig},
						Text:    "nice",
					}},
					UserID:    commenter,
					Signature: testSignature(t, 4),
				},
				User:    model.DisplayName{DisplayName: "Bob"},
				ReplyTo: &model.ReplyTarget{UserID: uid, Signature: sig, DisplayName: model.DisplayName{DisplayName: "Alice"}},
			}}
		},
	}
	router := newTestRouter(svc)
	path := "/u/" + uid.String() + "/i/" + sig.String() + "/"

	w := serve(t, router, path)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := decodeBody[itemPageResponse](t, w)
	if body.Title != "Alice: Post" {
		t.Errorf("title = %q, want %q", body.Title, "Alice: Post")
	}
	if len(body.Comments) != 1 || body.Comments[0].ReplyTo == nil || body.Comments[0].ReplyTo.DisplayName.DisplayName != "Alice" {
		t.Errorf("comments = %+v, want one reply to Alice", body.Comments)
	}
	if body.Editable {
		t.Error("editable should be false for anonymous viewers")
	}

	w = serve(t, router, path, viewerCookie(uid))
	if body := decodeBody[itemPageResponse](t, w); !body.Editable {
		t.Error("editable should be true for the author")
	}
}

func TestPageHandler_Item_NotFound(t *testing.T) {
	uid := testUserID(t, 1)
	sig := testSignature(t, 2)
	w := serve(t, newTestRouter(&mockContentService{}), "/u/"+uid.String()+"/i/"+sig.String()+"/")
	assertErrorCode(t, w, http.StatusNotFound, model.ErrCodeItemNotFound)
}

func TestPageHandler_Item_InvalidSignature(t *testing.T) {
	uid := testUserID(t, 1)
	w := serve(t, newTestRouter(&mockContentService{}), "/u/"+uid.String()+"/i/xyz/")
	assertErrorCode(t, w, http.StatusBadRequest, model.ErrCodeInvalidID)
}

// --- GET /x/item ---

func TestPageHandler_ItemFragment(t *testing.T) {
	uid := testUserID(t, 1)
	sig := testSignature(t, 2)
	post := enrichedPost(uid, sig, 1000, "hello", "Alice")
	svc := &mockContentService{
		getItemPlusFn: func(ctx context.Context, userID model.UserID, signature model.Signature) *model.EnrichedItem {
			return &post
		},
	}
	router := newTestRouter(svc)
	target := "/x/item?u=" + uid.String() + "&s=" + sig.String()

	w := serve(t, router, target, viewerCookie(uid))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := decodeBody[itemFragmentResponse](t, w)
	if !body.Editable {
		t.Error("editable should be true for the author")
	}
	if body.Item.Item.Post == nil || body.Item.Item.Post.Title != "hello" {
		t.Errorf("item = %+v, want post 'hello'", body.Item)
	}

	w = serve(t, router, "/x/item?u="+uid.String()+"&s=bad")
	assertErrorCode(t, w, http.StatusBadRequest, model.ErrCodeInvalidID)
}
