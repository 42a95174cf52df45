package repository

import (
	"bytes"
	"cmp"
	"context"
	"iter"
	"slices"
	"sync"

	"github.com/hitoshi/diskuto-web/internal/model"
)

// MemoryContentRepo はメモリ上にアイテムを保持するコンテンツソース。
// テストとデモモード（CONTENT_SOURCE=memory）で使用する。
type MemoryContentRepo struct {
	mu        sync.RWMutex
	items     map[string]model.ItemRecord
	homeUsers map[model.UserID]bool
	follows   map[model.UserID][]model.UserID
}

// NewMemoryContentRepo はMemoryContentRepoを生成する。
func NewMemoryContentRepo() *MemoryContentRepo {
	return &MemoryContentRepo{
		items:     make(map[string]model.ItemRecord),
		homeUsers: make(map[model.UserID]bool),
		follows:   make(map[model.UserID][]model.UserID),
	}
}

// PutItem はアイテムを登録する。同じキーのアイテムは上書きされる。
// プロフィールを登録した場合、そのフォロー一覧がフィードの対象になる。
func (r *MemoryContentRepo) PutItem(userID model.UserID, signature model.Signature, item model.Item) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[model.ItemKey(userID, signature)] = model.ItemRecord{
		Item:      item,
		UserID:    userID,
		Signature: signature,
	}

	if item.Profile != nil {
		followees := make([]model.UserID, 0, len(item.Profile.Follows))
		for _, f := range item.Profile.Follows {
			followees = append(followees, f.UserID)
		}
		r.follows[userID] = followees
	}
}

// AddHomeUser はホームページに表示するユーザーを登録する。
func (r *MemoryContentRepo) AddHomeUser(userID model.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.homeUsers[userID] = true
}

// GetItem は指定アイテムを取得する。見つからない場合はnilを返す。
func (r *MemoryContentRepo) GetItem(_ context.Context, userID model.UserID, signature model.Signature) (*model.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.items[model.ItemKey(userID, signature)]
	if !ok {
		return nil, nil
	}
	item := rec.Item
	return &item, nil
}

// GetProfile はユーザーの最新プロフィールを取得する。見つからない場合はnilを返す。
func (r *MemoryContentRepo) GetProfile(_ context.Context, userID model.UserID) (*ProfileItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *model.ItemRecord
	for _, rec := range r.items {
		if rec.UserID != userID || rec.Item.Kind() != model.ItemKindProfile {
			continue
		}
		if latest == nil || rec.Item.TimestampMsUTC > latest.Item.TimestampMsUTC {
			found := rec
			latest = &found
		}
	}
	if latest == nil {
		return nil, nil
	}
	return &ProfileItem{Item: latest.Item, Signature: latest.Signature}, nil
}

// HomepageItems はホームページ対象ユーザーの投稿を新しい順に返す。
func (r *MemoryContentRepo) HomepageItems(ctx context.Context, bounds Bounds) iter.Seq2[model.ContentEntry, error] {
	return r.stream(ctx, bounds, false, func(rec model.ItemRecord) bool {
		return r.homeUsers[rec.UserID] && rec.Item.Kind() == model.ItemKindPost
	})
}

// UserFeedItems はフォロー先ユーザーのアイテムを新しい順に返す。
func (r *MemoryContentRepo) UserFeedItems(ctx context.Context, userID model.UserID, bounds Bounds) iter.Seq2[model.ContentEntry, error] {
	return r.stream(ctx, bounds, false, func(rec model.ItemRecord) bool {
		return slices.Contains(r.follows[userID], rec.UserID)
	})
}

// UserItems は指定ユーザーのアイテムを新しい順に返す。
func (r *MemoryContentRepo) UserItems(ctx context.Context, userID model.UserID, bounds Bounds) iter.Seq2[model.ContentEntry, error] {
	return r.stream(ctx, bounds, false, func(rec model.ItemRecord) bool {
		return rec.UserID == userID
	})
}

// ReplyItems は指定アイテムへのコメントを古い順に返す。
func (r *MemoryContentRepo) ReplyItems(ctx context.Context, userID model.UserID, signature model.Signature) iter.Seq2[model.ContentEntry, error] {
	return r.stream(ctx, Bounds{}, true, func(rec model.ItemRecord) bool {
		c := rec.Item.Comment
		return c != nil && c.ReplyTo.UserID == userID && c.ReplyTo.Signature == signature
	})
}

// stream は条件に一致するアイテムのスナップショットを作り、順に返すストリームを生成する。
func (r *MemoryContentRepo) stream(
	ctx context.Context,
	bounds Bounds,
	ascending bool,
	match func(model.ItemRecord) bool,
) iter.Seq2[model.ContentEntry, error] {
	return func(yield func(model.ContentEntry, error) bool) {
		r.mu.RLock()
		var entries []model.ContentEntry
		for _, rec := range r.items {
			ts := rec.Item.TimestampMsUTC
			if bounds.Before != nil && ts >= *bounds.Before {
				continue
			}
			if bounds.After != nil && ts <= *bounds.After {
				continue
			}
			if !match(rec) {
				continue
			}
			entries = append(entries, model.ContentEntry{
				UserID:         rec.UserID,
				Signature:      rec.Signature,
				TimestampMsUTC: ts,
			})
		}
		r.mu.RUnlock()

		// PostgresContentRepoの (timestamp_ms, signature) と同じ並び。同時刻は署名のバイト列で比較する
		slices.SortFunc(entries, func(a, b model.ContentEntry) int {
			c := cmp.Compare(a.TimestampMsUTC, b.TimestampMsUTC)
			if c == 0 {
				c = bytes.Compare(a.Signature.Bytes(), b.Signature.Bytes())
			}
			if ascending {
				return c
			}
			return -c
		})

		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				yield(model.ContentEntry{}, err)
				return
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}
