package content

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/diskuto-web/internal/model"
)

// LoadEntryPlus はアイテムに投稿者の表示名を付与して返す。
// アイテムとプロフィールは並行して取得する。コメントの場合は返信先の投稿者の
// 表示名も解決する（1階層のみ）。アイテムが見つからない場合はnil。
func (c *Client) LoadEntryPlus(ctx context.Context, entry model.ContentEntry) *model.EnrichedItem {
	var (
		rec     *model.ItemRecord
		profile *model.ProfileRecord
	)

	var g errgroup.Group
	g.Go(func() error {
		rec = c.LoadEntry(ctx, entry)
		return nil
	})
	g.Go(func() error {
		profile = c.GetProfile(ctx, entry.UserID)
		return nil
	})
	_ = g.Wait()

	if rec == nil {
		return nil
	}

	enriched := &model.EnrichedItem{
		ItemRecord: *rec,
		User:       model.ResolveDisplayName(entry.UserID, profile),
	}

	if comment := rec.Item.Comment; comment != nil {
		target := comment.ReplyTo
		enriched.ReplyTo = &model.ReplyTarget{
			UserID:      target.UserID,
			Signature:   target.Signature,
			DisplayName: c.GetDisplayName(ctx, target.UserID),
		}
	}

	return enriched
}

// GetItemPlus は指定アイテムを表示名と返信先付きで返す。見つからない場合はnil。
func (c *Client) GetItemPlus(ctx context.Context, userID model.UserID, signature model.Signature) *model.EnrichedItem {
	defer c.timePage("item", time.Now())
	return c.LoadEntryPlus(ctx, model.ContentEntry{UserID: userID, Signature: signature})
}

// mapOrdered は入力の各要素にfnを適用し、入力と同じ順序で結果を返す。
// 同時に実行するfnはlimit個まで。完了順は問わない。
func mapOrdered[T, R any](ctx context.Context, inputs []T, limit int, fn func(context.Context, T) R) []R {
	out := make([]R, len(inputs))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, in := range inputs {
		g.Go(func() error {
			out[i] = fn(ctx, in)
			return nil
		})
	}
	_ = g.Wait()

	return out
}

// enrichAll はエントリ列をエンリッチし、見つからなかったもの（穴）を除いて返す。
func (c *Client) enrichAll(ctx context.Context, entries []model.ContentEntry) []model.EnrichedItem {
	results := mapOrdered(ctx, entries, c.concurrency, c.LoadEntryPlus)

	items := make([]model.EnrichedItem, 0, len(results))
	for _, r := range results {
		if r != nil {
			items = append(items, *r)
		}
	}
	return items
}

// timePage はページ処理の所要時間を記録する。deferで呼び出す。
func (c *Client) timePage(page string, start time.Time) {
	c.metrics.RecordPageLoad(page, time.Since(start))
}
