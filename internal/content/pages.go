package content

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"time"

	"github.com/hitoshi/diskuto-web/internal/model"
	"github.com/hitoshi/diskuto-web/internal/pagination"
	"github.com/hitoshi/diskuto-web/internal/repository"
)

// DefaultCommentCount はGetCommentsでmaxCount未指定時に読み込むコメント数。
const DefaultCommentCount = 100

// ページ種別。メトリクスのラベルとログに使う。
const (
	PageHome      = "home"
	PageUserFeed  = "user_feed"
	PageUserPosts = "user_posts"
	PageComments  = "comments"
)

// PaginatedResults はページ読み込みの結果。
type PaginatedResults struct {
	Items      []model.EnrichedItem `json:"items"`
	Pagination pagination.Cursor    `json:"pagination"`
}

// LoadHomePage はホームページを読み込む。
// afterを指定した場合のみ、結果を古い順に並べ替えて返す（ホームページ固有の動作）。
func (c *Client) LoadHomePage(ctx context.Context, window pagination.Window) (PaginatedResults, error) {
	return c.loadPage(ctx, pageRequest{
		page:         PageHome,
		window:       window,
		defaultCount: pagination.DefaultHomePageCount,
		reverseAfter: true,
		operation:    "homepage_items",
		stream:       c.source.HomepageItems,
	})
}

// LoadUserFeed はユーザーがフォローしているユーザーのアイテムを読み込む。
func (c *Client) LoadUserFeed(ctx context.Context, userID model.UserID, window pagination.Window) (PaginatedResults, error) {
	return c.loadPage(ctx, pageRequest{
		page:         PageUserFeed,
		window:       window,
		defaultCount: pagination.DefaultUserPageCount,
		operation:    "user_feed_items",
		stream: func(ctx context.Context, b repository.Bounds) iter.Seq2[model.ContentEntry, error] {
			return c.source.UserFeedItems(ctx, userID, b)
		},
	})
}

// LoadUserPosts はユーザー自身のアイテムを読み込む。
func (c *Client) LoadUserPosts(ctx context.Context, userID model.UserID, window pagination.Window) (PaginatedResults, error) {
	return c.loadPage(ctx, pageRequest{
		page:         PageUserPosts,
		window:       window,
		defaultCount: pagination.DefaultUserPageCount,
		operation:    "user_items",
		stream: func(ctx context.Context, b repository.Bounds) iter.Seq2[model.ContentEntry, error] {
			return c.source.UserItems(ctx, userID, b)
		},
	})
}

// GetComments は指定アイテムへのコメントを古い順に最大maxCount件返す。
// ストリームの読み込みに失敗した場合は読み込めた分だけを返す。
func (c *Client) GetComments(ctx context.Context, userID model.UserID, signature model.Signature, maxCount int) []model.EnrichedItem {
	defer c.timePage(PageComments, time.Now())

	if maxCount <= 0 {
		maxCount = DefaultCommentCount
	}

	entries, err := c.take("reply_items", c.source.ReplyItems(ctx, userID, signature), maxCount)
	if err != nil {
		c.logger.Warn("コメント一覧の取得に失敗しました",
			slog.String("user_id", userID.String()),
			slog.String("signature", signature.String()),
			slog.String("error", err.Error()),
		)
	}

	return c.enrichAll(ctx, entries)
}

type pageRequest struct {
	page         string
	window       pagination.Window
	defaultCount int
	reverseAfter bool
	operation    string
	stream       func(context.Context, repository.Bounds) iter.Seq2[model.ContentEntry, error]
}

// loadPage はウィンドウを正規化し、ストリームから最大MaxCount件を読み込んでエンリッチし、
// 出力カーソルを計算する。ストリームが1件も返さないうちに失敗した場合のみエラーを返す。
func (c *Client) loadPage(ctx context.Context, req pageRequest) (PaginatedResults, error) {
	defer c.timePage(req.page, time.Now())

	w := req.window.Normalize(req.defaultCount)
	bounds := repository.Bounds{Before: w.Before, After: w.After}

	entries, err := c.take(req.operation, req.stream(ctx, bounds), w.MaxCount)
	if err != nil {
		if len(entries) == 0 {
			c.logger.Error("ページの読み込みに失敗しました",
				slog.String("page", req.page),
				slog.String("error", err.Error()),
			)
			return PaginatedResults{}, fmt.Errorf("%s の読み込みに失敗しました: %w", req.page, err)
		}
		c.logger.Warn("ページの途中で読み込みに失敗しました",
			slog.String("page", req.page),
			slog.Int("loaded", len(entries)),
			slog.String("error", err.Error()),
		)
	}
	truncated := len(entries) >= w.MaxCount

	items := c.enrichAll(ctx, entries)

	cursor := pagination.ComputeCursor(w, cursorTimestamps(entries, items), truncated)

	// カーソルは新しい順の並びで計算し、その後で並べ替える
	if req.reverseAfter && w.After != nil {
		slices.Reverse(items)
	}

	return PaginatedResults{Items: items, Pagination: cursor}, nil
}

// cursorTimestamps はカーソル計算に使うタイムスタンプを返す。
// 読み込んだエントリがすべて穴だった場合はエントリ側の時刻を使い、ページングを終わらせない。
func cursorTimestamps(entries []model.ContentEntry, items []model.EnrichedItem) []int64 {
	if len(items) == 0 {
		timestamps := make([]int64, len(entries))
		for i, e := range entries {
			timestamps[i] = e.TimestampMsUTC
		}
		return timestamps
	}
	timestamps := make([]int64, len(items))
	for i, item := range items {
		timestamps[i] = item.Item.TimestampMsUTC
	}
	return timestamps
}

// take はストリームから最大maxCount件を読み込む。maxCount件目を受け取った時点で消費をやめるため、
// それ以降のエントリは上流から読み込まれない。
func (c *Client) take(operation string, seq iter.Seq2[model.ContentEntry, error], maxCount int) ([]model.ContentEntry, error) {
	start := time.Now()
	entries := make([]model.ContentEntry, 0, maxCount)

	var streamErr error
	for entry, err := range seq {
		if err != nil {
			streamErr = err
			break
		}
		entries = append(entries, entry)
		if len(entries) >= maxCount {
			break
		}
	}

	c.metrics.RecordUpstreamFetch(operation, time.Since(start), streamErr)
	return entries, streamErr
}
