// Package repository はコンテンツソース（上流の署名付きコンテンツストア）の
// 読み取りインターフェースとその実装を定義する。
package repository

import (
	"context"
	"iter"

	"github.com/hitoshi/diskuto-web/internal/model"
)

// Bounds は一覧ストリームの範囲。いずれもミリ秒単位のUTCタイムスタンプで、境界自体は含まない。
type Bounds struct {
	Before *int64
	After  *int64
}

// ProfileItem はGetProfileの結果。Itemのペイロードはprofileであるべきだが、
// 検証は呼び出し側の責務とする。
type ProfileItem struct {
	Item      model.Item
	Signature model.Signature
}

// ContentSource はコンテンツストアの読み取りインターフェース。
// 一覧系のメソッドは遅延評価のストリームを返し、呼び出し側が消費をやめるまで
// 必要な分だけ上流から読み込む。ストリームは呼び出しごとに先頭から始まる。
type ContentSource interface {
	// GetItem は指定アイテムを取得する。見つからない場合はnilを返す。
	GetItem(ctx context.Context, userID model.UserID, signature model.Signature) (*model.Item, error)

	// GetProfile はユーザーの最新プロフィールを取得する。見つからない場合はnilを返す。
	GetProfile(ctx context.Context, userID model.UserID) (*ProfileItem, error)

	// HomepageItems はホームページに表示するアイテムを新しい順に返す。
	HomepageItems(ctx context.Context, bounds Bounds) iter.Seq2[model.ContentEntry, error]

	// UserFeedItems は指定ユーザーがフォローしているユーザーのアイテムを新しい順に返す。
	UserFeedItems(ctx context.Context, userID model.UserID, bounds Bounds) iter.Seq2[model.ContentEntry, error]

	// UserItems は指定ユーザーが作成したアイテムを新しい順に返す。
	UserItems(ctx context.Context, userID model.UserID, bounds Bounds) iter.Seq2[model.ContentEntry, error]

	// ReplyItems は指定アイテムへの返信（コメント）を古い順に返す。
	ReplyItems(ctx context.Context, userID model.UserID, signature model.Signature) iter.Seq2[model.ContentEntry, error]
}
