// Package model はドメインモデルを定義する。
package model

import "strings"

// ItemKind はアイテムのペイロード種別（判別子）を表す。
type ItemKind string

const (
	// ItemKindPost は投稿。
	ItemKindPost ItemKind = "post"
	// ItemKindComment はコメント。
	ItemKindComment ItemKind = "comment"
	// ItemKindProfile はプロフィール更新。
	ItemKindProfile ItemKind = "profile"
	// ItemKindUnknown はペイロードが設定されていないアイテム。
	ItemKindUnknown ItemKind = ""
)

// Item は署名済みの不変コンテンツレコード。
// Post、Comment、Profileのいずれか1つだけが設定される。
type Item struct {
	TimestampMsUTC   int64    `json:"timestamp_ms_utc"`
	UTCOffsetMinutes int32    `json:"utc_offset_minutes"`
	Post             *Post    `json:"post,omitempty"`
	Comment          *Comment `json:"comment,omitempty"`
	Profile          *Profile `json:"profile,omitempty"`
}

// Kind はペイロードの判別子を返す。
func (i *Item) Kind() ItemKind {
	switch {
	case i == nil:
		return ItemKindUnknown
	case i.Post != nil:
		return ItemKindPost
	case i.Comment != nil:
		return ItemKindComment
	case i.Profile != nil:
		return ItemKindProfile
	default:
		return ItemKindUnknown
	}
}

// Post は投稿ペイロード。本文はMarkdown。
type Post struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Comment はコメントペイロード。ReplyToが返信先アイテムを指す。
type Comment struct {
	ReplyTo ReplyRef `json:"reply_to"`
	Text    string   `json:"text"`
}

// ReplyRef はコメントが埋め込む返信先の参照。
type ReplyRef struct {
	UserID    UserID    `json:"user_id"`
	Signature Signature `json:"signature"`
}

// Profile はプロフィールペイロード。
type Profile struct {
	DisplayName string   `json:"display_name"`
	About       string   `json:"about"`
	Servers     []string `json:"servers,omitempty"`
	Follows     []Follow `json:"follows,omitempty"`
}

// Follow はプロフィールに含まれるフォロー先。
type Follow struct {
	UserID      UserID `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// ContentEntry はアイテム一覧ストリームの1エントリ。
type ContentEntry struct {
	UserID         UserID
	Signature      Signature
	TimestampMsUTC int64
}

// ItemRecord はアイテムキャッシュに格納される単位。生成後は変更しない。
type ItemRecord struct {
	Item      Item      `json:"item"`
	UserID    UserID    `json:"user_id"`
	Signature Signature `json:"signature"`
}

// ProfileRecord はプロフィールキャッシュに格納される単位。
type ProfileRecord struct {
	Item      Item      `json:"item"`
	Profile   Profile   `json:"profile"`
	UserID    UserID    `json:"user_id"`
	Signature Signature `json:"signature"`
}

// DisplayName は表示名の解決結果。
// IsIDがtrueの場合、DisplayNameはユーザーIDのフォールバック。
type DisplayName struct {
	DisplayName string `json:"display_name"`
	IsID        bool   `json:"is_id"`
}

// ResolveDisplayName はプロフィールから表示名を解決する。
// プロフィールが存在し、トリム後の表示名が空でなければそれを使い、
// それ以外はユーザーIDにフォールバックする。
func ResolveDisplayName(userID UserID, profile *ProfileRecord) DisplayName {
	if profile != nil {
		if name := strings.TrimSpace(profile.Profile.DisplayName); name != "" {
			return DisplayName{DisplayName: name}
		}
	}
	return DisplayName{DisplayName: userID.String(), IsID: true}
}

// ReplyTarget はコメントの返信先と、その投稿者の表示名。
type ReplyTarget struct {
	UserID      UserID      `json:"user_id"`
	Signature   Signature   `json:"signature"`
	DisplayName DisplayName `json:"display_name"`
}

// EnrichedItem は表示用に付加情報を加えたアイテム。キャッシュはしない。
type EnrichedItem struct {
	ItemRecord
	User    DisplayName  `json:"user"`
	ReplyTo *ReplyTarget `json:"reply_to,omitempty"`
}
