package repository

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/hitoshi/diskuto-web/internal/model"
)

// MemorySeed はMemoryContentRepoに読み込む初期データ（JSONフィクスチャ）。
//
//	{
//	  "home_users": ["<base58 user id>"],
//	  "items": [{"user_id": "...", "signature": "...", "item": {"timestamp_ms_utc": 1, "post": {...}}}]
//	}
type MemorySeed struct {
	HomeUsers []model.UserID `json:"home_users"`
	Items     []SeedItem     `json:"items"`
}

// SeedItem はフィクスチャ内の1アイテム。
type SeedItem struct {
	UserID    model.UserID    `json:"user_id"`
	Signature model.Signature `json:"signature"`
	Item      model.Item      `json:"item"`
}

// DecodeMemorySeed はJSONフィクスチャを読み込む。
// IDがbase58として不正な場合や、ペイロードを持たないアイテムはエラーになる。
func DecodeMemorySeed(r io.Reader) (*MemorySeed, error) {
	var seed MemorySeed
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&seed); err != nil {
		return nil, fmt.Errorf("シードデータの解析に失敗しました: %w", err)
	}
	for i, it := range seed.Items {
		if it.UserID.IsZero() || it.Signature.IsZero() {
			return nil, fmt.Errorf("シードデータのitems[%d]: user_idとsignatureは必須です", i)
		}
		if it.Item.Kind() == model.ItemKindUnknown {
			return nil, fmt.Errorf("シードデータのitems[%d]: post/comment/profileのいずれかが必要です", i)
		}
	}
	return &seed, nil
}

// LoadMemorySeedFile はファイルからシードデータを読み込む。
func LoadMemorySeedFile(path string) (*MemorySeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("シードファイルを開けませんでした: %w", err)
	}
	defer f.Close()
	return DecodeMemorySeed(f)
}

// Seed はシードデータを登録する。
// プロフィールはタイムスタンプの古い順に登録し、最新のフォロー一覧が残るようにする。
func (r *MemoryContentRepo) Seed(seed *MemorySeed) {
	for _, uid := range seed.HomeUsers {
		r.AddHomeUser(uid)
	}

	var profiles []SeedItem
	for _, it := range seed.Items {
		if it.Item.Profile != nil {
			profiles = append(profiles, it)
			continue
		}
		r.PutItem(it.UserID, it.Signature, it.Item)
	}

	slices.SortStableFunc(profiles, func(a, b SeedItem) int {
		return cmp.Compare(a.Item.TimestampMsUTC, b.Item.TimestampMsUTC)
	})
	for _, it := range profiles {
		r.PutItem(it.UserID, it.Signature, it.Item)
	}
}
