// Package content はコンテンツソースの前段に立つ集約レイヤーを提供する。
// アイテムとプロフィールをキャッシュし、表示名や返信先を付与した上で
// ページ単位の結果を組み立てる。
package content

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/diskuto-web/internal/cache"
	"github.com/hitoshi/diskuto-web/internal/metrics"
	"github.com/hitoshi/diskuto-web/internal/model"
	"github.com/hitoshi/diskuto-web/internal/repository"
)

// デフォルト設定値。
const (
	DefaultItemCacheSize    = 10_000
	DefaultProfileCacheSize = 5_000
	DefaultProfileTTL       = 5 * time.Minute
	DefaultConcurrency      = 5
)

// キャッシュ名。ログとメトリクスのラベルに使う。
const (
	itemCacheName    = "items"
	profileCacheName = "profiles"
)

// Option はClientの設定を変更する。
type Option func(*settings)

type settings struct {
	itemCacheSize    int
	profileCacheSize int
	profileTTL       time.Duration
	concurrency      int
	logger           *slog.Logger
	metrics          metrics.MetricsCollector
	clock            func() time.Time
}

// WithItemCacheSize はアイテムキャッシュの容量を設定する。
func WithItemCacheSize(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.itemCacheSize = n
		}
	}
}

// WithProfileCacheSize はプロフィールキャッシュの容量を設定する。
func WithProfileCacheSize(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.profileCacheSize = n
		}
	}
}

// WithProfileTTL はプロフィールキャッシュの有効期間を設定する。
func WithProfileTTL(ttl time.Duration) Option {
	return func(s *settings) {
		if ttl > 0 {
			s.profileTTL = ttl
		}
	}
}

// WithConcurrency はページ読み込み時の同時エンリッチ数を設定する。
func WithConcurrency(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLogger はロガーを設定する。
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics はメトリクスコレクターを設定する。
func WithMetrics(m metrics.MetricsCollector) Option {
	return func(s *settings) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithClock はキャッシュの時計を差し替える。テスト用。
func WithClock(clock func() time.Time) Option {
	return func(s *settings) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// Client はコンテンツソースをキャッシュ付きで集約するクライアント。
// 2つのキャッシュはClientが専有し、外部には公開しない。
type Client struct {
	source      repository.ContentSource
	items       *cache.Cache[model.ItemRecord]
	profiles    *cache.Cache[model.ProfileRecord]
	concurrency int
	logger      *slog.Logger
	metrics     metrics.MetricsCollector
}

// New はClientを生成する。
func New(source repository.ContentSource, opts ...Option) (*Client, error) {
	if source == nil {
		return nil, fmt.Errorf("content source is required")
	}

	s := settings{
		itemCacheSize:    DefaultItemCacheSize,
		profileCacheSize: DefaultProfileCacheSize,
		profileTTL:       DefaultProfileTTL,
		concurrency:      DefaultConcurrency,
		logger:           slog.Default(),
		metrics:          metrics.NoopCollector{},
		clock:            time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}

	c := &Client{
		source:      source,
		concurrency: s.concurrency,
		logger:      s.logger,
		metrics:     s.metrics,
	}

	items, err := cache.New(itemCacheName, c.fetchItem,
		cache.WithMaxEntries(s.itemCacheSize),
		cache.WithLogger(s.logger),
		cache.WithMetrics(s.metrics),
		cache.WithClock(s.clock),
	)
	if err != nil {
		return nil, err
	}

	profiles, err := cache.New(profileCacheName, c.fetchProfile,
		cache.WithMaxEntries(s.profileCacheSize),
		cache.WithTTL(s.profileTTL),
		cache.WithAllowStale(true),
		cache.WithLogger(s.logger),
		cache.WithMetrics(s.metrics),
		cache.WithClock(s.clock),
	)
	if err != nil {
		return nil, err
	}

	c.items = items
	c.profiles = profiles
	return c, nil
}

// Wait はプロフィールのバックグラウンド再取得が完了するまで待つ。
func (c *Client) Wait() {
	c.profiles.Wait()
}

// fetchItem はアイテムキャッシュのミス時に呼ばれる。キーは "userID/signature"。
func (c *Client) fetchItem(ctx context.Context, key string) (model.ItemRecord, bool, error) {
	uidText, sigText, ok := strings.Cut(key, "/")
	if !ok {
		return model.ItemRecord{}, false, fmt.Errorf("invalid item key %q", key)
	}
	userID, err := model.ParseUserID(uidText)
	if err != nil {
		return model.ItemRecord{}, false, err
	}
	signature, err := model.ParseSignature(sigText)
	if err != nil {
		return model.ItemRecord{}, false, err
	}

	start := time.Now()
	item, err := c.source.GetItem(ctx, userID, signature)
	c.metrics.RecordUpstreamFetch("get_item", time.Since(start), err)
	if err != nil {
		return model.ItemRecord{}, false, fmt.Errorf("アイテム %s の取得に失敗しました: %w", key, err)
	}
	if item == nil {
		return model.ItemRecord{}, false, nil
	}

	return model.ItemRecord{Item: *item, UserID: userID, Signature: signature}, true, nil
}

// fetchProfile はプロフィールキャッシュのミス時に呼ばれる。キーはユーザーID。
// profile以外のアイテムが返された場合はデータ不整合としてログに記録し、見つからない扱いにする。
func (c *Client) fetchProfile(ctx context.Context, key string) (model.ProfileRecord, bool, error) {
	userID, err := model.ParseUserID(key)
	if err != nil {
		return model.ProfileRecord{}, false, err
	}

	c.logger.Debug("fetching profile", slog.String("user_id", key))

	start := time.Now()
	result, err := c.source.GetProfile(ctx, userID)
	c.metrics.RecordUpstreamFetch("get_profile", time.Since(start), err)
	if err != nil {
		return model.ProfileRecord{}, false, fmt.Errorf("プロフィール %s の取得に失敗しました: %w", key, err)
	}
	if result == nil {
		return model.ProfileRecord{}, false, nil
	}

	if result.Item.Kind() != model.ItemKindProfile {
		c.logger.Error("プロフィールではないアイテムが返されました",
			slog.String("user_id", key),
			slog.String("signature", result.Signature.String()),
			slog.String("kind", string(result.Item.Kind())),
		)
		return model.ProfileRecord{}, false, nil
	}

	return model.ProfileRecord{
		Item:      result.Item,
		Profile:   *result.Item.Profile,
		UserID:    userID,
		Signature: result.Signature,
	}, true, nil
}

// LoadEntry は一覧エントリに対応するアイテムを返す。見つからない場合はnil。
func (c *Client) LoadEntry(ctx context.Context, entry model.ContentEntry) *model.ItemRecord {
	rec, ok := c.items.Fetch(ctx, model.ItemKey(entry.UserID, entry.Signature))
	if !ok {
		return nil
	}
	return &rec
}

// GetItem は指定アイテムを返す。見つからない場合はnil。
func (c *Client) GetItem(ctx context.Context, userID model.UserID, signature model.Signature) *model.ItemRecord {
	return c.LoadEntry(ctx, model.ContentEntry{UserID: userID, Signature: signature})
}

// GetProfile はユーザーのプロフィールを返す。見つからない場合はnil。
// 期限切れのプロフィールはそのまま返し、バックグラウンドで再取得する。
func (c *Client) GetProfile(ctx context.Context, userID model.UserID) *model.ProfileRecord {
	rec, ok := c.profiles.Fetch(ctx, userID.String())
	if !ok {
		return nil
	}
	return &rec
}

// GetProfileUncached はキャッシュを破棄してプロフィールを再取得する。
// 閲覧者本人のプロフィールなど、直前に編集された可能性がある場合に使う。
func (c *Client) GetProfileUncached(ctx context.Context, userID model.UserID) *model.ProfileRecord {
	rec, ok := c.profiles.Refresh(ctx, userID.String())
	if !ok {
		return nil
	}
	return &rec
}

// GetDisplayName はユーザーの表示名を返す。
// プロフィールがない、または表示名が空白のみの場合はユーザーIDを返す。
func (c *Client) GetDisplayName(ctx context.Context, userID model.UserID) model.DisplayName {
	return model.ResolveDisplayName(userID, c.GetProfile(ctx, userID))
}
