// Package cache はキー単位でフェッチを合流させるインメモリキャッシュを提供する。
// 同一キーへの同時リクエストは1回の上流フェッチにまとめられ、
// 結果（値または「見つからない」）はLRUで容量管理される。
// TTLを設定した場合は期限切れエントリを返しつつバックグラウンドで再取得できる。
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// キャッシュ参照結果のラベル。メトリクスで使用する。
const (
	ResultHit       = "hit"
	ResultMiss      = "miss"
	ResultStale     = "stale"
	ResultCoalesced = "coalesced"
)

// defaultMaxEntries はWithMaxEntries未指定時の容量。
const defaultMaxEntries = 1000

// FetchFunc はキャッシュミス時に呼び出される上流フェッチ関数。
// found=falseは上流が「見つからない」と確定したことを表す。
// errorを返した場合も「見つからない」として記録される。
type FetchFunc[V any] func(ctx context.Context, key string) (value V, found bool, err error)

// Metrics はキャッシュのメトリクス記録インターフェース。
type Metrics interface {
	RecordCacheResult(cache, result string)
	RecordCacheEviction(cache string)
}

type noopMetrics struct{}

func (noopMetrics) RecordCacheResult(string, string) {}
func (noopMetrics) RecordCacheEviction(string)       {}

// Option はキャッシュ設定を変更する。
type Option func(*settings)

type settings struct {
	maxEntries int
	ttl        time.Duration
	allowStale bool
	logger     *slog.Logger
	metrics    Metrics
	clock      func() time.Time
}

// WithMaxEntries は最大エントリ数を設定する。超過分はLRUで追い出される。
func WithMaxEntries(maxEntries int) Option {
	return func(s *settings) {
		if maxEntries > 0 {
			s.maxEntries = maxEntries
		}
	}
}

// WithTTL はエントリの有効期間を設定する。0の場合は期限切れにならない。
func WithTTL(ttl time.Duration) Option {
	return func(s *settings) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithAllowStale は期限切れエントリを返しつつバックグラウンドで再取得する動作を有効にする。
func WithAllowStale(allow bool) Option {
	return func(s *settings) {
		s.allowStale = allow
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
func WithMetrics(metrics Metrics) Option {
	return func(s *settings) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithClock は現在時刻の取得関数を差し替える。テスト用。
func WithClock(clock func() time.Time) Option {
	return func(s *settings) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// entry はキャッシュに格納される値。found=falseが「見つからない」の番兵。
type entry[V any] struct {
	value    V
	found    bool
	storedAt time.Time
}

// Cache はフェッチ合流付きのキーバリューキャッシュ。
// 全メソッドは並行呼び出しに対して安全。
type Cache[V any] struct {
	name       string
	fetch      FetchFunc[V]
	ttl        time.Duration
	allowStale bool
	logger     *slog.Logger
	metrics    Metrics
	clock      func() time.Time

	entries   *lru.Cache[string, entry[V]]
	group     singleflight.Group
	refreshWG sync.WaitGroup
}

// New はCacheを生成する。nameはログとメトリクスのラベルに使われる。
func New[V any](name string, fetch FetchFunc[V], opts ...Option) (*Cache[V], error) {
	if fetch == nil {
		return nil, fmt.Errorf("cache %s: fetch function is required", name)
	}

	s := settings{
		maxEntries: defaultMaxEntries,
		logger:     slog.Default(),
		metrics:    noopMetrics{},
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}

	c := &Cache[V]{
		name:       name,
		fetch:      fetch,
		ttl:        s.ttl,
		allowStale: s.allowStale,
		logger:     s.logger,
		metrics:    s.metrics,
		clock:      s.clock,
	}

	entries, err := lru.NewWithEvict(s.maxEntries, func(string, entry[V]) {
		c.metrics.RecordCacheEviction(c.name)
	})
	if err != nil {
		return nil, fmt.Errorf("cache %s: create lru: %w", name, err)
	}
	c.entries = entries

	return c, nil
}

// Fetch はキーに対応する値を返す。2番目の戻り値がfalseの場合は「見つからない」。
//
// 新鮮なエントリがあれば上流を呼ばずに返す。同じキーのフェッチが進行中であれば
// それに合流する。期限切れかつAllowStaleの場合は古い値を返し、再取得を
// バックグラウンドで開始する。上流のエラーは呼び出し元に伝播しない。
//
// ctxが先に終了した場合は待機をやめて「見つからない」を返すが、
// 進行中のフェッチ自体は完了まで実行され結果はキャッシュされる。
func (c *Cache[V]) Fetch(ctx context.Context, key string) (V, bool) {
	if e, ok := c.entries.Get(key); ok {
		switch {
		case !c.isStale(e):
			c.metrics.RecordCacheResult(c.name, ResultHit)
			return e.value, e.found
		case c.allowStale:
			c.metrics.RecordCacheResult(c.name, ResultStale)
			c.refreshInBackground(ctx, key)
			return e.value, e.found
		}
	}

	ch := c.group.DoChan(key, func() (any, error) {
		return c.load(ctx, key), nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.metrics.RecordCacheResult(c.name, ResultCoalesced)
		}
		e := res.Val.(entry[V])
		return e.value, e.found
	case <-ctx.Done():
		var zero V
		return zero, false
	}
}

// Refresh はエントリを破棄してから上流を再取得する。
// 直前に編集された可能性がある値（閲覧者自身のプロフィール等）に使用する。
func (c *Cache[V]) Refresh(ctx context.Context, key string) (V, bool) {
	c.Invalidate(key)
	return c.Fetch(ctx, key)
}

// Invalidate はエントリを削除する。
func (c *Cache[V]) Invalidate(key string) {
	c.entries.Remove(key)
}

// Len はキャッシュ中のエントリ数を返す。
func (c *Cache[V]) Len() int {
	return c.entries.Len()
}

// Wait は実行中のバックグラウンド再取得がすべて完了するまで待つ。
func (c *Cache[V]) Wait() {
	c.refreshWG.Wait()
}

// load はsingleflight内で1回だけ実行される。
// フライト開始前に別のフライトが完了していた場合に備えてキャッシュを再確認する。
func (c *Cache[V]) load(ctx context.Context, key string) entry[V] {
	if e, ok := c.entries.Peek(key); ok && !c.isStale(e) {
		return e
	}

	c.metrics.RecordCacheResult(c.name, ResultMiss)

	value, found, err := c.fetch(context.WithoutCancel(ctx), key)
	if err != nil {
		c.logger.Error("cache fetch failed",
			slog.String("cache", c.name),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		var zero V
		value, found = zero, false
	}

	e := entry[V]{value: value, found: found, storedAt: c.clock()}
	c.entries.Add(key, e)
	return e
}

func (c *Cache[V]) refreshInBackground(ctx context.Context, key string) {
	ctx = context.WithoutCancel(ctx)
	c.refreshWG.Add(1)
	go func() {
		defer c.refreshWG.Done()
		<-c.group.DoChan(key, func() (any, error) {
			return c.load(ctx, key), nil
		})
	}()
}

func (c *Cache[V]) isStale(e entry[V]) bool {
	return c.ttl > 0 && c.clock().Sub(e.storedAt) >= c.ttl
}
