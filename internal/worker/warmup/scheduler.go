// Package warmup はキャッシュのバックグラウンド予熱処理を提供する。
// ホームページと、そこに登場するユーザーの投稿一覧を定期的に読み込み、
// アイテムキャッシュとプロフィールキャッシュを温めておく。
package warmup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/diskuto-web/internal/content"
	"github.com/hitoshi/diskuto-web/internal/model"
	"github.com/hitoshi/diskuto-web/internal/pagination"
)

// PageLoader は予熱に使うページ読み込みのインターフェース。content.Clientが実装する。
type PageLoader interface {
	LoadHomePage(ctx context.Context, window pagination.Window) (content.PaginatedResults, error)
	LoadUserPosts(ctx context.Context, userID model.UserID, window pagination.Window) (content.PaginatedResults, error)
}

// Scheduler はキャッシュ予熱のスケジューリングと並列制御を行う。
// ティッカーでホームページを読み込み、semaphoreパターンで最大並列数を制御しながら
// ホームページに登場したユーザーの投稿一覧を読み込む。
type Scheduler struct {
	loader         PageLoader
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値2を使用する。
func NewScheduler(loader PageLoader, logger *slog.Logger, maxConcurrency int) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		loader:         loader,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start はinterval間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("キャッシュ予熱を開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	s.runAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("キャッシュ予熱を停止しました")
			return
		case <-ticker.C:
			s.runAndLog(ctx)
		}
	}
}

func (s *Scheduler) runAndLog(ctx context.Context) {
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("キャッシュ予熱の実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce はホームページを1回読み込み、登場したユーザーの投稿一覧を並列で読み込む。
// 個々のユーザーの失敗はログに記録して続行する。ホームページの失敗のみエラーを返す。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	home, err := s.loader.LoadHomePage(ctx, pagination.Window{})
	if err != nil {
		return fmt.Errorf("ホームページの予熱に失敗しました: %w", err)
	}

	users := distinctAuthors(home.Items)
	if len(users) == 0 {
		s.logger.Info("予熱対象のユーザーはいません")
		return nil
	}

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, userID := range users {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}

		go func(uid model.UserID) {
			defer wg.Done()
			defer func() { <-sem }()

			if _, err := s.loader.LoadUserPosts(ctx, uid, pagination.Window{}); err != nil {
				s.logger.Warn("ユーザー投稿一覧の予熱に失敗しました",
					slog.String("user_id", uid.String()),
					slog.String("error", err.Error()),
				)
			}
		}(userID)
	}

	wg.Wait()

	s.logger.Info("キャッシュ予熱が完了しました",
		slog.Int("home_items", len(home.Items)),
		slog.Int("user_count", len(users)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return ctx.Err()
}

// distinctAuthors はアイテムの投稿者を初出順に重複なく返す。
func distinctAuthors(items []model.EnrichedItem) []model.UserID {
	seen := make(map[model.UserID]struct{}, len(items))
	users := make([]model.UserID, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.UserID]; ok {
			continue
		}
		seen[item.UserID] = struct{}{}
		users = append(users, item.UserID)
	}
	return users
}
