package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/diskuto-web/internal/config"
	"github.com/hitoshi/diskuto-web/internal/content"
	"github.com/hitoshi/diskuto-web/internal/database"
	"github.com/hitoshi/diskuto-web/internal/handler"
	"github.com/hitoshi/diskuto-web/internal/logger"
	"github.com/hitoshi/diskuto-web/internal/metrics"
	"github.com/hitoshi/diskuto-web/internal/middleware"
	"github.com/hitoshi/diskuto-web/internal/repository"
	"github.com/hitoshi/diskuto-web/internal/worker/warmup"
)

const (
	dbPingTimeout     = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
	warmupConcurrency = 2
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// 読み込み後はLOG_LEVELに従ってロガーを再構成する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再構成
	l := logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
	return cfg, l, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck("http://localhost:" + port)
	}

	cfg, l, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	l.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("api_url", cfg.APIURL),
		slog.String("content_source", cfg.ContentSource),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg, l)
	default:
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg, l)
	}
}

// server はserveモードで組み立てた依存関係を保持する。
type server struct {
	handler     http.Handler
	client      *content.Client
	limiter     *middleware.RateLimiter
	closeSource func() error
}

// Close はレートリミッターとコンテンツソースを解放する。
// バックグラウンドのプロフィール再取得が終わるまで待ってからソースを閉じる。
func (s *server) Close() error {
	s.limiter.Stop()
	s.client.Wait()
	if s.closeSource != nil {
		return s.closeSource()
	}
	return nil
}

// buildServer はConfigから全依存関係をワイヤリングする。
func buildServer(ctx context.Context, cfg *config.Config, l *slog.Logger) (*server, error) {
	// 1. コンテンツソース
	source, closeSource, err := openContentSource(ctx, cfg, l)
	if err != nil {
		return nil, err
	}

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 3. キャッシュ付きクライアント
	client, err := content.New(source,
		content.WithItemCacheSize(cfg.ItemCacheSize),
		content.WithProfileCacheSize(cfg.ProfileCacheSize),
		content.WithProfileTTL(cfg.ProfileCacheTTL),
		content.WithConcurrency(cfg.EnrichConcurrency),
		content.WithLogger(l),
		content.WithMetrics(collector),
	)
	if err != nil {
		if closeSource != nil {
			_ = closeSource()
		}
		return nil, fmt.Errorf("failed to create content client: %w", err)
	}

	// 4. ルーター
	limiterCfg := middleware.DefaultRateLimiterConfig(cfg.RateLimitPerMinute)
	limiterCfg.TrustProxy = cfg.TrustProxy
	limiter := middleware.NewRateLimiter(limiterCfg, l)

	router := handler.NewRouter(&handler.RouterDeps{
		Content:      client,
		APIURL:       cfg.APIURL,
		Logger:       l,
		Metrics:      collector,
		Gatherer:     registry,
		RateLimiter:  limiter,
		CookieSecure: cfg.CookieSecure,
	})

	return &server{
		handler:     router,
		client:      client,
		limiter:     limiter,
		closeSource: closeSource,
	}, nil
}

// openContentSource はCONTENT_SOURCEに応じたコンテンツソースを開く。
// 返されるclose関数はnilの場合がある。
func openContentSource(ctx context.Context, cfg *config.Config, l *slog.Logger) (repository.ContentSource, func() error, error) {
	switch cfg.ContentSource {
	case config.ContentSourceMemory:
		repo := repository.NewMemoryContentRepo()
		if cfg.MemorySeedFile == "" {
			l.Warn("using in-memory content source without MEMORY_SEED_FILE; serving an empty corpus")
			return repo, nil, nil
		}
		seed, err := repository.LoadMemorySeedFile(cfg.MemorySeedFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load memory seed: %w", err)
		}
		repo.Seed(seed)
		l.Info("in-memory content source seeded",
			slog.String("file", cfg.MemorySeedFile),
			slog.Int("items", len(seed.Items)),
			slog.Int("home_users", len(seed.HomeUsers)),
		)
		return repo, nil, nil
	default:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		l.Info("database connection established")
		return repository.NewPostgresContentRepo(db), db.Close, nil
	}
}

// runServe はWebサーバーモードで起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config, l *slog.Logger) error {
	srv, err := buildServer(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			l.Error("failed to close content source", slog.String("error", err.Error()))
		}
	}()

	warmupCtx, cancelWarmup := context.WithCancel(ctx)
	defer cancelWarmup()

	warmupDone := make(chan struct{})
	if cfg.WarmupInterval > 0 {
		scheduler := warmup.NewScheduler(srv.client, l, warmupConcurrency)
		go func() {
			defer close(warmupDone)
			scheduler.Start(warmupCtx, cfg.WarmupInterval)
		}()
	} else {
		close(warmupDone)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           srv.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		l.Info("web server starting", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			cancelWarmup()
			<-warmupDone
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}

	l.Info("shutting down web server...")
	cancelWarmup()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	<-warmupDone

	l.Info("web server stopped gracefully")
	return nil
}

// runMigrate はコンテンツミラーのマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用し、適用後のバージョンを記録する。
func runMigrate(cfg *config.Config, l *slog.Logger) error {
	if cfg.ContentSource != config.ContentSourcePostgres {
		return fmt.Errorf("migrate requires CONTENT_SOURCE=%s", config.ContentSourcePostgres)
	}

	l.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}

	l.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// baseURLの /health にHTTPリクエストを送り、結果を返す。
func runHealthcheck(baseURL string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
