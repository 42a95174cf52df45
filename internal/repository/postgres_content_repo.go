package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"iter"
	"strings"

	"github.com/hitoshi/diskuto-web/internal/model"
)

// defaultStreamPageSize はストリームが1回のクエリで読み込む行数。
const defaultStreamPageSize = 50

// PostgresContentRepo はPostgreSQL上のコンテンツミラーを読み取るコンテンツソース。
// ミラーへの書き込みは同期プロセスが行い、このリポジトリは読み取り専用。
type PostgresContentRepo struct {
	db       *sql.DB
	pageSize int
}

// NewPostgresContentRepo はPostgresContentRepoを生成する。
func NewPostgresContentRepo(db *sql.DB) *PostgresContentRepo {
	return &PostgresContentRepo{db: db, pageSize: defaultStreamPageSize}
}

// GetItem は指定アイテムを取得する。見つからない場合はnilを返す。
func (r *PostgresContentRepo) GetItem(ctx context.Context, userID model.UserID, signature model.Signature) (*model.Item, error) {
	query := `SELECT payload FROM items WHERE user_id = $1 AND signature = $2`

	var payload []byte
	err := r.db.QueryRowContext(ctx, query, userID.Bytes(), signature.Bytes()).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アイテムの取得に失敗しました: %w", err)
	}

	item, err := decodeItem(payload)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// GetProfile はユーザーの最新プロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresContentRepo) GetProfile(ctx context.Context, userID model.UserID) (*ProfileItem, error) {
	query := `SELECT signature, payload FROM items
		WHERE user_id = $1 AND item_type = 'profile'
		ORDER BY timestamp_ms DESC
		LIMIT 1`

	var sigBytes, payload []byte
	err := r.db.QueryRowContext(ctx, query, userID.Bytes()).Scan(&sigBytes, &payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}

	sig, err := model.SignatureFromBytes(sigBytes)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの署名が不正です: %w", err)
	}
	item, err := decodeItem(payload)
	if err != nil {
		return nil, err
	}
	return &ProfileItem{Item: *item, Signature: sig}, nil
}

// HomepageItems はホームページ対象ユーザーの投稿を新しい順に返す。
func (r *PostgresContentRepo) HomepageItems(ctx context.Context, bounds Bounds) iter.Seq2[model.ContentEntry, error] {
	return r.stream(ctx, streamQuery{
		from:   "items i JOIN home_users h ON h.user_id = i.user_id",
		where:  []string{"i.item_type = 'post'"},
		bounds: bounds,
	})
}

// UserFeedItems はフォロー先ユーザーのアイテムを新しい順に返す。
func (r *PostgresContentRepo) UserFeedItems(ctx context.Context, userID model.UserID, bounds Bounds) iter.Seq2[model.ContentEntry, error] {
	return r.stream(ctx, streamQuery{
		from:   "items i JOIN follows f ON f.followee_id = i.user_id",
		where:  []string{"f.follower_id = $%d"},
		args:   []any{userID.Bytes()},
		bounds: bounds,
	})
}

// UserItems は指定ユーザーのアイテムを新しい順に返す。
func (r *PostgresContentRepo) UserItems(ctx context.Context, userID model.UserID, bounds Bounds) iter.Seq2[model.ContentEntry, error] {
	return r.stream(ctx, streamQuery{
		from:   "items i",
		where:  []string{"i.user_id = $%d"},
		args:   []any{userID.Bytes()},
		bounds: bounds,
	})
}

// ReplyItems は指定アイテムへのコメントを古い順に返す。
func (r *PostgresContentRepo) ReplyItems(ctx context.Context, userID model.UserID, signature model.Signature) iter.Seq2[model.ContentEntry, error] {
	return r.stream(ctx, streamQuery{
		from:      "items i",
		where:     []string{"i.reply_to_user_id = $%d", "i.reply_to_signature = $%d"},
		args:      []any{userID.Bytes(), signature.Bytes()},
		ascending: true,
	})
}

// streamQuery はストリーム用クエリの組み立て材料。
// whereの各条件に含まれる "$%d" はargsの順にプレースホルダ番号へ置換される。
type streamQuery struct {
	from      string
	where     []string
	args      []any
	bounds    Bounds
	ascending bool
}

// keyset は前ページの最終行。次ページはこの行より後ろから読む。
type keyset struct {
	timestampMs int64
	signature   []byte
}

// build はkeysetを起点にlimit件を取得するSQLと引数を組み立てる。
func (q streamQuery) build(after *keyset, limit int) (string, []any) {
	args := make([]any, 0, len(q.args)+4)
	conds := make([]string, 0, len(q.where)+3)

	placeholder := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	for i, cond := range q.where {
		conds = append(conds, strings.Replace(cond, "$%d", placeholder(q.args[i]), 1))
	}
	if q.bounds.Before != nil {
		conds = append(conds, "i.timestamp_ms < "+placeholder(*q.bounds.Before))
	}
	if q.bounds.After != nil {
		conds = append(conds, "i.timestamp_ms > "+placeholder(*q.bounds.After))
	}

	op, dir := "<", "DESC"
	if q.ascending {
		op, dir = ">", "ASC"
	}
	if after != nil {
		ts := placeholder(after.timestampMs)
		sig := placeholder(after.signature)
		conds = append(conds, fmt.Sprintf("(i.timestamp_ms, i.signature) %s (%s, %s)", op, ts, sig))
	}

	var sb strings.Builder
	sb.WriteString("SELECT i.user_id, i.signature, i.timestamp_ms FROM ")
	sb.WriteString(q.from)
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}
	fmt.Fprintf(&sb, " ORDER BY i.timestamp_ms %s, i.signature %s LIMIT %s", dir, dir, placeholder(limit))

	return sb.String(), args
}

// stream はキーセットページングでクエリを繰り返し、行を1件ずつ返すストリームを生成する。
// 呼び出し側が消費をやめた時点で以降のページは読み込まない。
func (r *PostgresContentRepo) stream(ctx context.Context, q streamQuery) iter.Seq2[model.ContentEntry, error] {
	return func(yield func(model.ContentEntry, error) bool) {
		var last *keyset
		for {
			page, err := r.queryPage(ctx, q, last)
			if err != nil {
				yield(model.ContentEntry{}, err)
				return
			}

			for _, row := range page {
				entry, err := row.entry()
				if err != nil {
					yield(model.ContentEntry{}, err)
					return
				}
				if !yield(entry, nil) {
					return
				}
			}

			if len(page) < r.pageSize {
				return
			}
			tail := page[len(page)-1]
			last = &keyset{timestampMs: tail.timestampMs, signature: tail.signature}
		}
	}
}

type entryRow struct {
	userID      []byte
	signature   []byte
	timestampMs int64
}

func (row entryRow) entry() (model.ContentEntry, error) {
	uid, err := model.UserIDFromBytes(row.userID)
	if err != nil {
		return model.ContentEntry{}, fmt.Errorf("ユーザーIDが不正です: %w", err)
	}
	sig, err := model.SignatureFromBytes(row.signature)
	if err != nil {
		return model.ContentEntry{}, fmt.Errorf("署名が不正です: %w", err)
	}
	return model.ContentEntry{UserID: uid, Signature: sig, TimestampMsUTC: row.timestampMs}, nil
}

// queryPage は1ページ分の行を読み込む。
// ストリームの消費中に接続を保持しないよう、行はすべてメモリに読み込んでから返す。
func (r *PostgresContentRepo) queryPage(ctx context.Context, q streamQuery, after *keyset) ([]entryRow, error) {
	query, args := q.build(after, r.pageSize)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("アイテム一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	page := make([]entryRow, 0, r.pageSize)
	for rows.Next() {
		var row entryRow
		if err := rows.Scan(&row.userID, &row.signature, &row.timestampMs); err != nil {
			return nil, fmt.Errorf("アイテム一覧のスキャンに失敗しました: %w", err)
		}
		page = append(page, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("アイテム一覧の読み込みに失敗しました: %w", err)
	}
	return page, nil
}

func decodeItem(payload []byte) (*model.Item, error) {
	var item model.Item
	if err := json.Unmarshal(payload, &item); err != nil {
		return nil, fmt.Errorf("アイテムのデコードに失敗しました: %w", err)
	}
	return &item, nil
}
