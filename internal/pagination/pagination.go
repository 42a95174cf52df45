// Package pagination はタイムスタンプカーソルによる双方向ページネーションを提供する。
// カーソルは呼び出し元が毎回渡すため、このパッケージは状態を持たない。
package pagination

// ページ種別ごとのデフォルト取得件数。
const (
	DefaultHomePageCount = 10
	DefaultUserPageCount = 30
)

// Window は呼び出し元が指定するページの範囲。
// Before/Afterはミリ秒単位のUTCタイムスタンプで、境界自体は含まない。
type Window struct {
	Before   *int64
	After    *int64
	MaxCount int
}

// Cursor は次ページ・前ページへのヒント。
// フィールドがnilの場合、その方向にはページが存在しない。
type Cursor struct {
	Before *int64 `json:"before,omitempty"`
	After  *int64 `json:"after,omitempty"`
}

// IsEmpty はどちらの方向にもカーソルがないかを返す。
func (c Cursor) IsEmpty() bool {
	return c.Before == nil && c.After == nil
}

// Normalize はウィンドウを正規化する。
// BeforeとAfterが両方指定された場合はBeforeを優先してAfterを捨てる。
// MaxCountが0以下の場合はdefaultCountを使用する。
func (w Window) Normalize(defaultCount int) Window {
	out := Window{
		Before:   copyBound(w.Before),
		After:    copyBound(w.After),
		MaxCount: w.MaxCount,
	}
	if out.Before != nil {
		out.After = nil
	}
	if out.MaxCount <= 0 {
		out.MaxCount = defaultCount
	}
	return out
}

// ComputeCursor は返却したアイテムのタイムスタンプ（返却順）から出力カーソルを計算する。
// windowは正規化済みであること。truncatedはソースがMaxCount件を供給し、
// まだ続きがあり得ることを表す。
func ComputeCursor(window Window, timestamps []int64, truncated bool) Cursor {
	var cursor Cursor

	if len(timestamps) == 0 {
		switch {
		case window.Before != nil:
			cursor.After = Ptr(*window.Before - 1)
		case window.After != nil:
			cursor.Before = Ptr(*window.After + 1)
		}
		return cursor
	}

	first := timestamps[0]
	last := timestamps[len(timestamps)-1]

	if truncated || window.After != nil {
		cursor.Before = Ptr(last)
	}
	if window.Before != nil || (truncated && window.After != nil) {
		cursor.After = Ptr(first)
	}
	return cursor
}

// Ptr は値のポインタを返す。
func Ptr(v int64) *int64 {
	return &v
}

func copyBound(v *int64) *int64 {
	if v == nil {
		return nil
	}
	return Ptr(*v)
}
