// Package security はエクスポート用の文字列サニタイズを提供する。
//
// アイテムの本文やプロフィールの表示名は署名済みの利用者入力で、
// サーバー側では内容を検証しない。Atomフィードなど外部のリーダーが
// HTMLとして解釈し得る出力に埋め込む前に、ここで許可リスト方式のポリシーを通す。
package security

import (
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer はテキストとHTMLのサニタイズ機能を提供する。
// bluemondayのポリシーはスレッドセーフなので、1つのインスタンスを共有してよい。
type Sanitizer struct {
	text *bluemonday.Policy
	html *bluemonday.Policy
}

// NewSanitizer はSanitizerを生成する。
// ポリシーの内容:
//   - Text: すべてのタグを除去する（タイトル、表示名）
//   - HTML: p, br, a, ul, ol, li, blockquote, pre, code, strong, em, imgのみ許可
//   - imgのsrc属性とaのhref属性: httpsスキームのみ許可
//   - aタグ: target="_blank" と rel="noopener noreferrer" を自動付与
func NewSanitizer() *Sanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return u.Host != ""
	})

	return &Sanitizer{
		text: bluemonday.StrictPolicy(),
		html: p,
	}
}

// Text はすべてのタグを除去し、前後の空白を取り除いた文字列を返す。
func (s *Sanitizer) Text(raw string) string {
	return strings.TrimSpace(s.text.Sanitize(raw))
}

// HTML は許可リスト外のタグと属性を除去したHTMLを返す。
// 同一入力に対して常に同一出力を返す。
func (s *Sanitizer) HTML(raw string) string {
	return s.html.Sanitize(raw)
}
