package model

import (
	"bytes"
	"fmt"

	"github.com/mr-tron/base58"
)

const (
	// UserIDLength はユーザーID（ed25519公開鍵）のバイト長。
	UserIDLength = 32
	// SignatureLength は署名（ed25519署名）のバイト長。
	SignatureLength = 64
)

// UserID は投稿者を識別する公開鍵。テキスト表現はbase58。
// ゼロ値は「未指定」を表す。
type UserID struct {
	bytes [UserIDLength]byte
}

// ParseUserID はbase58文字列からUserIDを生成する。
// base58として不正な場合や長さが一致しない場合はエラーを返す。
func ParseUserID(s string) (UserID, error) {
	var id UserID
	raw, err := base58.Decode(s)
	if err != nil {
		return id, fmt.Errorf("invalid user id %q: %w", s, err)
	}
	if len(raw) != UserIDLength {
		return id, fmt.Errorf("invalid user id %q: expected %d bytes, got %d", s, UserIDLength, len(raw))
	}
	copy(id.bytes[:], raw)
	return id, nil
}

// UserIDFromBytes は生バイト列からUserIDを生成する。
func UserIDFromBytes(raw []byte) (UserID, error) {
	var id UserID
	if len(raw) != UserIDLength {
		return id, fmt.Errorf("invalid user id: expected %d bytes, got %d", UserIDLength, len(raw))
	}
	copy(id.bytes[:], raw)
	return id, nil
}

// String はbase58表現を返す。
func (u UserID) String() string {
	return base58.Encode(u.bytes[:])
}

// Bytes は生バイト列のコピーを返す。
func (u UserID) Bytes() []byte {
	return bytes.Clone(u.bytes[:])
}

// IsZero は未指定のUserIDかどうかを返す。
func (u UserID) IsZero() bool {
	return u == (UserID{})
}

// MarshalText はJSONエンコード時にbase58文字列として出力する。
func (u UserID) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText はbase58文字列からUserIDを復元する。
func (u *UserID) UnmarshalText(text []byte) error {
	id, err := ParseUserID(string(text))
	if err != nil {
		return err
	}
	*u = id
	return nil
}

// Signature はアイテムの署名。テキスト表現はbase58。
type Signature struct {
	bytes [SignatureLength]byte
}

// ParseSignature はbase58文字列からSignatureを生成する。
func ParseSignature(s string) (Signature, error) {
	var sig Signature
	raw, err := base58.Decode(s)
	if err != nil {
		return sig, fmt.Errorf("invalid signature %q: %w", s, err)
	}
	if len(raw) != SignatureLength {
		return sig, fmt.Errorf("invalid signature %q: expected %d bytes, got %d", s, SignatureLength, len(raw))
	}
	copy(sig.bytes[:], raw)
	return sig, nil
}

// SignatureFromBytes は生バイト列からSignatureを生成する。
func SignatureFromBytes(raw []byte) (Signature, error) {
	var sig Signature
	if len(raw) != SignatureLength {
		return sig, fmt.Errorf("invalid signature: expected %d bytes, got %d", SignatureLength, len(raw))
	}
	copy(sig.bytes[:], raw)
	return sig, nil
}

// String はbase58表現を返す。
func (s Signature) String() string {
	return base58.Encode(s.bytes[:])
}

// Bytes は生バイト列のコピーを返す。
func (s Signature) Bytes() []byte {
	return bytes.Clone(s.bytes[:])
}

// IsZero は未指定のSignatureかどうかを返す。
func (s Signature) IsZero() bool {
	return s == (Signature{})
}

// MarshalText はJSONエンコード時にbase58文字列として出力する。
func (s Signature) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText はbase58文字列からSignatureを復元する。
func (s *Signature) UnmarshalText(text []byte) error {
	sig, err := ParseSignature(string(text))
	if err != nil {
		return err
	}
	*s = sig
	return nil
}

// ItemKey はアイテムキャッシュのキー "userID/signature" を返す。
func ItemKey(userID UserID, signature Signature) string {
	return userID.String() + "/" + signature.String()
}
