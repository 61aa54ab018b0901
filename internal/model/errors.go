package model

import (
	"errors"
	"fmt"
)

// ErrDuplicateNativeID はnative_idの一意制約違反を表すセンチネルエラー。
// 並行実行で同一候補が同時に挿入された場合に発生し、
// 「すでに取り込み済み」として扱われる（エラーではなく収束）。
var ErrDuplicateNativeID = errors.New("native_idが重複しています")

// ValidationError は不正な候補データを表す。
// 該当候補をスキップしてバッチ処理を継続する。
type ValidationError struct {
	NativeID string
	Reason   string
}

// Error はerrorインターフェースを実装する。
func (e *ValidationError) Error() string {
	return fmt.Sprintf("候補の検証に失敗しました（native_id=%s）: %s", e.NativeID, e.Reason)
}

// NewValidationError は検証エラーを生成する。
func NewValidationError(nativeID, reason string) *ValidationError {
	return &ValidationError{NativeID: nativeID, Reason: reason}
}

// IsValidationError はエラーがValidationErrorかを判定する。
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
