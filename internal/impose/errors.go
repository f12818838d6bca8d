package impose

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest      = errors.New("impose: invalid request")
	ErrNoInputProvided     = errors.New("impose: no input provided")
	ErrNoValidSources      = errors.New("impose: no valid sources")
	ErrSerializationFailed = errors.New("impose: serialization failed")
)

// WarningKind は処理を中断しない個別失敗の種別です。
type WarningKind string

const (
	WarningSourceLoadFailed WarningKind = "SOURCE_LOAD_FAILED"
	WarningEmptySource      WarningKind = "EMPTY_SOURCE"
	WarningPlacementFailed  WarningKind = "PLACEMENT_FAILED"
)

// Warning はスキップしたソースや空白のまま残したセルを記録します。
// Sheet と Slot は配置失敗のときだけ意味を持ちます。
type Warning struct {
	Kind  WarningKind `json:"kind"`
	Path  string      `json:"path"`
	Input int         `json:"input"`
	Sheet int         `json:"sheet"`
	Slot  int         `json:"slot"`
	Err   error       `json:"-"`
}

func (w Warning) Error() string {
	switch w.Kind {
	case WarningEmptySource:
		return fmt.Sprintf("%s: %s has no pages", w.Kind, w.Path)
	case WarningPlacementFailed:
		return fmt.Sprintf("%s: %s (sheet %d, slot %d): %v", w.Kind, w.Path, w.Sheet+1, w.Slot, w.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", w.Kind, w.Path, w.Err)
	}
}

func (w Warning) Unwrap() error {
	return w.Err
}
