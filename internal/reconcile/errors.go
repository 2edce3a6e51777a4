package reconcile

import (
	"errors"
	"fmt"

	"github.com/starford/craftwiki/internal/outline"
)

// Store operations reported in StoreOperationError.Op.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpHide   = "hide"
	OpSkip   = "skip"
)

// ErrParentFailed is wrapped by the errors reported for nodes that were
// skipped because their parent could not be written.
var ErrParentFailed = errors.New("parent was not reconciled")

// StoreOperationError reports one failed row mutation. The pass continues
// after it; all of them are collected in Result.Errors.
type StoreOperationError struct {
	Op   string
	Kind outline.Kind
	Slug string
	Err  error
}

func (e *StoreOperationError) Error() string {
	return fmt.Sprintf("reconcile: %s %s %q: %v", e.Op, e.Kind, e.Slug, e.Err)
}

func (e *StoreOperationError) Unwrap() error { return e.Err }
