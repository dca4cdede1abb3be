package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrLocalCache wraps failures of the local cache. They end the
	// operation that hit them.
	ErrLocalCache = errors.New("local cache unavailable")
	// ErrRemoteUnavailable marks a failed remote call. It is recorded in the
	// status and logged, never returned from Load or Save.
	ErrRemoteUnavailable = errors.New("remote store unavailable")
	// ErrConflict is matched by *ConflictError.
	ErrConflict = errors.New("remote document changed since last sync")
)

// ConflictError reports that a guarded write found the remote file changed
// by someone else. The write was discarded.
type ConflictError struct {
	Namespace string
	Expected  string
	Current   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: namespace %q expected fingerprint %q, found %q",
		ErrConflict, e.Namespace, short(e.Expected), short(e.Current))
}

// Is makes errors.Is(err, ErrConflict) report true.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

func short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
