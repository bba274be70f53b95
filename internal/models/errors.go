package models

import (
	"errors"
)

// ErrVersionConflict indicates an optimistic-concurrency save lost a race
// with a concurrent writer. Per the drop-don't-retry policy, callers log
// and move on instead of retrying.
var ErrVersionConflict = errors.New("version conflict: record was modified concurrently")
