package content

import "errors"

// ErrAttemptClosed is returned when a terminal attempt is modified.
var ErrAttemptClosed = errors.New("quiz attempt is no longer in progress")
