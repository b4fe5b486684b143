package engine

import "errors"

// ErrTransactionTimeout is the §7 transient-protocol taxonomy entry for
// an exhausted retry budget. The engine itself does not return it: an
// acknowledged or request/response send that runs out of retries is
// reported as MsgCompleted(tag, false).
var ErrTransactionTimeout = errors.New("engine: transaction timeout")

// ErrTooManyRetries mirrors §7's taxonomy entry distinct from a plain
// timeout. The engine does not return it; Config.Valid reports an
// out-of-range RetryCount with its own error.
var ErrTooManyRetries = errors.New("engine: too many retries")
