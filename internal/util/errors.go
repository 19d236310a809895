package util

import "errors"

// ErrPeerUnavailable marks a terminal failure of a downstream RPC (timeout,
// transport error or error reply). The attempt has already been persisted
// when it occurs.
var ErrPeerUnavailable = errors.New("peer service unavailable")
