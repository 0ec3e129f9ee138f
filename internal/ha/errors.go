package ha

import "errors"

// Error taxonomy per spec.md §7. The background loops never propagate these
// — they log, classify, and retry. Only the Registry and the option
// decoders surface errors to callers.
var (
	// ErrBootstrapFailed wraps a failed initial Basic-Info probe; returned
	// by the Registry's get_manager equivalent.
	ErrBootstrapFailed = errors.New("xcluster: bootstrap probe failed")

	// ErrInvalidOption is returned when a user-supplied option fails type
	// coercion while decoding PolarConfig/ConnectionConfig.
	ErrInvalidOption = errors.New("xcluster: invalid option")

	// ErrInvalidFollowerReadState is returned when EnableFollowerRead is
	// outside {-1,0,1,2}.
	ErrInvalidFollowerReadState = errors.New("xcluster: invalid follower-read state")

	// ErrNoAvailableNode is the Selector's "no candidate before deadline"
	// outcome, surfaced by callers as ("", false) rather than this error —
	// kept for callers that want an error-typed variant.
	ErrNoAvailableNode = errors.New("xcluster: no available dn/cn")
)
