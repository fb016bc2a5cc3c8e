package timelinemodel

import "errors"

// Sentinel errors surfaced by the timeline's public operations. Denied is not
// one of these: an ordinary "not allowed" verdict is encoded in the (bool,
// proofs) return shape, not as an error.
var (
	// ErrUnknownResolution means a message declared a resolution outside the
	// closed {Public, Linear, Dynamic} set. Programmer error; fatal to the
	// current operation, not to the timeline.
	ErrUnknownResolution = errors.New("timeline: unknown resolution policy")

	// ErrConflictingGrantRevoke means two mutations at the same global_time
	// attempted to set opposite allowed values for the same (member, key).
	// The mutation is refused; see spec §7.
	ErrConflictingGrantRevoke = errors.New("timeline: conflicting grant/revoke at identical global_time")

	// ErrPolicyMismatch means a Dynamic-resolution message carried a policy
	// selection that disagrees with the timeline's own view at its
	// global_time. Treated as Denied with the accumulated policy proofs
	// still attached to the result.
	ErrPolicyMismatch = errors.New("timeline: dynamic resolution policy mismatch")

	// ErrEmptyProofs guards the PermissionEntry invariant: proofs is never empty.
	ErrEmptyProofs = errors.New("timeline: permission entry requires at least one proof")
)
