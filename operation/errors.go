package operation

import "errors"

// Sentinel errors for operation construction and receipt validation (spec
// §4.1, §4.3). Grounded in the teacher codebase's convention of a flat
// `var (Err... = errors.New(...))` block per package.
var (
	ErrUnsupportedVersion = errors.New("operation: unsupported version")
	ErrSignatureInvalid   = errors.New("operation: signature does not verify")
	ErrPayloadMismatch    = errors.New("operation: payload hash or size mismatch")
	ErrBacklinkMissing    = errors.New("operation: backlink must be present iff seq_num > 0")
	ErrBacklinkMismatch   = errors.New("operation: backlink does not match the hash of the previous operation")
	ErrTooManyAuthors     = errors.New("operation: backlink belongs to a different author's log")
	ErrSelfReference      = errors.New("operation: previous must not contain the operation's own hash")
	ErrDuplicatePrevious  = errors.New("operation: previous contains duplicate hashes")
)
