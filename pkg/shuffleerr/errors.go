// Package shuffleerr defines the sentinel error kinds surfaced by the shuffle
// engine's entry points. Callers classify failures with errors.Is; call sites
// wrap a sentinel with fmt.Errorf("...: %w", ...) to add context.
package shuffleerr

import "errors"

var (
	// ErrSchemaSerializationFailed is returned when any peer fails to
	// serialize its schema during the consistency check.
	ErrSchemaSerializationFailed = errors.New("schema serialization failed")

	// ErrSchemaInconsistent is returned when a peer's schema does not
	// structurally match the schema received from another peer.
	ErrSchemaInconsistent = errors.New("schema inconsistent across peers")

	// ErrUnsupportedType is returned when a column's logical type falls
	// outside the closed type set the codec dispatches on. Detected at
	// dispatch time, before any network traffic is produced.
	ErrUnsupportedType = errors.New("unsupported arrow type")

	// ErrTransportFailed wraps any error returned by the collective
	// transport (send, recv, probe, allreduce, barrier).
	ErrTransportFailed = errors.New("collective transport failed")

	// ErrDecodeTruncated is returned when an archive runs out of bytes
	// mid-column, or its row count does not match what was decoded.
	ErrDecodeTruncated = errors.New("archive decode truncated")
)
