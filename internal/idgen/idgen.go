// Package idgen generates the opaque correlation and entry identifiers used
// throughout the extension host (host_call_id, rpc_id, entry_id, run_id).
package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a fresh random identifier suitable for correlation IDs.
func New() string {
	return uuid.New().String()
}

// NewShort returns a fresh identifier truncated to 12 hex characters, used
// where a compact but still-unique handle is preferable (e.g. segment scoped
// debug labels).
func NewShort() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}
