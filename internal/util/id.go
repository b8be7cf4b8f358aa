package util

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// NewID returns a lowercase ULID, optionally prefixed ("req" -> "req_01j...").
// ULIDs sort by creation time, which keeps ids stable as a tie-breaker.
func NewID(prefix string) string {
	id := strings.ToLower(ulid.Make().String())
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
