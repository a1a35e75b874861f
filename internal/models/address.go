package models

import "strings"

// ZeroAddress is the canonical 66-char form every address normalizes to
// when it is zero. Upstream emits zero as "0x0" or "0" depending on the
// event; comparisons always go through NormalizeAddress first.
const ZeroAddress = "0x0000000000000000000000000000000000000000000000000000000000000000"

// NormalizeAddress strips 0x, left-pads to 64 hex digits, lowercases and
// re-prefixes. Inputs longer than 64 digits are returned lowercased as-is
// (they are not valid felt addresses and must not collide with real ones).
func NormalizeAddress(addr string) string {
	s := strings.ToLower(strings.TrimSpace(addr))
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		s = "0"
	}
	if len(s) > 64 {
		return "0x" + s
	}
	return "0x" + strings.Repeat("0", 64-len(s)) + s
}

func IsZeroAddress(addr string) bool {
	return NormalizeAddress(addr) == ZeroAddress
}
