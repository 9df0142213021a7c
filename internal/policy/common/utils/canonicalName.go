package utils

import "strings"

// CanonicalDNSName returns a query name in the core's canonical form:
// - Lowercased
// - Trimmed of surrounding whitespace
// - Stripped of any trailing dot
//
// The policy core's data model (spec §3) stores and compares names without a
// trailing dot, the opposite convention from wire-format FQDNs.
func CanonicalDNSName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ToLower(name)
	name = strings.TrimSuffix(name, ".")
	return name
}
