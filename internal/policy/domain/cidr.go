package domain

import "net/netip"

// Family distinguishes IPv4 from IPv6 CIDR rules.
type Family uint8

const (
	FamilyV4 Family = iota
	FamilyV6
)

// CIDRRule is an in-memory address-range rewrite rule, loaded once from the
// store at open and held for the lifetime of the Core. Immutable post-load.
type CIDRRule struct {
	Family    Family
	Network   netip.Addr
	PrefixLen int
	Target    netip.Addr
}

// Contains reports whether addr falls within the rule's network, matching
// the first PrefixLen bits of Network.
func (r CIDRRule) Contains(addr netip.Addr) bool {
	p, err := r.Network.Prefix(r.PrefixLen)
	if err != nil {
		return false
	}
	return p.Contains(addr)
}
