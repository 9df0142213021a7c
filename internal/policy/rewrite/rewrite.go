// Package rewrite implements the Rewrite Engine (spec §4.7, C7): pre-
// resolution domain aliasing and post-resolution address rewriting,
// including CIDR-range matching and IPv6 canonicalization.
package rewrite

import (
	"net/netip"
	"strings"

	"github.com/haukened/policycore/internal/policy/domain"
)

// MaxAliasLen bounds the composed alias result (spec §4.7 / Testable
// Properties #5): input length <= 255 and target length <= 767 guarantee
// output length <= 1023; this is the hard ceiling enforced here.
const MaxAliasLen = 1024

// Engine holds the alias table, exact address rewrite table, and the CIDR
// rule list, all built once at open and read-only thereafter.
type Engine struct {
	aliases  map[string]string // source name -> target name, exact
	rewrites map[string]string // stringified address -> stringified target, exact
	cidrs    []domain.CIDRRule
}

// New constructs an Engine from the alias, exact-rewrite, and CIDR rule
// sets loaded from the store at open.
func New(aliases map[string]string, rewrites map[string]string, cidrs []domain.CIDRRule) *Engine {
	if aliases == nil {
		aliases = map[string]string{}
	}
	if rewrites == nil {
		rewrites = map[string]string{}
	}
	return &Engine{aliases: aliases, rewrites: rewrites, cidrs: cidrs}
}

// Alias resolves a pre-resolution domain redirection. It first tries an
// exact match on name; on miss, it tries the parent domain (everything
// after the first '.'). When the parent matches, the subdomain prefix of
// name (up to and including the first '.') is preserved and prepended to
// the parent's target. A composed result longer than MaxAliasLen bytes is
// rejected ("no alias").
func (e *Engine) Alias(name string) (string, bool) {
	if target, ok := e.aliases[name]; ok {
		return target, true
	}

	dot := strings.IndexByte(name, '.')
	if dot < 0 {
		return "", false
	}

	parent := name[dot+1:]
	target, ok := e.aliases[parent]
	if !ok {
		return "", false
	}

	prefix := name[:dot+1]
	composed := prefix + target
	if len(composed) > MaxAliasLen {
		return "", false
	}
	return composed, true
}

// RewriteV4 maps a post-resolution IPv4 address, trying an exact match
// first and then a linear scan of IPv4 CIDR rules.
func (e *Engine) RewriteV4(addr netip.Addr) (netip.Addr, bool) {
	return e.rewriteAddr(addr, domain.FamilyV4)
}

// RewriteV6 maps a post-resolution IPv6 address. Exact matching tries both
// the address's compact string form and its fully expanded canonical form,
// since either may have been used as the store key. CIDR rules are then
// scanned as for IPv4.
func (e *Engine) RewriteV6(addr netip.Addr) (netip.Addr, bool) {
	if target, ok := e.rewrites[addr.String()]; ok {
		if t, err := netip.ParseAddr(target); err == nil {
			return t, true
		}
	}
	if target, ok := e.rewrites[CanonicalizeV6(addr.String())]; ok {
		if t, err := netip.ParseAddr(target); err == nil {
			return t, true
		}
	}
	return e.rewriteCIDR(addr, domain.FamilyV6)
}

func (e *Engine) rewriteAddr(addr netip.Addr, fam domain.Family) (netip.Addr, bool) {
	if target, ok := e.rewrites[addr.String()]; ok {
		if t, err := netip.ParseAddr(target); err == nil {
			return t, true
		}
	}
	return e.rewriteCIDR(addr, fam)
}

func (e *Engine) rewriteCIDR(addr netip.Addr, fam domain.Family) (netip.Addr, bool) {
	for _, rule := range e.cidrs {
		if rule.Family != fam {
			continue
		}
		if rule.Contains(addr) {
			return rule.Target, true
		}
	}
	return netip.Addr{}, false
}

// CanonicalizeV6 returns the fully expanded, lowercase, zero-padded form of
// an IPv6 literal (e.g. "2001:db8::1" -> "2001:0db8:0000:0000:0000:0000:0000:0001").
// Non-IPv6 or unparseable input is returned unchanged.
func CanonicalizeV6(addr string) string {
	ip, err := netip.ParseAddr(addr)
	if err != nil || !ip.Is6() {
		return addr
	}
	b := ip.As16()

	var sb strings.Builder
	sb.Grow(39)
	for i := 0; i < 16; i += 2 {
		if i > 0 {
			sb.WriteByte(':')
		}
		writeHex4(&sb, b[i], b[i+1])
	}
	return sb.String()
}

const hexDigits = "0123456789abcdef"

func writeHex4(sb *strings.Builder, hi, lo byte) {
	sb.WriteByte(hexDigits[hi>>4])
	sb.WriteByte(hexDigits[hi&0xf])
	sb.WriteByte(hexDigits[lo>>4])
	sb.WriteByte(hexDigits[lo&0xf])
}
