package rewrite

import (
	"net/netip"
	"strings"
	"testing"

	"github.com/haukened/policycore/internal/policy/domain"
)

func mustAddr(t *testing.T, s string) netip.Addr {
	t.Helper()
	a, err := netip.ParseAddr(s)
	if err != nil {
		t.Fatalf("ParseAddr(%q): %v", s, err)
	}
	return a
}

func TestEngine_Alias_ExactMatch(t *testing.T) {
	e := New(map[string]string{"intel.com": "keweon.center"}, nil, nil)
	got, ok := e.Alias("intel.com")
	if !ok || got != "keweon.center" {
		t.Fatalf("Alias(intel.com) = (%q, %v), want (keweon.center, true)", got, ok)
	}
}

func TestEngine_Alias_ParentWithSubdomainPreservation(t *testing.T) {
	e := New(map[string]string{"intel.com": "keweon.center"}, nil, nil)
	got, ok := e.Alias("mail.intel.com")
	if !ok || got != "mail.keweon.center" {
		t.Fatalf("Alias(mail.intel.com) = (%q, %v), want (mail.keweon.center, true)", got, ok)
	}
}

func TestEngine_Alias_GrandparentDoesNotMatch(t *testing.T) {
	e := New(map[string]string{"intel.com": "keweon.center"}, nil, nil)
	if _, ok := e.Alias("deeply.nested.intel.com"); ok {
		t.Fatalf("Alias(deeply.nested.intel.com) unexpectedly matched; parent is nested.intel.com, not present")
	}
}

func TestEngine_Alias_NoMatch(t *testing.T) {
	e := New(nil, nil, nil)
	if _, ok := e.Alias("example.com"); ok {
		t.Fatalf("Alias(example.com) unexpectedly matched empty table")
	}
}

func TestEngine_Alias_SingleLabelNoParent(t *testing.T) {
	e := New(map[string]string{"localhost": "other"}, nil, nil)
	if _, ok := e.Alias("nodothere"); ok {
		t.Fatalf("Alias on a name with no '.' should never match a parent")
	}
}

func TestEngine_Alias_OverlongComposedResultRejected(t *testing.T) {
	longTarget := strings.Repeat("a", 1020) + ".com"
	e := New(map[string]string{"parent.com": longTarget}, nil, nil)
	if _, ok := e.Alias("sub.parent.com"); ok {
		t.Fatalf("Alias should reject composed results over %d bytes", MaxAliasLen)
	}
}

func TestEngine_Alias_Idempotent(t *testing.T) {
	e := New(map[string]string{"intel.com": "keweon.center"}, nil, nil)
	first, ok1 := e.Alias("mail.intel.com")
	second, ok2 := e.Alias("mail.intel.com")
	if first != second || ok1 != ok2 {
		t.Fatalf("Alias is not idempotent: first=(%q,%v) second=(%q,%v)", first, ok1, second, ok2)
	}
}

func TestEngine_RewriteV4_ExactMatch(t *testing.T) {
	e := New(nil, map[string]string{"192.168.5.7": "10.0.0.1"}, nil)
	got, ok := e.RewriteV4(mustAddr(t, "192.168.5.7"))
	if !ok || got.String() != "10.0.0.1" {
		t.Fatalf("RewriteV4 exact = (%v, %v), want (10.0.0.1, true)", got, ok)
	}
}

func TestEngine_RewriteV4_CIDRMatch(t *testing.T) {
	network := mustAddr(t, "192.168.0.0")
	target := mustAddr(t, "10.0.0.1")
	e := New(nil, nil, []domain.CIDRRule{
		{Family: domain.FamilyV4, Network: network, PrefixLen: 16, Target: target},
	})

	got, ok := e.RewriteV4(mustAddr(t, "192.168.5.7"))
	if !ok || got != target {
		t.Fatalf("RewriteV4 CIDR = (%v, %v), want (%v, true)", got, ok, target)
	}
}

func TestEngine_RewriteV4_NoMatch(t *testing.T) {
	e := New(nil, nil, nil)
	if _, ok := e.RewriteV4(mustAddr(t, "203.0.113.5")); ok {
		t.Fatalf("RewriteV4 unexpectedly matched empty rule set")
	}
}

func TestEngine_RewriteV6_ExactMatchCompactForm(t *testing.T) {
	e := New(nil, map[string]string{"2001:db8::1": "fd00::1"}, nil)
	got, ok := e.RewriteV6(mustAddr(t, "2001:db8::1"))
	if !ok || got.String() != "fd00::1" {
		t.Fatalf("RewriteV6 compact = (%v, %v), want (fd00::1, true)", got, ok)
	}
}

func TestEngine_RewriteV6_ExactMatchExpandedForm(t *testing.T) {
	// Store key is the fully expanded form; query uses compact form.
	e := New(nil, map[string]string{
		"2001:0db8:0000:0000:0000:0000:0000:0001": "fd00::1",
	}, nil)
	got, ok := e.RewriteV6(mustAddr(t, "2001:db8::1"))
	if !ok || got.String() != "fd00::1" {
		t.Fatalf("RewriteV6 expanded-key lookup = (%v, %v), want (fd00::1, true)", got, ok)
	}
}

func TestEngine_RewriteV6_CIDRMatch(t *testing.T) {
	network := mustAddr(t, "2001:db8::")
	target := mustAddr(t, "fd00::1")
	e := New(nil, nil, []domain.CIDRRule{
		{Family: domain.FamilyV6, Network: network, PrefixLen: 32, Target: target},
	})

	got, ok := e.RewriteV6(mustAddr(t, "2001:db8::abcd"))
	if !ok || got != target {
		t.Fatalf("RewriteV6 CIDR = (%v, %v), want (%v, true)", got, ok, target)
	}
}

func TestCanonicalizeV6_ExpandsAndLowercases(t *testing.T) {
	got := CanonicalizeV6("2001:DB8::1")
	want := "2001:0db8:0000:0000:0000:0000:0000:0001"
	if got != want {
		t.Fatalf("CanonicalizeV6(2001:DB8::1) = %q, want %q", got, want)
	}
}

func TestCanonicalizeV6_Involution(t *testing.T) {
	first := CanonicalizeV6("2001:db8::1")
	second := CanonicalizeV6(first)
	if first != second {
		t.Fatalf("CanonicalizeV6 is not an involution up to form: first=%q second=%q", first, second)
	}
}

func TestCanonicalizeV6_NonV6ReturnedUnchanged(t *testing.T) {
	got := CanonicalizeV6("192.168.1.1")
	if got != "192.168.1.1" {
		t.Fatalf("CanonicalizeV6(192.168.1.1) = %q, want unchanged", got)
	}
}
