// Package decider implements the Policy Decider (spec §4.6, C6): the
// total-ordered, deterministic pipeline that turns a query name into one
// of the four outcomes, composing C1-C5 and installing the result in the
// Recency Cache.
package decider

import (
	"github.com/haukened/policycore/internal/policy/domain"
	"github.com/haukened/policycore/internal/policy/negfilter"
	"github.com/haukened/policycore/internal/policy/pattern"
	"github.com/haukened/policycore/internal/policy/recency"
	"github.com/haukened/policycore/internal/policy/storepool"
	"github.com/haukened/policycore/internal/policy/suffix"
)

// Store is the subset of the Store Handle Pool the Decider consults: exact
// and suffix-keyed point lookups. Satisfied by *storepool.Pool; exposed as
// an interface here so the pipeline is testable without a real bbolt file.
type Store interface {
	Get(worker, bucket, key string) (value []byte, ok bool, err error)
}

var _ Store = (*storepool.Pool)(nil)

// Decider composes the Recency Cache, Pattern Matcher, Negative Filter, and
// the suffix-keyed store buckets into the four-outcome decision pipeline.
type Decider struct {
	cache   recency.Cache
	filter  *negfilter.Filter
	matcher *pattern.Matcher
	store   Store
}

// New constructs a Decider from its component dependencies. cache, filter,
// and matcher must be non-nil and already loaded; store may be nil, in
// which case steps 3-6 always miss (spec's "store unreachable → NONE").
func New(cache recency.Cache, filter *negfilter.Filter, matcher *pattern.Matcher, store Store) *Decider {
	return &Decider{cache: cache, filter: filter, matcher: matcher, store: store}
}

// Decide runs the pipeline for name (already canonicalized by the caller)
// on behalf of worker, whose identity selects the store handle (spec §4.1).
// Any per-step store error is treated as a miss at that step, never
// surfaced to the caller.
func (d *Decider) Decide(worker, name string) domain.Decision {
	if cached, ok := d.cache.Get(name); ok {
		return cached
	}

	decision := d.run(worker, name)
	d.cache.Put(name, decision)
	return decision
}

// suffixSteps lists the suffix-keyed rule kinds in spec §4.6's fixed
// priority order: block_wildcard, then allow_suffix, then block_suffix.
// Each kind's Outcome() supplies the decision the pipeline installs on a
// match, so the table-priority tiebreak lives in this slice's order, not
// in a hardcoded switch.
var suffixSteps = []domain.RuleKind{
	domain.RuleBlockWildcard,
	domain.RuleAllowSuffix,
	domain.RuleBlockSuffix,
}

func (d *Decider) run(worker, name string) domain.Decision {
	if d.matcher != nil {
		if src, ok := d.matcher.Match(name); ok {
			return domain.Decision{Outcome: domain.RuleRegex.Outcome(), MatchedSuffix: src}
		}
	}

	if d.store != nil {
		if d.filter == nil || d.filter.Check(name) {
			if _, ok, err := d.store.Get(worker, domain.RuleBlockExact.String(), name); err == nil && ok {
				return domain.Decision{Outcome: domain.RuleBlockExact.Outcome(), MatchedSuffix: name}
			}
		}

		for _, kind := range suffixSteps {
			if match, ok := d.longestSuffixMatch(worker, kind.String(), name); ok {
				return domain.Decision{Outcome: kind.Outcome(), MatchedSuffix: match}
			}
		}
	}

	return domain.NoneDecision()
}

// longestSuffixMatch walks name's suffixes from most- to least-specific
// (C2) and returns the first (therefore longest) one present in bucket.
// A per-suffix store error aborts the walk and reports no match, per the
// spec's per-step failure semantics.
func (d *Decider) longestSuffixMatch(worker, bucket, name string) (string, bool) {
	for _, s := range suffix.Of(name) {
		_, ok, err := d.store.Get(worker, bucket, s)
		if err != nil {
			return "", false
		}
		if ok {
			return s, true
		}
	}
	return "", false
}
