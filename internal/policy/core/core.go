// Package core assembles the seven policy-core components (C1-C7) behind
// the Public Core API (spec §6): Open, Lookup, GetTerminate, Alias,
// RewriteV4/V6, and Close.
package core

import (
	"net/netip"
	"os"

	"github.com/haukened/policycore/internal/policy/common/log"
	"github.com/haukened/policycore/internal/policy/common/utils"
	"github.com/haukened/policycore/internal/policy/config"
	"github.com/haukened/policycore/internal/policy/decider"
	"github.com/haukened/policycore/internal/policy/domain"
	"github.com/haukened/policycore/internal/policy/negfilter"
	"github.com/haukened/policycore/internal/policy/pattern"
	"github.com/haukened/policycore/internal/policy/recency"
	"github.com/haukened/policycore/internal/policy/rewrite"
	"github.com/haukened/policycore/internal/policy/storepool"
)

// storePathEnvVar is the fallback environment variable checked when the
// configuration leaves the store path unset (spec §6 "Environment").
const storePathEnvVar = "POLICY_STORE_PATH"

// Core owns every long-lived structure built during Open and torn down
// during Close. During steady state only the Recency Cache mutates;
// everything else is read-only (spec §3 "Lifecycles").
type Core struct {
	cfg     *config.AppConfig
	pool    *storepool.Pool
	decide  *decider.Decider
	rewrite *rewrite.Engine
	matcher *pattern.Matcher
	cache   recency.Cache

	degraded   bool // true when no store path was ever configured
	filterBits uint64
	cidrCount  int
}

// Open builds and wires every component from cfg. A missing store path is
// not fatal: Open succeeds with a Core that answers NONE to every Lookup
// (ErrConfigAbsent, spec §7). A store that cannot be opened at all is
// fatal (ErrStoreOpenFailed); the caller should not start serving.
func Open(cfg *config.AppConfig) (*Core, error) {
	c := &Core{cfg: cfg}

	cache, err := recency.New(cfg.Cache.Size)
	if err != nil {
		return nil, err
	}
	c.cache = cache

	path := cfg.Store.Path
	if path == "" {
		path = os.Getenv(storePathEnvVar)
	}

	if path == "" {
		log.Warn(nil, ErrConfigAbsent.Error())
		c.degraded = true
		c.matcher = pattern.New()
		c.decide = decider.New(c.cache, negfilter.New(1, cfg.NegativeFilter.TargetFPRate), c.matcher, nil)
		c.rewrite = rewrite.New(nil, nil, nil)
		return c, nil
	}

	pool, err := storepool.Open(path, cfg.Pool)
	if err != nil {
		return nil, &wrappedStoreOpenError{err: err}
	}
	c.pool = pool

	if err := c.loadComponents(); err != nil {
		_ = pool.Close()
		return nil, err
	}

	return c, nil
}

func (c *Core) loadComponents() error {
	n, err := c.pool.CountKeys(domain.RuleBlockExact.String())
	if err != nil {
		return &PrepareError{Component: domain.RuleBlockExact.String(), Critical: true, Err: err}
	}
	filter := negfilter.New(uint64(n), c.cfg.NegativeFilter.TargetFPRate)
	if err := c.pool.WalkNames(domain.RuleBlockExact.String(), filter.Add); err != nil {
		return &PrepareError{Component: domain.RuleBlockExact.String(), Critical: true, Err: err}
	}
	c.filterBits = filter.Bits()

	patterns, err := c.pool.LoadStrings(domain.RuleRegex.String())
	if err != nil {
		return &PrepareError{Component: domain.RuleRegex.String(), Critical: true, Err: err}
	}
	matcher := pattern.New()
	matcher.Load(patterns)
	c.matcher = matcher

	c.decide = decider.New(c.cache, filter, matcher, c.pool)

	aliases, err := c.pool.LoadStrings(storepool.BucketAlias)
	if err != nil {
		log.Warn(map[string]any{"error": err.Error()}, "alias table unavailable, aliasing disabled")
		aliases = nil
	}

	rewrites := map[string]string{}
	if v4, err := c.pool.LoadStrings(storepool.BucketRewriteV4); err == nil {
		for k, v := range v4 {
			rewrites[k] = v
		}
	} else {
		log.Warn(map[string]any{"error": err.Error()}, "rewrite_v4 table unavailable, v4 rewriting disabled")
	}
	if v6, err := c.pool.LoadStrings(storepool.BucketRewriteV6); err == nil {
		for k, v := range v6 {
			rewrites[k] = v
		}
	} else {
		log.Warn(map[string]any{"error": err.Error()}, "rewrite_v6 table unavailable, v6 rewriting disabled")
	}

	cidrs, err := c.pool.LoadCIDRs()
	if err != nil {
		log.Warn(map[string]any{"error": err.Error()}, "cidr table unavailable, CIDR rewriting disabled")
		cidrs = nil
	}

	c.cidrCount = len(cidrs)
	c.rewrite = rewrite.New(aliases, rewrites, cidrs)
	return nil
}

// wrappedStoreOpenError lets Open return a value whose errors.Is matches
// ErrStoreOpenFailed while preserving the underlying cause via Unwrap.
type wrappedStoreOpenError struct{ err error }

func (e *wrappedStoreOpenError) Error() string { return ErrStoreOpenFailed.Error() + ": " + e.err.Error() }
func (e *wrappedStoreOpenError) Unwrap() []error { return []error{ErrStoreOpenFailed, e.err} }

// Lookup is the primary decision function. worker identifies the calling
// session or connection; its hash selects the Store Handle Pool slot for
// the lifetime of that identity (spec §4.1 "Assignment").
func (c *Core) Lookup(worker, name string) domain.OutcomeTag {
	name = utils.CanonicalDNSName(name)
	return c.decide.Decide(worker, name).Outcome
}

// GetTerminate returns the configured address pool for outcome and family:
// the sinkhole pool for TERMINATE, or the matching upstream pool for
// FORWARD_BLOCK/FORWARD_ALLOW. Returns nil for NONE or an unrecognized
// combination.
func (c *Core) GetTerminate(outcome domain.OutcomeTag, family domain.Family) []string {
	switch outcome {
	case domain.Terminate:
		if family == domain.FamilyV6 {
			return c.cfg.Terminate.V6
		}
		return c.cfg.Terminate.V4
	case domain.ForwardBlock:
		return c.cfg.Forward.Block
	case domain.ForwardAllow:
		return c.cfg.Forward.Allow
	default:
		return nil
	}
}

// Alias resolves a pre-resolution domain redirection.
func (c *Core) Alias(name string) (string, bool) {
	return c.rewrite.Alias(utils.CanonicalDNSName(name))
}

// RewriteV4 maps a post-resolution IPv4 address.
func (c *Core) RewriteV4(addr netip.Addr) (netip.Addr, bool) {
	return c.rewrite.RewriteV4(addr)
}

// RewriteV6 maps a post-resolution IPv6 address.
func (c *Core) RewriteV6(addr netip.Addr) (netip.Addr, bool) {
	return c.rewrite.RewriteV6(addr)
}

// Degraded reports whether Open fell back to pass-through mode because no
// store path was ever configured.
func (c *Core) Degraded() bool { return c.degraded }

// Stats is the close-time observability snapshot spec §6 requires: Recency
// Cache hit/miss/hit-rate, Pattern Matcher load counts and bucket
// distribution, CIDR rule count, and Negative Filter bit size. It mirrors
// the original store's closing summary (db_close).
type Stats struct {
	CacheHits        uint64
	CacheMisses      uint64
	CacheEvictions   uint64
	CacheHitRate     float64
	PatternsLoaded   int
	PatternsFailed   int
	PatternsBucketed int
	PatternsCatchAll int
	CIDRRules        int
	FilterBits       uint64
}

// Stats returns the current observability snapshot without closing the Core.
func (c *Core) Stats() Stats {
	hits, misses, evictions := c.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	loaded, failed := c.matcher.Stats()
	catchAll, bucketed := c.matcher.BucketDistribution()

	return Stats{
		CacheHits:        hits,
		CacheMisses:      misses,
		CacheEvictions:   evictions,
		CacheHitRate:     hitRate,
		PatternsLoaded:   loaded,
		PatternsFailed:   failed,
		PatternsBucketed: bucketed,
		PatternsCatchAll: catchAll,
		CIDRRules:        c.cidrCount,
		FilterBits:       c.filterBits,
	}
}

// Close emits the Stats snapshot and tears down every long-lived structure.
func (c *Core) Close() error {
	s := c.Stats()
	log.Info(map[string]any{
		"cache_hits":        s.CacheHits,
		"cache_misses":      s.CacheMisses,
		"cache_evictions":   s.CacheEvictions,
		"cache_hit_rate":    s.CacheHitRate,
		"patterns_loaded":   s.PatternsLoaded,
		"patterns_failed":   s.PatternsFailed,
		"patterns_bucketed": s.PatternsBucketed,
		"patterns_catchall": s.PatternsCatchAll,
		"cidr_rules":        s.CIDRRules,
		"filter_bits":       s.FilterBits,
	}, "policy core closing")

	if c.pool == nil {
		return nil
	}
	return c.pool.Close()
}
