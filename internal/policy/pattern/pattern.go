// Package pattern implements the Pattern Matcher (spec §4.5, C5): a
// regex rule set bucketed by the first matchable byte of each pattern, so
// that matching a query name only tests the subset of patterns that could
// possibly match it.
//
// Bucketing heuristic and bucket-count ported from the original store's
// regex_get_bucket/regex_buckets (original_source
// OLD/dnsmasq2.91-PATCH/src/db.c); load/match synchronization mirrors the
// pack's only regex-cache reference (routing matcher_cache.go) and the
// original's pthread_once_t/pthread_rwlock_t pair.
package pattern

import (
	"regexp"
	"sync"
)

// CatchAllBucket is the 257th bucket (index 256) holding every pattern
// whose first matchable byte cannot be determined statically.
const CatchAllBucket = 256

// BucketCount is the total number of buckets: 256 byte-indexed buckets
// plus the catch-all.
const BucketCount = CatchAllBucket + 1

// bucketOf returns the bucket index for pattern, following the original's
// heuristic:
//   - an empty pattern, or one beginning with '.', '(', '[', '\\', '*', '?'
//     (after an optional leading '^' anchor) goes to the catch-all bucket
//   - a pattern beginning with an ASCII letter or digit is bucketed by the
//     lowercased byte value of that first character
//   - anything else falls back to the catch-all bucket
func bucketOf(expr string) int {
	if expr == "" {
		return CatchAllBucket
	}

	p := expr
	if p[0] == '^' {
		p = p[1:]
	}
	if p == "" {
		return CatchAllBucket
	}

	switch p[0] {
	case '.', '(', '[', '\\', '*', '?':
		return CatchAllBucket
	}

	c := p[0]
	if c >= 'A' && c <= 'Z' {
		c += 'a' - 'A'
	}
	if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
		return int(c)
	}

	return CatchAllBucket
}

// entry pairs a compiled pattern with its source text and originating rule
// name for observability.
type entry struct {
	source  string
	pattern string
	re      *regexp.Regexp
}

// Matcher holds the bucketed, compiled pattern set. The zero value is ready
// to use; call Load once before Match calls observe any patterns.
type Matcher struct {
	mu      sync.RWMutex
	buckets [BucketCount][]entry
	count   int
	failed  int
}

// New returns an empty Matcher.
func New() *Matcher {
	return &Matcher{}
}

// Load compiles and buckets every pattern, replacing any previously loaded
// set. Unparseable patterns are skipped and counted in Failed. Load is safe
// to call exactly once per Matcher lifetime in the ordinary lifecycle (the
// Core calls it once at Open); concurrent Match calls during a Load race
// are serialized behind the write lock.
func (m *Matcher) Load(rules map[string]string) {
	var buckets [BucketCount][]entry
	loaded, failed := 0, 0

	for source, pat := range rules {
		re, err := regexp.Compile(pat)
		if err != nil {
			failed++
			continue
		}
		b := bucketOf(pat)
		buckets[b] = append(buckets[b], entry{source: source, pattern: pat, re: re})
		loaded++
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets = buckets
	m.count = loaded
	m.failed = failed
}

// Match tests name against every pattern in the bucket addressed by name's
// first byte, plus the catch-all bucket. It returns the source name of the
// first matching rule and true, or "" and false if nothing matches.
func (m *Matcher) Match(name string) (source string, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b := bucketOf(name)
	for _, e := range m.buckets[b] {
		if e.re.MatchString(name) {
			return e.source, true
		}
	}

	if b != CatchAllBucket {
		for _, e := range m.buckets[CatchAllBucket] {
			if e.re.MatchString(name) {
				return e.source, true
			}
		}
	}

	return "", false
}

// Stats reports the number of successfully loaded and failed-to-compile
// patterns from the most recent Load.
func (m *Matcher) Stats() (loaded, failed int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.count, m.failed
}

// BucketDistribution reports how many loaded patterns landed in the
// catch-all bucket versus a byte-indexed bucket, for the close-time
// observability the spec requires (spec §6 "Observability").
func (m *Matcher) BucketDistribution() (catchAll, bucketed int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	catchAll = len(m.buckets[CatchAllBucket])
	for i := 0; i < CatchAllBucket; i++ {
		bucketed += len(m.buckets[i])
	}
	return catchAll, bucketed
}
