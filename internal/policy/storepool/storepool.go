// Package storepool implements the Store Handle Pool (spec §4.1, C1): P
// independent read-only bbolt handles opened against one store file, with
// worker identity hashed into a fixed slot so repeat callers reuse the same
// handle for the life of the pool.
//
// bbolt provides built-in MVCC snapshot reads, so unlike the original
// store's SQLite connection pool there is no prepared-statement cache to
// warm — but the pool still matters for the spec's assignment and
// degradation guarantees: a missing slot falls back to the global handle,
// and a missing global handle degrades every lookup to "no match" rather
// than failing open.
package storepool

import (
	"hash/fnv"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/policycore/internal/policy/domain"
)

// Bucket names, fixed by the resolved Open Question on canonical set
// naming (spec §9 / SPEC_FULL §9): the five rule-kind buckets (named via
// domain.RuleKind.String()) plus alias, the two address-rewrite tables, and
// the CIDR rule table.
const (
	BucketAlias     = "alias"
	BucketRewriteV4 = "rewrite_v4"
	BucketRewriteV6 = "rewrite_v6"
	BucketCIDR      = "cidr"
)

// Pool holds P read-only bbolt handles opened against the same store file.
type Pool struct {
	dbs    []*bbolt.DB // index 0 is the global fallback handle
	assign sync.Map    // worker key (string) -> slot index (int)
	size   int
	ready  atomic.Bool
}

// Open opens up to size independent read-only handles against path. A
// handle that fails to open is skipped; Open only fails outright if the
// global handle (slot 0) cannot be opened. Each successfully opened handle
// is warmed with a trivial bucket-stat read to populate its page cache.
func Open(path string, size int) (*Pool, error) {
	if size < 1 {
		size = 1
	}

	p := &Pool{dbs: make([]*bbolt.DB, size), size: size}

	for i := 0; i < size; i++ {
		db, err := bbolt.Open(path, 0o600, &bbolt.Options{
			ReadOnly: true,
			Timeout:  1 * time.Second,
		})
		if err != nil {
			if i == 0 {
				return nil, err
			}
			continue
		}
		warmup(db)
		p.dbs[i] = db
	}

	p.ready.Store(true)
	return p, nil
}

// warmup executes a single bucket-stat read per handle, the bbolt analogue
// of the spec's "trivial query to populate page cache".
func warmup(db *bbolt.DB) {
	_ = db.View(func(tx *bbolt.Tx) error {
		tx.Bucket([]byte(BucketAlias))
		return nil
	})
}

// Ready reports whether the pool has completed opening, using the memory
// model's happens-before guarantee on an atomic.Bool store/load so that any
// goroutine observing ready==true also observes every *bbolt.DB pointer in
// dbs (Go's release/acquire semantics on atomics make an explicit fence
// unnecessary here).
func (p *Pool) Ready() bool {
	return p != nil && p.ready.Load()
}

// Acquire returns the handle assigned to worker, hashing worker into [0,
// size) with FNV-1a on first use and caching the assignment for the life
// of the pool. A worker that hashes to a missing slot falls back to the
// global handle (slot 0). If the global handle is also unavailable,
// Acquire returns nil and callers must treat every lookup as "no match".
func (p *Pool) Acquire(worker string) *bbolt.DB {
	if p == nil || !p.Ready() {
		return nil
	}

	slotAny, _ := p.assign.LoadOrStore(worker, fnv1aSlot(worker, p.size))
	slot := slotAny.(int)

	if db := p.dbs[slot]; db != nil {
		return db
	}
	return p.dbs[0]
}

// Close closes every opened handle, collecting the first error encountered.
func (p *Pool) Close() error {
	var first error
	for _, db := range p.dbs {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func fnv1aSlot(worker string, size int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(worker))
	return int(h.Sum32() % uint32(size))
}

// Get performs a single point lookup of key in bucket using the handle
// assigned to worker. A nil return with ok==false covers both "not found"
// and "pool degraded" (no handle available) uniformly, per spec §4.1's
// "open-for-read is best-effort" guidance.
func (p *Pool) Get(worker, bucket, key string) (value []byte, ok bool, err error) {
	db := p.Acquire(worker)
	if db == nil {
		return nil, false, nil
	}

	err = db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			value = append([]byte(nil), v...)
			ok = true
		}
		return nil
	})
	return value, ok, err
}

// LoadStrings reads every key/value pair in bucket as strings, for the
// small RAM-resident tables (alias, rewrite_v4, rewrite_v6, regex_patterns)
// that the Rewrite Engine and Pattern Matcher hold entirely in memory.
func (p *Pool) LoadStrings(bucket string) (map[string]string, error) {
	out := map[string]string{}
	db := p.Acquire("loader")
	if db == nil {
		return out, nil
	}

	err := db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			out[string(k)] = string(v)
			return nil
		})
	})
	return out, err
}

// LoadCIDRs reads the CIDR rule table, keyed by "network/prefixlen" with the
// target address as the value; each rule's family follows from the network
// address. Malformed entries are skipped.
func (p *Pool) LoadCIDRs() ([]domain.CIDRRule, error) {
	raw, err := p.LoadStrings(BucketCIDR)
	if err != nil {
		return nil, err
	}

	rules := make([]domain.CIDRRule, 0, len(raw))
	for key, val := range raw {
		rule, ok := parseCIDRRule(key, val)
		if ok {
			rules = append(rules, rule)
		}
	}
	return rules, nil
}

func parseCIDRRule(key, val string) (domain.CIDRRule, bool) {
	prefix, err := netip.ParsePrefix(key)
	if err != nil {
		return domain.CIDRRule{}, false
	}
	target, err := netip.ParseAddr(val)
	if err != nil {
		return domain.CIDRRule{}, false
	}

	fam := domain.FamilyV4
	if prefix.Addr().Is6() {
		fam = domain.FamilyV6
	}

	return domain.CIDRRule{
		Family:    fam,
		Network:   prefix.Addr(),
		PrefixLen: prefix.Bits(),
		Target:    target,
	}, true
}

// CountKeys reports the number of keys in bucket, for sizing the Negative
// Filter before the single pass WalkNames makes to populate it.
func (p *Pool) CountKeys(bucket string) (int, error) {
	db := p.Acquire("loader")
	if db == nil {
		return 0, nil
	}

	var n int
	err := db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		n = b.Stats().KeyN
		return nil
	})
	return n, err
}

// WalkNames calls fn with every key in bucket, for building the Negative
// Filter over block_exact without holding the full name set in memory at
// once. The walk uses the handle assigned to the "loader" worker key; it
// runs once at open (or rebuild) and is never on the query hot path.
func (p *Pool) WalkNames(bucket string, fn func(name string)) error {
	db := p.Acquire("loader")
	if db == nil {
		return nil
	}

	return db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			fn(string(k))
			return nil
		})
	})
}

// Stats reports the number of opened handles versus the configured size.
func (p *Pool) Stats() (opened, size int) {
	for _, db := range p.dbs {
		if db != nil {
			opened++
		}
	}
	return opened, p.size
}
