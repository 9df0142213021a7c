package boltstore

import (
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/policycore/internal/policy/domain"
	"github.com/haukened/policycore/internal/policy/storepool"
)

// Open opens path read-write, creating it and every bucket the Store Handle
// Pool expects if the file is new. This is the only writer the store ever
// sees; the pool's handles are opened read-only and never race it.
func Open(path string) (*bbolt.DB, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}

	buckets := []string{
		domain.RuleBlockExact.String(),
		domain.RuleBlockWildcard.String(),
		domain.RuleAllowSuffix.String(),
		domain.RuleBlockSuffix.String(),
		domain.RuleRegex.String(),
		storepool.BucketAlias,
		storepool.BucketRewriteV4,
		storepool.BucketRewriteV6,
		storepool.BucketCIDR,
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// WriteRules upserts each rule into the bucket its RuleKind names, value
// 1 byte (the spec's sets carry no payload beyond membership).
func WriteRules(db *bbolt.DB, rules []domain.Rule) error {
	return db.Update(func(tx *bbolt.Tx) error {
		for _, r := range rules {
			b := tx.Bucket([]byte(r.Kind.String()))
			if b == nil {
				continue
			}
			if err := b.Put([]byte(r.Name), []byte{1}); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReadRules reads back every entry in one of the four rule-set buckets
// (block_exact, block_wildcard, allow_suffix, block_suffix), reconstructing
// each Rule's Kind from the bucket name via ParseRuleKind rather than from
// any per-entry payload, since WriteRules stores membership only. source is
// recorded as-is on every returned Rule; regex_patterns is excluded because
// its values hold pattern text, not membership bytes, and is read instead by
// a caller iterating the bucket directly.
func ReadRules(db *bbolt.DB, bucketName, source string) ([]domain.Rule, error) {
	kind, err := domain.ParseRuleKind(bucketName)
	if err != nil {
		return nil, err
	}
	if kind == domain.RuleRegex {
		return nil, fmt.Errorf("boltstore: ReadRules does not support %q, use the regex bucket's pattern values directly", bucketName)
	}

	var rules []domain.Rule
	err = db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			r, err := domain.NewRule(string(k), kind, source, time.Time{})
			if err != nil {
				return err
			}
			rules = append(rules, r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return rules, nil
}

// WriteRegexPattern upserts a single named regular expression into the
// regex_patterns bucket, keyed by source (rule name) with the pattern text
// as the value.
func WriteRegexPattern(db *bbolt.DB, source, pattern string) error {
	return db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(domain.RuleRegex.String()))
		return b.Put([]byte(source), []byte(pattern))
	})
}

// WriteAlias upserts a single source -> target domain alias.
func WriteAlias(db *bbolt.DB, source, target string) error {
	return db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(storepool.BucketAlias))
		return b.Put([]byte(source), []byte(target))
	})
}

// WriteRewrite upserts a single exact-address or CIDR rewrite entry into
// bucket, which must be "rewrite_v4", "rewrite_v6", or "cidr".
func WriteRewrite(db *bbolt.DB, bucket, key, target string) error {
	return db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		return b.Put([]byte(key), []byte(target))
	})
}
