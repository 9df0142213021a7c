// Command policyload is the offline write path for a policy store: it
// parses a flat-file block list and writes the resulting rules into the
// bbolt buckets the Store Handle Pool opens read-only at serve time.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/haukened/policycore/internal/policy/common/clock"
	"github.com/haukened/policycore/internal/policy/common/log"
	"github.com/haukened/policycore/internal/policy/domain"
	"github.com/haukened/policycore/internal/policy/store/boltstore"
)

func main() {
	storePath := flag.String("store", "", "path to the policy store file")
	format := flag.String("format", "plain", "input format: plain or hosts")
	source := flag.String("source", "policyload", "source label attached to every rule")
	flag.Parse()

	if *storePath == "" || flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: policyload -store <path> [-format plain|hosts] <input-file>")
		os.Exit(2)
	}

	logger := log.GetLogger()
	now := clock.RealClock{}.Now()

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		log.Fatal(map[string]any{"error": err.Error()}, "failed to open input file")
	}
	defer f.Close()

	var rules []domain.Rule
	switch *format {
	case "hosts":
		rules, err = boltstore.ParseHostsFile(f, *source, logger, now)
	case "plain":
		rules, err = boltstore.ParsePlainList(f, *source, logger, now)
	default:
		log.Fatal(map[string]any{"format": *format}, "unsupported format, want plain or hosts")
	}
	if err != nil {
		log.Fatal(map[string]any{"error": err.Error()}, "failed to parse input file")
	}

	db, err := boltstore.Open(*storePath)
	if err != nil {
		log.Fatal(map[string]any{"error": err.Error()}, "failed to open policy store")
	}
	defer db.Close()

	if err := boltstore.WriteRules(db, rules); err != nil {
		log.Fatal(map[string]any{"error": err.Error()}, "failed to write rules")
	}

	log.Info(map[string]any{
		"store":  *storePath,
		"format": *format,
		"source": *source,
		"count":  len(rules),
	}, "policy store updated")
}
