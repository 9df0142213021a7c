// Package boltstore is the one offline, read-write loader that populates a
// policy store file from flat-file sources: /etc/hosts-style block lists and
// plain newline-delimited domain lists. It is the write side of the store
// the Store Handle Pool (internal/policy/storepool) opens read-only.
//
// Adapted from the teacher's repos/blocklist/parsers package, generalized
// from domain.BlockRule/BlockRuleKind to domain.Rule/domain.RuleKind.
package boltstore

import (
	"bufio"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/haukened/policycore/internal/policy/common/log"
	"github.com/haukened/policycore/internal/policy/common/utils"
	"github.com/haukened/policycore/internal/policy/domain"
)

// ParseHostsFile parses /etc/hosts-style files and returns exact Rules for
// valid hostnames.
//
// Rules:
//   - Ignore the IP field; extract one or more hostnames following it
//   - Skip comments (whole-line or inline after '#') and blank lines
//   - Skip invalid tokens (wildcards like "*." or any '*' present, or names
//     starting with '.')
//   - Normalize via CanonicalDNSName; validate with isValidFQDN
//   - De-duplicate by canonical name alone, preserving first-seen order: every
//     hostname this function emits is RuleBlockExact, so two lines naming the
//     same host can never collide under different kinds the way plain-list
//     entries can (see ParsePlainList)
func ParseHostsFile(r io.Reader, source string, logger log.Logger, now time.Time) ([]domain.Rule, error) {
	scanner := bufio.NewScanner(r)

	seen := make(map[string]struct{})
	out := make([]domain.Rule, 0, 256)

	logger.Debug(map[string]any{"source": source}, "parse_hosts_start")

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := stripLineBOM(scanner.Text())

		if isEmpty, isComment := classifyLine(line); isEmpty || isComment {
			continue
		}

		line = stripInlineComment(line)

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		for _, raw := range fields[1:] {
			if raw == "" || strings.HasPrefix(raw, ".") || strings.Contains(raw, "*") {
				continue
			}

			name := utils.CanonicalDNSName(raw)
			if !isValidFQDN(name) {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}

			rule, err := domain.NewRule(name, domain.RuleBlockExact, source, now)
			if err != nil {
				continue
			}
			out = append(out, rule)
			seen[name] = struct{}{}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	logger.Debug(map[string]any{"source": source, "count": len(out)}, "parse_hosts_done")
	return out, nil
}

// ParsePlainList parses a simple newline-delimited list of domains into Rule
// values. Default kind is block_exact; a leading "*." or "." marks the entry
// as block_suffix.
//
// De-duplicates on name+"|"+kind rather than name alone: unlike
// ParseHostsFile, the same domain can legitimately appear twice here under
// two different kinds ("ads.example.com" as block_exact and "*.ads.example.com"
// as block_suffix both normalize to the name "ads.example.com"), and both are
// real, distinct rules the store must keep. Keying on name alone would drop
// whichever kind lost the race to appear first in the file.
func ParsePlainList(r io.Reader, source string, logger log.Logger, now time.Time) ([]domain.Rule, error) {
	scanner := bufio.NewScanner(r)

	seen := make(map[string]struct{})
	out := make([]domain.Rule, 0, 256)
	logger.Debug(map[string]any{"source": source}, "parse_plain_list_start")

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := stripLineBOM(scanner.Text())

		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		line = stripInlineComment(line)
		s := strings.TrimSpace(line)

		kind := ruleKindFromRaw(s)
		name := normalizeDomainName(s)

		if !isValidFQDN(name) {
			continue
		}

		seenKey := name + "|" + kind.String()
		if _, ok := seen[seenKey]; ok {
			continue
		}

		rule, err := domain.NewRule(name, kind, source, now)
		if err != nil {
			continue
		}
		out = append(out, rule)
		seen[seenKey] = struct{}{}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	logger.Debug(map[string]any{"source": source, "count": len(out)}, "parse_plain_list_done")
	return out, nil
}

func ruleKindFromRaw(raw string) domain.RuleKind {
	if strings.HasPrefix(raw, "*.") || strings.HasPrefix(raw, ".") {
		return domain.RuleBlockSuffix
	}
	return domain.RuleBlockExact
}

func normalizeDomainName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "*.")
	name = strings.TrimPrefix(name, ".")
	return utils.CanonicalDNSName(name)
}

// isValidFQDN enforces a 255-byte overall cap, at least two labels, and a
// 63-byte-max per-label length, matching RFC 1035's label limits.
func isValidFQDN(name string) bool {
	if len(name) > 255 {
		return false
	}
	labels := strings.Split(name, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if len(label) > 63 || len(label) == 0 {
			return false
		}
	}
	first := []rune(labels[0])
	if !unicode.IsLetter(first[0]) && !unicode.IsDigit(first[0]) {
		return false
	}
	return true
}

func stripLineBOM(s string) string {
	return strings.TrimPrefix(s, "﻿")
}

func classifyLine(s string) (isEmpty, isComment bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return true, false
	}
	if strings.HasPrefix(trimmed, "#") {
		return false, true
	}
	return false, false
}

func stripInlineComment(s string) string {
	if idx := strings.IndexByte(s, '#'); idx >= 0 {
		return s[:idx]
	}
	return s
}
