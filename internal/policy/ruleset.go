package policy

import (
	"fmt"
	"strconv"
	"strings"
)

// RuleSet is the immutable, validated set of policies for one instance.
// Build it once at config load; evaluation is pure and deterministic.
type RuleSet struct {
	policies []Policy
}

// NewRuleSet validates and normalizes the given policies. It rejects
// policies without clauses and clauses with no bounds set: an unbounded
// clause would match every torrent behind its gate and delete a whole
// tracker's worth of data at once.
func NewRuleSet(policies []Policy) (RuleSet, error) {
	normalized := make([]Policy, len(policies))
	for i, p := range policies {
		if p.Name == "" {
			p.Name = strconv.Itoa(i)
		}
		if len(p.Clauses) == 0 {
			return RuleSet{}, fmt.Errorf("policy %q: at least one clause is required", p.Name)
		}
		for j, c := range p.Clauses {
			if c.MinRatio == nil && c.MaxRatio == nil && c.MinSeeding == nil && c.MaxSeeding == nil {
				return RuleSet{}, fmt.Errorf(
					"policy %q clause %d: set at least one of min_ratio, max_ratio, min_seeding, max_seeding",
					p.Name, j)
			}
		}
		trackers := make([]string, len(p.Gate.Trackers))
		for j, tr := range p.Gate.Trackers {
			trackers[j] = strings.ToLower(strings.TrimSpace(tr))
		}
		p.Gate.Trackers = trackers
		normalized[i] = p
	}
	return RuleSet{policies: normalized}, nil
}

// Policies returns the validated policies in declaration order.
func (rs RuleSet) Policies() []Policy { return rs.policies }

// Evaluate returns the decision for the first policy, in declaration
// order, whose gate passes and whose clauses contain at least one match.
// Later policies are not consulted, so one torrent yields at most one
// decision per cycle.
func (rs RuleSet) Evaluate(s Snapshot) (Decision, bool) {
	for _, p := range rs.policies {
		if !p.Gate.matches(s) {
			continue
		}
		for _, c := range p.Clauses {
			if c.matches(s) {
				return Decision{
					TorrentID:  s.ID,
					Hash:       s.Hash,
					Name:       s.Name,
					Policy:     p.Name,
					DeleteData: p.DeleteData,
				}, true
			}
		}
	}
	return Decision{}, false
}

func (g Gate) matches(s Snapshot) bool {
	if len(g.Trackers) > 0 && !intersects(g.Trackers, s.Trackers) {
		return false
	}
	if g.MinFileCount != nil && s.FileCount < *g.MinFileCount {
		return false
	}
	if g.MaxFileCount != nil && s.FileCount > *g.MaxFileCount {
		return false
	}
	return true
}

func (c Clause) matches(s Snapshot) bool {
	if c.MinRatio != nil && s.Ratio < *c.MinRatio {
		return false
	}
	if c.MaxRatio != nil && s.Ratio > *c.MaxRatio {
		return false
	}
	if c.MinSeeding != nil && (!s.SeedingKnown || s.Seeding < *c.MinSeeding) {
		return false
	}
	if c.MaxSeeding != nil && (!s.SeedingKnown || s.Seeding > *c.MaxSeeding) {
		return false
	}
	return true
}

func intersects(allowlist, trackers []string) bool {
	for _, tr := range trackers {
		tr = strings.ToLower(tr)
		for _, allowed := range allowlist {
			if tr == allowed {
				return true
			}
		}
	}
	return false
}
