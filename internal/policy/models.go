package policy

import "time"

// Snapshot is the normalized view of one torrent for a single poll cycle.
// It is rebuilt every cycle; nothing beyond ID survives across cycles.
type Snapshot struct {
	ID        int64
	Hash      string
	Name      string
	Trackers  []string // announce URL hostnames
	FileCount int
	Ratio     float64
	Seeding   time.Duration
	// SeedingKnown is false when the torrent reports no completion time.
	// Clauses with seeding bounds can never match such a torrent.
	SeedingKnown bool
	TotalSize    int64
}

// Gate is the coarse eligibility filter evaluated before any clause.
// An empty tracker allowlist matches any tracker.
type Gate struct {
	Trackers     []string
	MinFileCount *int
	MaxFileCount *int
}

// Clause is an AND-combination of optional bounds. All present bounds
// must hold for the clause to match.
type Clause struct {
	MinRatio   *float64
	MaxRatio   *float64
	MinSeeding *time.Duration
	MaxSeeding *time.Duration
}

// Policy names a gate plus one or more OR'd clauses. DeleteData decides
// whether a matching torrent loses its downloaded data along with its
// metadata.
type Policy struct {
	Name       string
	Gate       Gate
	Clauses    []Clause
	DeleteData bool
}

// Decision is the outcome of evaluating one snapshot: which policy fired
// and what kind of removal it asks for. Produced per torrent per cycle,
// consumed immediately, never persisted.
type Decision struct {
	TorrentID  int64
	Hash       string
	Name       string
	Policy     string
	DeleteData bool
	DryRun     bool
}
