package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func hoardPolicy() Policy {
	return Policy{
		Name: "well-seeded",
		Gate: Gate{
			Trackers:     []string{"tracker-hostname.horse"},
			MinFileCount: ptr(2),
		},
		Clauses: []Clause{
			{MinRatio: ptr(1.4), MinSeeding: ptr(12 * time.Hour)},
			{MinSeeding: ptr(365 * 24 * time.Hour)},
		},
		DeleteData: true,
	}
}

func seedingSnapshot() Snapshot {
	return Snapshot{
		ID:           7,
		Hash:         "abcd",
		Name:         "testcase",
		Trackers:     []string{"tracker-hostname.horse"},
		FileCount:    3,
		Ratio:        1.5,
		Seeding:      13 * time.Hour,
		SeedingKnown: true,
		TotalSize:    30000,
	}
}

func TestNewRuleSet_Validation(t *testing.T) {
	tests := []struct {
		name     string
		policies []Policy
		wantErr  string
	}{
		{
			name:     "no clauses",
			policies: []Policy{{Name: "empty"}},
			wantErr:  "at least one clause is required",
		},
		{
			name: "clause without bounds",
			policies: []Policy{{
				Name:    "unbounded",
				Clauses: []Clause{{}},
			}},
			wantErr: "set at least one of",
		},
		{
			name: "valid",
			policies: []Policy{{
				Name:    "ok",
				Clauses: []Clause{{MinRatio: ptr(1.0)}},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRuleSet(tt.policies)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewRuleSet_DefaultsNamesToIndex(t *testing.T) {
	rs, err := NewRuleSet([]Policy{
		{Clauses: []Clause{{MinRatio: ptr(1.0)}}},
		{Clauses: []Clause{{MaxRatio: ptr(0.5)}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "0", rs.Policies()[0].Name)
	assert.Equal(t, "1", rs.Policies()[1].Name)
}

func TestEvaluate_Thresholds(t *testing.T) {
	rs, err := NewRuleSet([]Policy{hoardPolicy()})
	require.NoError(t, err)

	tests := []struct {
		name     string
		mutate   func(*Snapshot)
		wantFire bool
	}{
		{
			name:     "ratio and min seeding met fires via first clause",
			mutate:   func(*Snapshot) {},
			wantFire: true,
		},
		{
			name: "low ratio but seeding a year fires via second clause",
			mutate: func(s *Snapshot) {
				s.Ratio = 0.9
				s.Seeding = 400 * 24 * time.Hour
			},
			wantFire: true,
		},
		{
			name: "foreign tracker never fires",
			mutate: func(s *Snapshot) {
				s.Trackers = []string{"other.tracker"}
			},
			wantFire: false,
		},
		{
			name: "too few files never fires",
			mutate: func(s *Snapshot) {
				s.FileCount = 1
			},
			wantFire: false,
		},
		{
			name: "low ratio and young torrent does not fire",
			mutate: func(s *Snapshot) {
				s.Ratio = 0.9
				s.Seeding = time.Minute
			},
			wantFire: false,
		},
		{
			name: "tracker match is case-insensitive",
			mutate: func(s *Snapshot) {
				s.Trackers = []string{"Tracker-Hostname.HORSE"}
			},
			wantFire: true,
		},
		{
			name: "unknown seeding time blocks seeding bounds",
			mutate: func(s *Snapshot) {
				s.SeedingKnown = false
			},
			wantFire: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := seedingSnapshot()
			tt.mutate(&snap)
			dec, fired := rs.Evaluate(snap)
			assert.Equal(t, tt.wantFire, fired)
			if fired {
				assert.Equal(t, snap.ID, dec.TorrentID)
				assert.Equal(t, "well-seeded", dec.Policy)
				assert.True(t, dec.DeleteData)
			}
		})
	}
}

func TestEvaluate_EmptyAllowlistMatchesAnyTracker(t *testing.T) {
	rs, err := NewRuleSet([]Policy{{
		Name:    "any-tracker",
		Clauses: []Clause{{MinRatio: ptr(1.0)}},
	}})
	require.NoError(t, err)

	snap := seedingSnapshot()
	snap.Trackers = []string{"whatever.example.com"}
	_, fired := rs.Evaluate(snap)
	assert.True(t, fired)
}

func TestEvaluate_FirstPolicyWins(t *testing.T) {
	first := Policy{
		Name:    "first",
		Clauses: []Clause{{MinRatio: ptr(1.0)}},
	}
	second := Policy{
		Name:       "second",
		Clauses:    []Clause{{MinRatio: ptr(1.0)}},
		DeleteData: true,
	}
	rs, err := NewRuleSet([]Policy{first, second})
	require.NoError(t, err)

	// Both policies match; only the earlier-declared one decides.
	dec, fired := rs.Evaluate(seedingSnapshot())
	require.True(t, fired)
	assert.Equal(t, "first", dec.Policy)
	assert.False(t, dec.DeleteData)

	rs, err = NewRuleSet([]Policy{second, first})
	require.NoError(t, err)
	dec, fired = rs.Evaluate(seedingSnapshot())
	require.True(t, fired)
	assert.Equal(t, "second", dec.Policy)
	assert.True(t, dec.DeleteData)
}

func TestEvaluate_Idempotent(t *testing.T) {
	rs, err := NewRuleSet([]Policy{hoardPolicy()})
	require.NoError(t, err)

	snap := seedingSnapshot()
	first, firedFirst := rs.Evaluate(snap)
	for i := 0; i < 10; i++ {
		dec, fired := rs.Evaluate(snap)
		assert.Equal(t, firedFirst, fired)
		assert.Equal(t, first, dec)
	}
}

func TestClauseMatching_Monotonic(t *testing.T) {
	minBound := Clause{MinRatio: ptr(1.0)}
	maxBound := Clause{MaxRatio: ptr(1.0)}

	snap := seedingSnapshot()
	var prevMin, prevMax *bool
	for _, ratio := range []float64{0, 0.5, 0.99, 1.0, 1.01, 2, 100} {
		snap.Ratio = ratio
		gotMin := minBound.matches(snap)
		gotMax := maxBound.matches(snap)
		if prevMin != nil {
			// a satisfied min bound stays satisfied as ratio grows
			assert.False(t, *prevMin && !gotMin, "min_ratio flipped off at ratio %v", ratio)
			// a violated max bound stays violated as ratio grows
			assert.False(t, !*prevMax && gotMax, "max_ratio flipped on at ratio %v", ratio)
		}
		prevMin, prevMax = &gotMin, &gotMax
	}
}

func TestClauseMatching_SeedingBounds(t *testing.T) {
	clause := Clause{
		MinSeeding: ptr(time.Hour),
		MaxSeeding: ptr(48 * time.Hour),
	}

	tests := []struct {
		name    string
		seeding time.Duration
		want    bool
	}{
		{"below minimum", time.Minute, false},
		{"at minimum", time.Hour, true},
		{"inside range", 6 * time.Hour, true},
		{"at maximum", 48 * time.Hour, true},
		{"above maximum", 12 * 24 * time.Hour, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := seedingSnapshot()
			snap.Seeding = tt.seeding
			assert.Equal(t, tt.want, clause.matches(snap))
		})
	}
}
