package transmission

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/hekmon/transmissionrpc/v3"
	"github.com/rs/zerolog/log"

	"github.com/boinkor-net/gearbox-maintenance/internal/policy"
)

// torrentFields is the subset of RPC fields a snapshot is built from.
var torrentFields = []string{
	"id", "hashString", "name", "error", "errorString", "status",
	"uploadRatio", "doneDate", "files", "totalSize", "trackers",
}

// Client talks to one Transmission RPC endpoint. It holds no state
// beyond the connection; torrent state is re-fetched every cycle.
type Client struct {
	rpc *transmissionrpc.Client
	url string
}

func New(rawURL, user, password string) (*Client, error) {
	endpoint, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing instance url %s: %w", rawURL, err)
	}
	if user != "" {
		endpoint.User = url.UserPassword(user, password)
	}
	rpc, err := transmissionrpc.New(endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating transmission client for %s: %w", rawURL, err)
	}
	return &Client{rpc: rpc, url: rawURL}, nil
}

// FetchTorrents returns one snapshot per seeding, error-free torrent,
// plus the number of records that could not be normalized.
func (c *Client) FetchTorrents(ctx context.Context) ([]policy.Snapshot, int, error) {
	torrents, err := c.rpc.TorrentGet(ctx, torrentFields, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("listing torrents on %s: %w", c.url, err)
	}
	now := time.Now()
	snapshots := make([]policy.Snapshot, 0, len(torrents))
	skipped := 0
	for _, t := range torrents {
		snap, seeding, err := newSnapshot(t, now)
		if err != nil {
			skipped++
			log.Debug().Str("instance", c.url).Err(err).Msg("skipping malformed torrent record")
			continue
		}
		if !seeding {
			continue
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, skipped, nil
}

// RemoveTorrent deletes one torrent, optionally together with its
// downloaded data. Transmission ignores ids it no longer knows, so
// removing an already-absent torrent reports success.
func (c *Client) RemoveTorrent(ctx context.Context, id int64, deleteData bool) error {
	err := c.rpc.TorrentRemove(ctx, transmissionrpc.TorrentRemovePayload{
		IDs:             []int64{id},
		DeleteLocalData: deleteData,
	})
	if err != nil {
		return fmt.Errorf("removing torrent %d on %s: %w", id, c.url, err)
	}
	return nil
}

// newSnapshot normalizes one RPC record. The second return is false for
// torrents that are valid but not seeding or in an error state; those
// are never candidates for deletion.
func newSnapshot(t transmissionrpc.Torrent, now time.Time) (policy.Snapshot, bool, error) {
	switch {
	case t.ID == nil:
		return policy.Snapshot{}, false, fmt.Errorf("torrent record has no id")
	case t.HashString == nil:
		return policy.Snapshot{}, false, fmt.Errorf("torrent %d has no hash", *t.ID)
	case t.Name == nil:
		return policy.Snapshot{}, false, fmt.Errorf("torrent %d has no name", *t.ID)
	case t.Status == nil:
		return policy.Snapshot{}, false, fmt.Errorf("torrent %d has no status", *t.ID)
	case t.Error == nil:
		return policy.Snapshot{}, false, fmt.Errorf("torrent %d has no error field", *t.ID)
	case t.UploadRatio == nil:
		return policy.Snapshot{}, false, fmt.Errorf("torrent %d has no upload ratio", *t.ID)
	case t.TotalSize == nil:
		return policy.Snapshot{}, false, fmt.Errorf("torrent %d has no total size", *t.ID)
	}
	if *t.Status != transmissionrpc.TorrentStatusSeed {
		return policy.Snapshot{}, false, nil
	}
	// A torrent in a tracker-error or local-error state is never a
	// deletion candidate: its reported state cannot be trusted.
	if *t.Error != 0 {
		errString := ""
		if t.ErrorString != nil {
			errString = *t.ErrorString
		}
		log.Debug().Int64("torrent", *t.ID).Str("torrent_error", errString).Msg("torrent reports an error, leaving it alone")
		return policy.Snapshot{}, false, nil
	}

	snap := policy.Snapshot{
		ID:        *t.ID,
		Hash:      *t.HashString,
		Name:      *t.Name,
		FileCount: len(t.Files),
		Ratio:     *t.UploadRatio,
		TotalSize: int64(t.TotalSize.Byte()),
	}
	// Transmission reports a zero done date for torrents it never
	// finished downloading; their seeding time is unknowable.
	if t.DoneDate != nil && t.DoneDate.Unix() > 0 {
		snap.SeedingKnown = true
		if seeding := now.Sub(*t.DoneDate); seeding > 0 {
			snap.Seeding = seeding
		}
	}
	for _, tr := range t.Trackers {
		if host := trackerHost(tr.Announce); host != "" {
			snap.Trackers = append(snap.Trackers, host)
		}
	}
	return snap, true, nil
}

func trackerHost(announce string) string {
	u, err := url.Parse(announce)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
