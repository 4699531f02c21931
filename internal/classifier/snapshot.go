package classifier

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
)

// snapshotVersion is bumped whenever the snapshot layout changes.
const snapshotVersion = 1

// SnapshotLevel is the zstd level used for snapshots.
const SnapshotLevel = 12

type snapshot struct {
	Version     int             `json:"version"`
	MaxRecorded int             `json:"maxRecorded"`
	Entries     []snapshotEntry `json:"entries"`
}

type snapshotEntry struct {
	Key  string  `json:"key"`
	SDRs [][]int `json:"sdrs"`
}

// Save writes a zstd-compressed snapshot of the classifier to w.
func (c *Classifier) Save(w io.Writer) error {
	snap := snapshot{
		Version:     snapshotVersion,
		MaxRecorded: c.maxRecorded,
		Entries:     make([]snapshotEntry, 0, len(c.keys)),
	}
	for _, key := range c.keys {
		snap.Entries = append(snap.Entries, snapshotEntry{Key: key, SDRs: c.sdrs[key]})
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(SnapshotLevel)))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if err := json.NewEncoder(enc).Encode(snap); err != nil {
		enc.Close()
		return fmt.Errorf("failed to encode classifier snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to flush classifier snapshot: %w", err)
	}
	return nil
}

// Load reads a snapshot written by Save.
func Load(r io.Reader) (*Classifier, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer dec.Close()

	var snap snapshot
	if err := json.NewDecoder(dec).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode classifier snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported classifier snapshot version %d", snap.Version)
	}

	c := New(WithMaxRecorded(snap.MaxRecorded))
	for _, e := range snap.Entries {
		if _, dup := c.sdrs[e.Key]; dup {
			continue
		}
		c.keys = append(c.keys, e.Key)
		c.sdrs[e.Key] = e.SDRs
	}
	return c, nil
}

// SaveFile writes a snapshot to path.
func (c *Classifier) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	if err := c.Save(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot file: %w", err)
	}

	log.Info().
		Str("path", path).
		Int("keys", c.Len()).
		Msg("Classifier snapshot saved")
	return nil
}

// LoadFile reads a snapshot from path.
func LoadFile(path string) (*Classifier, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer f.Close()
	return Load(f)
}
