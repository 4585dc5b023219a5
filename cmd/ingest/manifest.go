package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// ManifestEntry records one ingested input so unchanged files are skipped
// and changed ones reprocess the same source.
type ManifestEntry struct {
	Input       string    `json:"input"`
	SourceID    uuid.UUID `json:"source_id"`
	ContentHash string    `json:"content_hash,omitempty"`
	Citable     bool      `json:"citable"`
	IngestedAt  time.Time `json:"ingested_at"`
}

type Manifest struct {
	Entries map[string]ManifestEntry `json:"entries"` // key: bot|input

	path string
}

func newManifest(path string) *Manifest {
	return &Manifest{Entries: make(map[string]ManifestEntry), path: path}
}

func loadManifest(path string) (*Manifest, error) {
	m := newManifest(path)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	if len(data) == 0 {
		return m, nil
	}

	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if m.Entries == nil {
		m.Entries = make(map[string]ManifestEntry)
	}
	return m, nil
}

func (m *Manifest) Save() error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

func contentHash(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
