package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/vmihailenco/msgpack/v5"
)

// snapshotVersion guards the binary layout. Bump on incompatible Model
// changes; decoding an older snapshot fails rather than misreading it.
const snapshotVersion = 1

type snapshot struct {
	Version int    `msgpack:"version"`
	Model   *Model `msgpack:"model"`
}

// EncodeSnapshot serializes a Model into the binary snapshot form used
// by `fabrica inspect --snapshot` and `generate --from-snapshot`.
// Encoding is deterministic for a given Model.
func EncodeSnapshot(m *Model) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("schema: nil model")
	}
	return msgpack.Marshal(snapshot{Version: snapshotVersion, Model: m})
}

// DecodeSnapshot parses a binary snapshot back into a Model.
func DecodeSnapshot(data []byte) (*Model, error) {
	var s snapshot
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("schema: decoding snapshot: %w", err)
	}
	if s.Version != snapshotVersion {
		return nil, fmt.Errorf("schema: snapshot version %d not supported (want %d)", s.Version, snapshotVersion)
	}
	if s.Model == nil {
		return nil, fmt.Errorf("schema: snapshot has no model")
	}
	return s.Model, nil
}

// WriteSnapshot encodes the Model to w.
func WriteSnapshot(w io.Writer, m *Model) error {
	data, err := EncodeSnapshot(m)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// ReadSnapshot decodes a Model from r.
func ReadSnapshot(r io.Reader) (*Model, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("schema: reading snapshot: %w", err)
	}
	return DecodeSnapshot(data)
}

// LoadSnapshotFile reads and decodes a snapshot from disk.
func LoadSnapshotFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("schema: opening snapshot: %w", err)
	}
	defer f.Close()
	return ReadSnapshot(f)
}

// Fingerprint returns a stable hex digest of the Model's snapshot
// encoding. Two runs over the same database snapshot produce the same
// fingerprint, which the contract document reports as modelHash.
func Fingerprint(m *Model) (string, error) {
	data, err := EncodeSnapshot(m)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
