// internal/fingerprint/fingerprint.go
package fingerprint

import (
	"encoding/hex"
	"fmt"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/blake2b"

	"automlsa/internal/fasta"
	"automlsa/internal/state"
)

// DigestSize is 16 bytes (128 bits): collision resistance over sequence
// content is the requirement, not secrecy.
const DigestSize = 16

// Digest returns the hex BLAKE2b-128 digest of raw residue bytes. The
// caller supplies residues only; headers and whitespace never reach the
// hash.
func Digest(seq []byte) string {
	h, err := blake2b.New(DigestSize, nil)
	if err != nil {
		panic(err) // keyless blake2b cannot fail
	}
	_, _ = h.Write(seq)
	return hex.EncodeToString(h.Sum(nil))
}

// HasDrifted reports content drift between a stored and a recomputed
// digest. An empty stored digest means the input was never seen, which
// is not drift.
func HasDrifted(stored, recomputed string) bool {
	return stored != "" && stored != recomputed
}

// Entry is the persisted record for one genome base name in rename.json.
type Entry struct {
	Index  int    `json:"index"`
	Digest string `json:"digest,omitempty"`
	RecID  string `json:"recid,omitempty"`
}

type fileKey struct {
	path  string
	size  int64
	mtime int64
}

// Store persists per-genome fingerprints and memoizes whole-file digests
// so an unchanged file is hashed at most once per process, however many
// stages consult it.
type Store struct {
	path    string
	entries map[string]Entry
	memo    *lru.Cache[fileKey, string]
}

// OpenStore loads rename.json from path; a missing file yields an empty
// store.
func OpenStore(path string) (*Store, error) {
	memo, err := lru.New[fileKey, string](256)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path, entries: map[string]Entry{}, memo: memo}
	if state.Exists(path) {
		if err := state.ReadJSON(path, &s.entries); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Lookup returns the stored entry for base.
func (s *Store) Lookup(base string) (Entry, bool) {
	e, ok := s.entries[base]
	return e, ok
}

// Put records the entry for base in memory; call Save to persist.
func (s *Store) Put(base string, e Entry) { s.entries[base] = e }

// Save writes the store back to rename.json.
func (s *Store) Save() error { return state.WriteJSON(s.path, s.entries) }

// FileDigest hashes the concatenation of every record's residues in path,
// in file order. Results are memoized by (path, size, mtime).
func (s *Store) FileDigest(path string) (string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	key := fileKey{path: path, size: fi.Size(), mtime: fi.ModTime().UnixNano()}
	if d, ok := s.memo.Get(key); ok {
		return d, nil
	}
	h, err := blake2b.New(DigestSize, nil)
	if err != nil {
		return "", err
	}
	err = fasta.ScanFile(path, func(rec fasta.Record) error {
		_, _ = h.Write(rec.Seq)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("fingerprint: %s: %w", path, err)
	}
	d := hex.EncodeToString(h.Sum(nil))
	s.memo.Add(key, d)
	return d, nil
}
