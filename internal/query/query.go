// internal/query/query.go
package query

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"automlsa/internal/fasta"
	"automlsa/internal/fingerprint"
	"automlsa/internal/runctx"
)

// Query is one extracted query sequence: a sanitized identifier, its
// content fingerprint, and where it came from.
type Query struct {
	SafeID     string
	Digest     string
	SourceFile string
	Ordinal    int // 1-based record index within SourceFile
	Path       string
}

// ID is the artifact identifier used for expected-set tracking: safe-id
// plus digest, so content drift shows up as remove+add.
func (q Query) ID() string { return q.SafeID + "_" + q.Digest }

// SanitizeID turns a record header ID into a filesystem-safe identifier:
// spaces become underscores and everything outside [alnum . _ -] drops.
func SanitizeID(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	var b strings.Builder
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' ||
			r == '.' || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ContentConflictError: identical sequence content under two different
// identifiers. Both sources are named so the operator can fix the input.
type ContentConflictError struct {
	FileA string
	IDA   string
	OrdA  int
	FileB string
	IDB   string
	OrdB  int
}

func (e *ContentConflictError) Error() string {
	if e.FileA == e.FileB {
		return fmt.Sprintf("same sequence found twice in %s under different IDs: %q (sequence %d) and %q (sequence %d)",
			filepath.Base(e.FileA), e.IDA, e.OrdA, e.IDB, e.OrdB)
	}
	return fmt.Sprintf("same sequence found in two query inputs with different IDs: %s sequence %d (%q) and %s sequence %d (%q)",
		filepath.Base(e.FileA), e.OrdA, e.IDA, filepath.Base(e.FileB), e.OrdB, e.IDB)
}

// NameConflictError: the same safe-id with different sequence content,
// without --dups.
type NameConflictError struct {
	SafeID string
	FileA  string
	OrdA   int
	FileB  string
	OrdB   int
}

func (e *NameConflictError) Error() string {
	if e.FileA == e.FileB {
		return fmt.Sprintf("same query name %q found twice in %s: sequences %d and %d; remove or rename one, or pass --dups to keep both",
			e.SafeID, filepath.Base(e.FileA), e.OrdA, e.OrdB)
	}
	return fmt.Sprintf("same query name %q found in two query inputs: %s sequence %d and %s sequence %d; remove or rename one, or pass --dups to keep both",
		e.SafeID, filepath.Base(e.FileA), e.OrdA, filepath.Base(e.FileB), e.OrdB)
}

// MissingFileError: a previously registered query file vanished and no
// backup copy exists either.
type MissingFileError struct {
	Path string
}

func (e *MissingFileError) Error() string {
	return fmt.Sprintf("query file %s has been removed and no backup exists; replace the file or start a new analysis", e.Path)
}

type seenEntry struct {
	file     string
	ordinal  int
	unsafeID string
}

// Extract reads every record of every query file, validates identifier
// and content uniqueness, and writes one FASTA per query under queries/.
// Validation runs over all inputs before anything is written, so a
// conflict leaves no partial output behind. Each surviving source file
// is copied into the backup directory afterwards.
func Extract(env *runctx.Env, files []string, dups bool) ([]Query, error) {
	var queries []Query
	seenID := map[string]seenEntry{}
	seenHash := map[string]string{}  // digest -> safe-id
	perFile := map[string]string{}   // resolved source per original path
	pending := map[string][]byte{}   // output path -> residues, written after validation

	for _, qf := range files {
		resolved, err := resolveSource(env, qf)
		if err != nil {
			return nil, err
		}
		perFile[qf] = resolved

		ord := 0
		err = fasta.ScanFile(resolved, func(rec fasta.Record) error {
			ord++
			safeID := SanitizeID(rec.ID)
			digest := fingerprint.Digest(rec.Seq)

			if prior, ok := seenHash[digest]; ok {
				if prior == safeID {
					// Same safe-id, same content: a harmless repeat.
					return nil
				}
				p := seenID[prior]
				return &ContentConflictError{
					FileA: p.file, IDA: p.unsafeID, OrdA: p.ordinal,
					FileB: resolved, IDB: rec.ID, OrdB: ord,
				}
			}
			seenHash[digest] = safeID

			if p, ok := seenID[safeID]; ok {
				if !dups {
					return &NameConflictError{
						SafeID: safeID,
						FileA:  p.file, OrdA: p.ordinal,
						FileB: resolved, OrdB: ord,
					}
				}
				env.Log.Info("keeping additional query with duplicate ID",
					"id", safeID, "file", filepath.Base(resolved))
			}
			seenID[safeID] = seenEntry{file: resolved, ordinal: ord, unsafeID: rec.ID}

			outPath := filepath.Join(env.Layout.QueryDir(), safeID+"_"+digest+".fas")
			pending[outPath] = rec.Seq
			queries = append(queries, Query{
				SafeID:     safeID,
				Digest:     digest,
				SourceFile: resolved,
				Ordinal:    ord,
				Path:       outPath,
			})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(env.Layout.QueryDir(), 0o755); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	written := map[string]struct{}{}
	for _, q := range queries {
		if _, dup := written[q.Path]; dup {
			continue
		}
		written[q.Path] = struct{}{}
		if _, err := os.Stat(q.Path); err == nil {
			continue
		}
		env.Log.Debug("writing query fasta",
			"file", filepath.Base(q.Path), "seq", q.Ordinal, "source", filepath.Base(q.SourceFile))
		if err := writeQueryFasta(q.Path, q.SafeID, pending[q.Path]); err != nil {
			return nil, err
		}
	}

	for _, qf := range files {
		if err := backup(env, perFile[qf]); err != nil {
			return nil, err
		}
	}
	return queries, nil
}

// resolveSource substitutes the backup copy for a vanished query file.
// This is the only automatic recovery path in the pipeline.
func resolveSource(env *runctx.Env, path string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	bak := filepath.Join(env.Layout.BackupDir(), filepath.Base(path))
	if _, err := os.Stat(bak); err == nil {
		env.Log.Warn("using query backup file, original is missing", "file", path)
		return bak, nil
	}
	return "", &MissingFileError{Path: path}
}

func writeQueryFasta(path, safeID string, seq []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	_, werr := fmt.Fprintf(f, ">%s\n%s\n", safeID, seq)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(path)
		return fmt.Errorf("query: write %s: %w", path, werr)
	}
	return nil
}

func backup(env *runctx.Env, src string) error {
	dst := filepath.Join(env.Layout.BackupDir(), filepath.Base(src))
	if src == dst {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("query: backup %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("query: backup %s: %w", src, err)
	}
	_, cerr := io.Copy(out, in)
	if err := out.Close(); cerr == nil {
		cerr = err
	}
	if cerr != nil {
		return fmt.Errorf("query: backup %s: %w", src, cerr)
	}
	return nil
}

// IDs returns the expected-set identifiers for the extracted queries.
func IDs(qs []Query) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.ID()
	}
	return out
}
