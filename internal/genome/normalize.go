// internal/genome/normalize.go
package genome

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"automlsa/internal/dispatch"
	"automlsa/internal/fasta"
	"automlsa/internal/fingerprint"
	"automlsa/internal/invalidate"
	"automlsa/internal/labels"
	"automlsa/internal/runctx"
)

// Genome is one normalized input: a stable integer label, the unique
// base name, and the content fingerprint of its concatenated records.
type Genome struct {
	Base       string
	SourcePath string
	NormPath   string
	Label      int
	Digest     string
}

// ErrNoGenomes means no valid FASTA input survived collection; a
// configuration error, never retried.
var ErrNoGenomes = errors.New("no valid genome FASTA inputs found")

// DuplicateBaseError reports the same genome base name arriving from two
// locations. Base names are the system-wide unique key, so this is fatal.
type DuplicateBaseError struct {
	Base, First, Second string
}

func (e *DuplicateBaseError) Error() string {
	return fmt.Sprintf("same genome name %q found in two locations:\n  %s\n  %s\nremove or rename one of these to continue",
		e.Base, e.First, e.Second)
}

// Collect gathers genome FASTA paths from explicit files and directory
// scans. A vanished directory falls back to the already normalized
// copies under fasta/ when those exist.
func Collect(env *runctx.Env, files, dirs []string) ([]string, error) {
	var out []string
	for _, dir := range dirs {
		if _, err := os.Stat(dir); err != nil {
			if fi, err2 := os.Stat(env.Layout.FastaDir()); err2 == nil && fi.IsDir() {
				env.Log.Warn("original genome directory does not exist", "dir", dir)
				env.Log.Warn("attempting to run from already renamed FASTA files")
				dir = env.Layout.FastaDir()
			} else {
				return nil, fmt.Errorf("genome directory %s does not exist", dir)
			}
		}
		ents, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("genome: scan %s: %w", dir, err)
		}
		for _, e := range ents {
			if e.IsDir() {
				continue
			}
			p := filepath.Join(dir, e.Name())
			if fasta.IsFasta(p) {
				abs, err := filepath.Abs(p)
				if err != nil {
					return nil, err
				}
				out = append(out, abs)
			}
		}
	}
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, err
		}
		out = append(out, abs)
	}
	// Drop duplicates while keeping first-seen order.
	seen := make(map[string]struct{}, len(out))
	uniq := out[:0]
	for _, p := range out {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		uniq = append(uniq, p)
	}
	return uniq, nil
}

// Run normalizes genome inputs: stable labels, rewritten FASTA copies
// under fasta/ with label headers, fingerprints, drift handling, BLAST
// databases, and the expected-genome set comparison.
func Run(
	ctx context.Context,
	env *runctx.Env,
	inv *invalidate.Engine,
	files, dirs []string,
	makeblastdb string,
) ([]Genome, error) {
	paths, err := Collect(env, files, dirs)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, ErrNoGenomes
	}

	bases := make([]string, len(paths))
	byBase := make(map[string]string, len(paths))
	for i, p := range paths {
		base := filepath.Base(p)
		if first, dup := byBase[base]; dup && first != p {
			return nil, &DuplicateBaseError{Base: base, First: first, Second: p}
		}
		byBase[base] = p
		bases[i] = base
	}

	reg, err := labels.Load(env.Layout.LabelsFile())
	if err != nil {
		return nil, err
	}
	if _, err := reg.Assign(bases); err != nil {
		return nil, err
	}

	fps, err := fingerprint.OpenStore(env.Layout.RenameFile())
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(env.Layout.FastaDir(), 0o755); err != nil {
		return nil, fmt.Errorf("genome: %w", err)
	}

	genomes := make([]Genome, 0, len(paths))
	for _, p := range paths {
		base := filepath.Base(p)
		label, _ := reg.Label(base)
		normPath := filepath.Join(env.Layout.FastaDir(), base)

		digest, err := fps.FileDigest(p)
		if err != nil {
			return nil, err
		}
		stored, known := fps.Lookup(base)
		if known && fingerprint.HasDrifted(stored.Digest, digest) {
			// Same name, different content: pure set-difference cannot see
			// this. Drop the rewritten copy, its databases, and every search
			// table referencing it, then purge downstream caches. The label
			// is untouched.
			env.Log.Info("genome content changed, recomputing its artifacts", "genome", base)
			if err := removeNormalized(env, base, normPath); err != nil {
				return nil, err
			}
			if err := inv.Invalidate(invalidate.TagGenome); err != nil {
				return nil, err
			}
		}

		recid := stored.RecID
		if !exists(normPath) {
			env.Log.Debug("writing renamed fasta", "genome", base)
			recid, err = writeNormalized(p, normPath, label)
			if err != nil {
				return nil, err
			}
		}
		fps.Put(base, fingerprint.Entry{Index: label, Digest: digest, RecID: recid})
		genomes = append(genomes, Genome{
			Base: base, SourcePath: p, NormPath: normPath, Label: label, Digest: digest,
		})
	}
	if err := fps.Save(); err != nil {
		return nil, err
	}

	if err := ensureDatabases(ctx, env, genomes, makeblastdb); err != nil {
		return nil, err
	}
	return genomes, nil
}

// removeNormalized deletes the rewritten copy, BLAST database companions,
// and every blast/<query>_vs_<base>.tab search table for one genome.
func removeNormalized(env *runctx.Env, base, normPath string) error {
	targets := []string{normPath}
	for _, s := range fasta.DBSuffixes() {
		targets = append(targets, normPath+s)
	}
	tabs, err := filepath.Glob(filepath.Join(env.Layout.BlastDir(), "*_vs_"+base+".tab"))
	if err != nil {
		return fmt.Errorf("genome: %w", err)
	}
	targets = append(targets, tabs...)
	for _, t := range targets {
		if err := os.Remove(t); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("genome: remove %s: %w", t, err)
		}
	}
	return nil
}

// writeNormalized rewrites src with `>(label) (original id)` headers so
// downstream tools see the stable label, and returns the first record ID.
func writeNormalized(src, dst string, label int) (string, error) {
	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("genome: %w", err)
	}
	recid := ""
	err = fasta.ScanFile(src, func(rec fasta.Record) error {
		if recid == "" {
			recid = rec.ID
		}
		if _, err := fmt.Fprintf(out, ">%d %s\n%s\n", label, rec.ID, rec.Seq); err != nil {
			return err
		}
		return nil
	})
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
		return "", fmt.Errorf("genome: rewrite %s: %w", src, err)
	}
	return recid, nil
}

// ensureDatabases runs makeblastdb for every normalized genome missing
// any database companion file. One worker: database builds are quick and
// only the search stage fans out.
func ensureDatabases(ctx context.Context, env *runctx.Env, genomes []Genome, makeblastdb string) error {
	var jobs []dispatch.Job
	for _, g := range genomes {
		if hasAllDBFiles(g.NormPath) {
			continue
		}
		jobs = append(jobs, dispatch.Job{
			Name:    "makeblastdb:" + g.Base,
			Argv:    []string{makeblastdb, "-dbtype", "nucl", "-in", g.NormPath},
			LogPath: env.Layout.MakeBlastDBLog(),
		})
	}
	if len(jobs) == 0 {
		return nil
	}
	env.Log.Info("building BLAST databases", "count", len(jobs))
	results := dispatch.RunAll(ctx, env.Log, jobs, 1)
	for _, res := range results {
		base := strings.TrimPrefix(res.Job.Name, "makeblastdb:")
		if !hasAllDBFiles(filepath.Join(env.Layout.FastaDir(), base)) {
			return &dispatch.MissingOutputError{
				Stage:  "normalize-genomes",
				Path:   filepath.Join(env.Layout.FastaDir(), base) + ".nin",
				LogDir: env.Layout.MakeBlastDBLog(),
			}
		}
	}
	return nil
}

func hasAllDBFiles(normPath string) bool {
	for _, s := range fasta.DBSuffixes() {
		if !exists(normPath + s) {
			return false
		}
	}
	return true
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
