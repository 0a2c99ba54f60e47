// internal/state/layout.go
package state

import (
	"fmt"
	"os"
	"path/filepath"
)

// DirName is the hidden state directory inside every run directory.
const DirName = ".automlsa"

// Layout resolves every persisted path of one run. All state the engine
// owns lives under Root; no other directory is ever touched.
type Layout struct {
	Root  string // absolute run directory
	RunID string
}

func NewLayout(root, runID string) Layout {
	return Layout{Root: root, RunID: runID}
}

func (l Layout) StateDir() string      { return filepath.Join(l.Root, DirName) }
func (l Layout) CheckpointDir() string { return filepath.Join(l.StateDir(), "checkpoint") }
func (l Layout) UpdatedDir() string    { return filepath.Join(l.StateDir(), "updated") }
func (l Layout) BackupDir() string     { return filepath.Join(l.StateDir(), "backups") }

func (l Layout) LabelsFile() string          { return filepath.Join(l.StateDir(), "labels.json") }
func (l Layout) RenameFile() string          { return filepath.Join(l.StateDir(), "rename.json") }
func (l Layout) ExpectedGenomesFile() string { return filepath.Join(l.StateDir(), "expected_genomes.json") }
func (l Layout) ExpectedQueriesFile() string { return filepath.Join(l.StateDir(), "expected_queries.json") }
func (l Layout) ExpectedFiltFile() string    { return filepath.Join(l.StateDir(), "expected_filt.json") }
func (l Layout) BlastResultsFile() string    { return filepath.Join(l.StateDir(), "blast_results.tsv") }
func (l Layout) BlastFilteredFile() string   { return filepath.Join(l.StateDir(), "blast_filtered.tsv") }
func (l Layout) KeepsIdxFile() string        { return filepath.Join(l.StateDir(), "keepsidx.json") }
func (l Layout) SingleCopyFile() string      { return filepath.Join(l.StateDir(), "single_copy.json") }

func (l Layout) FastaDir() string     { return filepath.Join(l.Root, "fasta") }
func (l Layout) QueryDir() string     { return filepath.Join(l.Root, "queries") }
func (l Layout) BlastDir() string     { return filepath.Join(l.Root, "blast") }
func (l Layout) UnalignedDir() string { return filepath.Join(l.Root, "unaligned") }
func (l Layout) AlignedDir() string   { return filepath.Join(l.Root, "aligned") }
func (l Layout) LogsDir() string      { return filepath.Join(l.Root, "logs") }

func (l Layout) ConfigFile() string       { return filepath.Join(l.Root, "config.json") }
func (l Layout) RunLogFile() string       { return filepath.Join(l.Root, l.RunID+".log") }
func (l Layout) BlastCmdsFile() string    { return filepath.Join(l.Root, "blastcmds.txt") }
func (l Layout) PresenceMatrix() string   { return filepath.Join(l.Root, "presence_matrix.tsv") }
func (l Layout) SummaryFile() string      { return filepath.Join(l.Root, "blast_summary.json") }
func (l Layout) MissingCounts() string    { return filepath.Join(l.Root, "missing_counts.json") }
func (l Layout) MissingByGenome() string  { return filepath.Join(l.Root, "missing_by_genome.json") }
func (l Layout) MakeBlastDBLog() string   { return filepath.Join(l.FastaDir(), "makeblastdb.log") }

// TreePrefix is the iqtree --prefix; tree artifacts derive from it.
func (l Layout) TreePrefix() string    { return filepath.Join(l.Root, l.RunID) }
func (l Layout) ConcatFile() string    { return l.TreePrefix() + "_concat.fas" }
func (l Layout) PartitionFile() string { return l.TreePrefix() + ".nex" }
func (l Layout) TreeFile() string      { return l.TreePrefix() + ".treefile" }

// TreeArtifacts lists every file iqtree derives from TreePrefix, plus the
// concatenation and partition inputs. These are the query-scoped caches.
func (l Layout) TreeArtifacts() []string {
	p := l.TreePrefix()
	return []string{
		l.ConcatFile(),
		l.PartitionFile(),
		p + ".treefile",
		p + ".contree",
		p + ".iqtree",
		p + ".splits.nex",
		p + ".ckp.gz",
		p + ".bionj",
		p + ".mldist",
	}
}

// Ensure creates the run directory skeleton. Idempotent.
func (l Layout) Ensure() error {
	dirs := []string{
		l.Root,
		l.StateDir(),
		l.CheckpointDir(),
		l.UpdatedDir(),
		l.BackupDir(),
		l.LogsDir(),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("state: create %s: %w", d, err)
		}
	}
	return nil
}

// ResolveRunDir finds or creates the run directory for runid: a sibling
// directory ../runid wins over ./runid, matching how runs are usually laid
// out next to the invocation directory.
func ResolveRunDir(runid string) (string, error) {
	if fi, err := os.Stat(filepath.Join("..", runid)); err == nil && fi.IsDir() {
		return filepath.Abs(filepath.Join("..", runid))
	}
	abs, err := filepath.Abs(runid)
	if err != nil {
		return "", err
	}
	return abs, nil
}
