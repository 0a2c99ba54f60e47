// internal/blasttab/blasttab.go
package blasttab

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"automlsa/internal/state"
)

// Row is one hit from a tabular (outfmt 7) BLAST result. qseqid carries
// the query safe-id and sseqid the stable integer genome label, because
// that is what the normalized inputs put in the headers.
type Row struct {
	QSeqID   string
	SSeqID   string // genome label as written by the normalizer
	SAccVer  string
	PIdent   float64
	QLen     int
	Length   int
	Bitscore float64
	QCovHSP  int
	STitle   string
	SSeq     string
}

// OutFmt is the -outfmt argument matching Row, column for column.
const OutFmt = "7 qseqid sseqid saccver pident qlen length bitscore qcovhsp stitle sseq"

var columns = []string{
	"qseqid", "sseqid", "saccver", "pident", "qlen",
	"length", "bitscore", "qcovhsp", "stitle", "sseq",
}

// ParseFile reads one outfmt-7 table; comment lines are skipped. An
// empty table (header comments only) yields zero rows and no error.
func ParseFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("blasttab: %w", err)
	}
	defer func() { _ = f.Close() }()

	var rows []Row
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024) // sseq columns can be long
	ln := 0
	for sc.Scan() {
		ln++
		line := sc.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		row, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("blasttab: %s:%d: %w", path, ln, err)
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("blasttab: %s: %w", path, err)
	}
	return rows, nil
}

func parseLine(line string) (Row, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != len(columns) {
		return Row{}, fmt.Errorf("expected %d columns, got %d", len(columns), len(fields))
	}
	var (
		r   Row
		err error
	)
	r.QSeqID, r.SSeqID, r.SAccVer = fields[0], fields[1], fields[2]
	if r.PIdent, err = strconv.ParseFloat(fields[3], 64); err != nil {
		return Row{}, fmt.Errorf("pident: %w", err)
	}
	if r.QLen, err = strconv.Atoi(fields[4]); err != nil {
		return Row{}, fmt.Errorf("qlen: %w", err)
	}
	if r.Length, err = strconv.Atoi(fields[5]); err != nil {
		return Row{}, fmt.Errorf("length: %w", err)
	}
	if r.Bitscore, err = strconv.ParseFloat(fields[6], 64); err != nil {
		return Row{}, fmt.Errorf("bitscore: %w", err)
	}
	if r.QCovHSP, err = strconv.Atoi(fields[7]); err != nil {
		return Row{}, fmt.Errorf("qcovhsp: %w", err)
	}
	r.STitle, r.SSeq = fields[8], fields[9]
	return r, nil
}

// Load returns the merged, threshold-filtered hit rows for tabFiles.
// The merge is cached in cachePath; when the cache exists it is the
// source of truth until genome-tag invalidation removes it.
func Load(log *slog.Logger, cachePath string, tabFiles []string, identity, coverage int) ([]Row, error) {
	if state.Exists(cachePath) {
		log.Debug("reading from existing BLAST results cache", "file", cachePath)
		return ReadTSV(cachePath)
	}
	log.Info("reading BLAST results", "tables", len(tabFiles))
	var merged []Row
	for _, tf := range tabFiles {
		rows, err := ParseFile(tf)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			if r.PIdent >= float64(identity) && r.QCovHSP >= coverage {
				merged = append(merged, r)
			}
		}
	}
	if err := WriteTSV(cachePath, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// WriteTSV persists rows with a header line.
func WriteTSV(path string, rows []Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("blasttab: %w", err)
	}
	w := bufio.NewWriter(f)
	_, werr := fmt.Fprintln(w, strings.Join(columns, "\t"))
	for _, r := range rows {
		if werr != nil {
			break
		}
		_, werr = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%d\t%s\t%s\n",
			r.QSeqID, r.SSeqID, r.SAccVer,
			strconv.FormatFloat(r.PIdent, 'f', -1, 64),
			r.QLen, r.Length,
			strconv.FormatFloat(r.Bitscore, 'f', -1, 64),
			r.QCovHSP, r.STitle, r.SSeq)
	}
	if err := w.Flush(); werr == nil {
		werr = err
	}
	if err := f.Close(); werr == nil {
		werr = err
	}
	if werr != nil {
		return fmt.Errorf("blasttab: write %s: %w", path, werr)
	}
	return nil
}

// ReadTSV loads rows persisted by WriteTSV.
func ReadTSV(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("blasttab: %w", err)
	}
	defer func() { _ = f.Close() }()

	var rows []Row
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	first := true
	ln := 0
	for sc.Scan() {
		ln++
		line := sc.Text()
		if first {
			first = false
			continue // header
		}
		if line == "" {
			continue
		}
		row, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("blasttab: %s:%d: %w", path, ln, err)
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("blasttab: %s: %w", path, err)
	}
	return rows, nil
}
