// internal/fasta/reader.go
package fasta

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
)

// Record is one FASTA entry. Seq holds raw residues with all whitespace
// stripped; header case and residue case are preserved as found.
type Record struct {
	ID   string // first whitespace-separated field of the header
	Desc string // remainder of the header, may be empty
	Seq  []byte
}

// ScanFile streams every record of path (plain or .gz) through emit.
// Emit errors abort the scan and are returned as-is.
func ScanFile(path string, emit func(Record) error) error {
	rc, err := openReader(path)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()
	return Scan(rc, emit)
}

// Scan parses FASTA from r, emitting complete records.
func Scan(r io.Reader, emit func(Record) error) error {
	br := bufio.NewReader(r)
	var (
		cur  Record
		open bool
	)
	flush := func() error {
		if !open {
			return nil
		}
		return emit(cur)
	}
	for {
		line, err := br.ReadBytes('\n')
		eof := err == io.EOF
		if err != nil && !eof {
			return fmt.Errorf("fasta: read: %w", err)
		}
		line = bytes.TrimRight(line, "\r\n")
		if len(line) > 0 {
			if line[0] == '>' {
				if err := flush(); err != nil {
					return err
				}
				id, desc, _ := strings.Cut(strings.TrimSpace(string(line[1:])), " ")
				cur = Record{ID: id, Desc: strings.TrimSpace(desc)}
				open = true
			} else if open {
				for _, f := range bytes.Fields(line) {
					cur.Seq = append(cur.Seq, f...)
				}
			}
		}
		if eof {
			break
		}
	}
	return flush()
}

// dbSuffixes are BLAST database companion files that sit next to
// normalized genomes and must never be mistaken for sequence input.
var dbSuffixes = []string{".nsq", ".nin", ".nhr", ".nto", ".not", ".ndb", ".ntf"}

// DBSuffixes returns the BLAST database companion suffixes.
func DBSuffixes() []string { return dbSuffixes }

// IsFasta reports whether path looks like FASTA: not a BLAST db companion
// and first byte '>'.
func IsFasta(path string) bool {
	for _, s := range dbSuffixes {
		if strings.HasSuffix(path, s) {
			return false
		}
	}
	rc, err := openReader(path)
	if err != nil {
		return false
	}
	defer func() { _ = rc.Close() }()
	br := bufio.NewReader(rc)
	b, err := br.ReadByte()
	return err == nil && b == '>'
}

func openReader(path string) (io.ReadCloser, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, ".gz") {
		gr, err := gzip.NewReader(fh)
		if err != nil {
			_ = fh.Close()
			return nil, err
		}
		return struct {
			io.Reader
			io.Closer
		}{Reader: gr, Closer: fh}, nil
	}
	return fh, nil
}
