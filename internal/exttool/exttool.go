// internal/exttool/exttool.go
package exttool

import (
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
)

// Tools holds resolved paths to the external programs the pipeline
// shells out to. The engine treats them as pure functions from input
// files to output files.
type Tools struct {
	MakeBlastDB string
	TBLASTN     string
	BLASTN      string
	MAFFT       string
	IQTree      string
}

// NotFoundError is the missing-dependency condition: a required
// executable is neither on PATH nor under the configured override.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("required executable %q not found; add it to $PATH or set BLASTPATH/MAFFT/IQTREE", e.Name)
}

// LookPathFunc matches exec.LookPath; injectable for tests.
type LookPathFunc func(name string) (string, error)

// Discover resolves every required tool. getenv supplies overrides:
// BLASTPATH (directory holding the BLAST+ binaries), MAFFT and IQTREE
// (full executable names/paths).
func Discover(log *slog.Logger, getenv func(string) string, lookPath LookPathFunc) (Tools, error) {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	blastDir := getenv("BLASTPATH")
	find := func(name string) (string, error) {
		if blastDir != "" {
			if p, err := lookPath(filepath.Join(blastDir, name)); err == nil {
				return p, nil
			}
		}
		p, err := lookPath(name)
		if err != nil {
			return "", &NotFoundError{Name: name}
		}
		return p, nil
	}

	var t Tools
	var err error
	if t.MakeBlastDB, err = find("makeblastdb"); err != nil {
		return t, err
	}
	if t.TBLASTN, err = find("tblastn"); err != nil {
		return t, err
	}
	if t.BLASTN, err = find("blastn"); err != nil {
		return t, err
	}
	mafft := getenv("MAFFT")
	if mafft == "" {
		mafft = "mafft-linsi"
	}
	if t.MAFFT, err = lookPath(mafft); err != nil {
		return t, &NotFoundError{Name: mafft}
	}
	iqtree := getenv("IQTREE")
	if iqtree == "" {
		iqtree = "iqtree2"
	}
	if t.IQTree, err = lookPath(iqtree); err != nil {
		return t, &NotFoundError{Name: iqtree}
	}

	log.Debug("external tools resolved",
		"makeblastdb", t.MakeBlastDB, "tblastn", t.TBLASTN, "blastn", t.BLASTN,
		"mafft", t.MAFFT, "iqtree", t.IQTree)
	return t, nil
}

// Search returns the BLAST search executable for the configured program.
func (t Tools) Search(program string) string {
	if program == "blastn" {
		return t.BLASTN
	}
	return t.TBLASTN
}
