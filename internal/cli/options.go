// internal/cli/options.go
package cli

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"automlsa/internal/checkpoint"
	"automlsa/internal/version"
)

// Unset sentinels; the config file fills these before defaults apply.
const (
	UnsetFloat = -1.0
	UnsetInt   = -1
)

// Options holds all CLI flags and arguments.
type Options struct {
	RunID string // positional: name of the run directory

	Query []string
	Files []string
	Dirs  []string

	EValue       float64 // BLAST e-value cutoff
	Coverage     int     // query coverage cutoff, percent
	Identity     int     // identity cutoff, percent
	Program      string  // tblastn | blastn
	Threads      int
	AllowMissing int
	MissingCheck bool
	Dups         bool
	Checkpoint   string // stage name to stop at, "" = run to completion
	ConfigPath   string
	Email        string

	Debug   bool
	Quiet   bool
	Version bool
}

// NewFlagSet returns a configured FlagSet with custom usage/help.
func NewFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(),
			`%s: automated multi-locus sequence analysis

Incrementally recomputes a BLAST -> filter -> align -> tree pipeline,
re-running only the stages whose inputs changed since the last run.

Version: %s

Usage: %s [flags] <runid>
`, name, version.Version, name)
		fs.PrintDefaults()
	}
	return fs
}

// ParseArgs registers and parses all flags, returns an Options struct.
func ParseArgs(fs *flag.FlagSet, argv []string) (Options, error) {
	var opt Options
	var help bool

	var query, files, dirs stringSlice
	fs.Var(&query, "query", "FASTA file with query seq(s) (repeatable) [*]")
	fs.Var(&files, "files", "target genome FASTA file (repeatable)")
	fs.Var(&dirs, "dir", "directory of target genome FASTA files (repeatable)")

	fs.Float64Var(&opt.EValue, "evalue", UnsetFloat, "e-value cutoff for BLAST searches [1e-5]")
	fs.Float64Var(&opt.EValue, "e", UnsetFloat, "shorthand for --evalue")
	fs.IntVar(&opt.Coverage, "coverage", UnsetInt, "query coverage cut-off threshold, percent [50]")
	fs.IntVar(&opt.Coverage, "c", UnsetInt, "shorthand for --coverage")
	fs.IntVar(&opt.Identity, "identity", UnsetInt, "identity cut-off threshold, percent [30]")
	fs.IntVar(&opt.Identity, "i", UnsetInt, "shorthand for --identity")
	fs.StringVar(&opt.Program, "program", "", "BLAST program: tblastn | blastn [tblastn]")
	fs.StringVar(&opt.Program, "p", "", "shorthand for --program")
	fs.IntVar(&opt.Threads, "threads", 0, "number of worker threads [1]")
	fs.IntVar(&opt.Threads, "t", 0, "shorthand for --threads")
	fs.IntVar(&opt.AllowMissing, "allow-missing", UnsetInt, "allow N missing genes per genome [0]")
	fs.BoolVar(&opt.MissingCheck, "missing-check", false, "confirm settings when genes are missing [false]")
	fs.BoolVar(&opt.Dups, "dups", false, "allow duplicate query names across inputs [false]")
	fs.StringVar(&opt.Checkpoint, "checkpoint", "", "stage to stop at: "+strings.Join(checkpoint.Order, " | "))
	fs.StringVar(&opt.ConfigPath, "config", "", "configuration JSON file to seed a new run")
	fs.StringVar(&opt.Email, "email", "", "contact email recorded in the run config ($EMAIL)")

	fs.BoolVar(&opt.Debug, "debug", false, "turn on debugging messages [false]")
	fs.BoolVar(&opt.Quiet, "quiet", false, "turn off progress messages [false]")
	fs.BoolVar(&opt.Version, "version", false, "print version and exit [false]")
	fs.BoolVar(&opt.Version, "v", false, "print version and exit (shorthand) [false]")
	fs.BoolVar(&help, "h", false, "show this help message (shorthand) [false]")

	if err := fs.Parse(argv); err != nil {
		return opt, err
	}
	if help {
		fs.Usage()
		return opt, flag.ErrHelp
	}
	if opt.Version {
		return opt, nil
	}
	opt.Query = query
	opt.Files = files
	opt.Dirs = dirs

	switch fs.NArg() {
	case 0:
		return opt, errors.New("a runid argument is required")
	case 1:
		opt.RunID = fs.Arg(0)
	default:
		return opt, fmt.Errorf("unexpected extra arguments: %v", fs.Args()[1:])
	}

	if opt.Checkpoint != "" && !checkpoint.Valid(opt.Checkpoint) {
		return opt, fmt.Errorf("invalid --checkpoint %q (choose from %s)",
			opt.Checkpoint, strings.Join(checkpoint.Order, ", "))
	}
	if opt.Program != "" && opt.Program != "tblastn" && opt.Program != "blastn" {
		return opt, fmt.Errorf("invalid --program %q (tblastn or blastn)", opt.Program)
	}
	if opt.Threads < 0 {
		return opt, errors.New("--threads must be >= 0")
	}
	return opt, nil
}

// stringSlice allows repeatable string flags.
type stringSlice []string

func (s *stringSlice) String() string     { return strings.Join(*s, ",") }
func (s *stringSlice) Set(v string) error { *s = append(*s, v); return nil }
