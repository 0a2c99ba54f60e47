// internal/config/config.go
package config

import (
	"fmt"
	"os"

	"automlsa/internal/cli"
	"automlsa/internal/state"
)

// Config is the persisted per-run configuration (config.json in the run
// directory). It is rewritten every run after flags are reconciled, so
// later invocations can omit repeated flags.
type Config struct {
	Query        []string `json:"query,omitempty"`
	Files        []string `json:"files,omitempty"`
	Dir          []string `json:"dir,omitempty"`
	EValue       *float64 `json:"evalue,omitempty"`
	Coverage     *int     `json:"coverage,omitempty"`
	Identity     *int     `json:"identity,omitempty"`
	Program      string   `json:"program,omitempty"`
	Threads      *int     `json:"threads,omitempty"`
	AllowMissing *int     `json:"allow_missing,omitempty"`
	Dups         bool     `json:"dups,omitempty"`
	Email        string   `json:"email,omitempty"`
}

// Read loads a config file.
func Read(path string) (Config, error) {
	var c Config
	if err := state.ReadJSON(path, &c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Write persists c.
func Write(path string, c Config) error { return state.WriteJSON(path, c) }

// A bad configuration value is fatal and never retried.
type ValueError struct {
	Field  string
	Detail string
}

func (e *ValueError) Error() string { return fmt.Sprintf("config: %s: %s", e.Field, e.Detail) }

// Reconcile merges the stored config into unset flags, then applies
// defaults and validates ranges. Config file lists are prepended to the
// flag lists, matching how repeated runs accumulate inputs.
func Reconcile(opt *cli.Options, c Config) error {
	opt.Query = dedupe(append(append([]string{}, c.Query...), opt.Query...))
	opt.Files = dedupe(append(append([]string{}, c.Files...), opt.Files...))
	opt.Dirs = dedupe(append(append([]string{}, c.Dir...), opt.Dirs...))

	if opt.EValue == cli.UnsetFloat {
		if c.EValue != nil {
			opt.EValue = *c.EValue
		} else {
			opt.EValue = 1e-5
		}
	}
	if opt.Coverage == cli.UnsetInt {
		if c.Coverage != nil {
			opt.Coverage = *c.Coverage
		} else {
			opt.Coverage = 50
		}
	}
	if opt.Identity == cli.UnsetInt {
		if c.Identity != nil {
			opt.Identity = *c.Identity
		} else {
			opt.Identity = 30
		}
	}
	if opt.Program == "" {
		if c.Program != "" {
			opt.Program = c.Program
		} else {
			opt.Program = "tblastn"
		}
	}
	if opt.Threads == 0 {
		if c.Threads != nil {
			opt.Threads = *c.Threads
		} else {
			opt.Threads = 1
		}
	}
	if opt.AllowMissing == cli.UnsetInt {
		if c.AllowMissing != nil {
			opt.AllowMissing = *c.AllowMissing
		} else {
			opt.AllowMissing = 0
		}
	}
	if c.Dups {
		opt.Dups = true
	}
	if opt.Email == "" {
		if c.Email != "" {
			opt.Email = c.Email
		} else {
			opt.Email = os.Getenv("EMAIL")
		}
	}

	if opt.Program != "tblastn" && opt.Program != "blastn" {
		return &ValueError{Field: "program", Detail: fmt.Sprintf("%q is not tblastn or blastn", opt.Program)}
	}
	if opt.EValue > 10 {
		return &ValueError{Field: "evalue", Detail: fmt.Sprintf("%g is greater than 10", opt.EValue)}
	}
	if opt.Coverage < 0 || opt.Coverage > 100 {
		return &ValueError{Field: "coverage", Detail: fmt.Sprintf("%d is not between 0 and 100", opt.Coverage)}
	}
	if opt.Identity < 0 || opt.Identity > 100 {
		return &ValueError{Field: "identity", Detail: fmt.Sprintf("%d is not between 0 and 100", opt.Identity)}
	}
	if opt.AllowMissing < 0 {
		return &ValueError{Field: "allow_missing", Detail: "must be >= 0"}
	}
	if opt.Threads < 1 {
		opt.Threads = 1
	}
	return nil
}

// FromOptions snapshots the reconciled options back into a Config for
// persisting.
func FromOptions(opt cli.Options) Config {
	return Config{
		Query:        opt.Query,
		Files:        opt.Files,
		Dir:          opt.Dirs,
		EValue:       &opt.EValue,
		Coverage:     &opt.Coverage,
		Identity:     &opt.Identity,
		Program:      opt.Program,
		Threads:      &opt.Threads,
		AllowMissing: &opt.AllowMissing,
		Dups:         opt.Dups,
		Email:        opt.Email,
	}
}

func dedupe(xs []string) []string {
	seen := make(map[string]struct{}, len(xs))
	out := xs[:0]
	for _, x := range xs {
		if _, ok := seen[x]; ok {
			continue
		}
		seen[x] = struct{}{}
		out = append(out, x)
	}
	return out
}
