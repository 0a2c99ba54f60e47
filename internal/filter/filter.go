// internal/filter/filter.go
package filter

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"automlsa/internal/blasttab"
	"automlsa/internal/expected"
	"automlsa/internal/genome"
	"automlsa/internal/invalidate"
	"automlsa/internal/runctx"
	"automlsa/internal/state"
	"automlsa/pkg/api"
)

// Result is the filtering outcome: the genomes that stay in the
// analysis, the per-query best hits restricted to those genomes, and the
// presence bookkeeping used for reporting.
type Result struct {
	Kept     []genome.Genome
	Excluded []genome.Genome
	Best     []blasttab.Row // one row per (query, kept genome) pair with a hit
	Queries  []string       // query safe-ids in first-seen order
}

// MissingDataError is the review gate: missing hits exist and the
// operator has not acknowledged them. The run stops so the summaries can
// be inspected before committing to alignment.
type MissingDataError struct {
	SummaryFile string
}

func (e *MissingDataError) Error() string {
	return fmt.Sprintf("missing hits detected; review %s and rerun with --missing-check to continue, or adjust --allow-missing", e.SummaryFile)
}

// Run computes presence across all hit rows, writes the summary
// artifacts, applies the allow-missing cut, and records the keep-set in
// the expected-set snapshot. A keep-set change fires filter-scoped
// invalidation.
func Run(
	env *runctx.Env,
	inv *invalidate.Engine,
	rows []blasttab.Row,
	queryIDs []string,
	genomes []genome.Genome,
	allowMissing int,
	missingCheck bool,
) (*Result, error) {
	qNames := uniqueStable(queryIDs)
	byLabel := make(map[int]genome.Genome, len(genomes))
	for _, g := range genomes {
		byLabel[g.Label] = g
	}

	// presence[query][label] = hit count
	presence := make(map[string]map[int]int, len(qNames))
	for _, q := range qNames {
		presence[q] = make(map[int]int, len(genomes))
	}
	type pairKey struct {
		q     string
		label int
	}
	best := make(map[pairKey]blasttab.Row)
	for _, r := range rows {
		label, err := strconv.Atoi(r.SSeqID)
		if err != nil {
			return nil, fmt.Errorf("filter: subject %q is not a genome label", r.SSeqID)
		}
		if _, ok := byLabel[label]; !ok {
			// Stale row for a genome no longer in the analysis.
			continue
		}
		m, ok := presence[r.QSeqID]
		if !ok {
			m = make(map[int]int, len(genomes))
			presence[r.QSeqID] = m
			qNames = append(qNames, r.QSeqID)
		}
		m[label]++
		k := pairKey{q: r.QSeqID, label: label}
		if cur, ok := best[k]; !ok || better(r, cur) {
			best[k] = r
		}
	}

	summary, missingByGenome := buildSummary(qNames, genomes, presence)

	var kept, excluded []genome.Genome
	for _, g := range genomes {
		if missingByGenome[g.Label] > allowMissing {
			excluded = append(excluded, g)
		} else {
			kept = append(kept, g)
		}
	}
	for _, g := range excluded {
		env.Log.Warn("excluding genome, too many missing queries",
			"genome", g.Base, "missing", missingByGenome[g.Label], "allowed", allowMissing)
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("filter: no genomes survive with --allow-missing %d", allowMissing)
	}

	// The keep-set is itself a tracked artifact set: a membership change
	// purges everything derived from it. This runs before this run's
	// artifacts are written, so the purge only ever removes stale files.
	cur := make([]string, len(kept))
	for i, g := range kept {
		cur[i] = g.Base
	}
	diff, err := expected.Update(env.Layout.ExpectedFiltFile(), cur)
	if err != nil {
		return nil, err
	}
	if diff.Changed {
		env.Log.Info("filtered genome set changed",
			"added", len(diff.Added), "removed", len(diff.Removed))
		if err := inv.Invalidate(invalidate.TagFilter); err != nil {
			return nil, err
		}
	}

	if err := writePresenceMatrix(env.Layout.PresenceMatrix(), qNames, genomes, presence); err != nil {
		return nil, err
	}
	if err := writeSummaries(env, summary); err != nil {
		return nil, err
	}
	res := &Result{Kept: kept, Excluded: excluded, Queries: qNames}
	keptSet := make(map[int]struct{}, len(kept))
	var keptLabels []int
	for _, g := range kept {
		keptSet[g.Label] = struct{}{}
		keptLabels = append(keptLabels, g.Label)
	}
	sort.Ints(keptLabels)
	if err := writeJSONState(env, keptLabels, qNames, presence, keptSet); err != nil {
		return nil, err
	}

	for _, q := range qNames {
		for _, g := range kept {
			if r, ok := best[pairKey{q: q, label: g.Label}]; ok {
				res.Best = append(res.Best, r)
			}
		}
	}
	if err := blasttab.WriteTSV(env.Layout.BlastFilteredFile(), res.Best); err != nil {
		return nil, err
	}

	anyMissing := len(excluded) > 0
	for _, g := range kept {
		if missingByGenome[g.Label] > 0 {
			anyMissing = true
		}
	}
	if anyMissing && !missingCheck {
		return nil, &MissingDataError{SummaryFile: env.Layout.SummaryFile()}
	}
	return res, nil
}

// better orders hits by bitscore, then coverage.
func better(a, b blasttab.Row) bool {
	if a.Bitscore != b.Bitscore {
		return a.Bitscore > b.Bitscore
	}
	return a.QCovHSP > b.QCovHSP
}

func writePresenceMatrix(path string, qNames []string, genomes []genome.Genome, presence map[string]map[int]int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("filter: %w", err)
	}
	w := bufio.NewWriter(f)
	cols := make([]string, 0, len(genomes)+1)
	cols = append(cols, "query")
	for _, g := range genomes {
		cols = append(cols, g.Base)
	}
	_, werr := fmt.Fprintln(w, strings.Join(cols, "\t"))
	for _, q := range qNames {
		if werr != nil {
			break
		}
		row := make([]string, 0, len(genomes)+1)
		row = append(row, q)
		for _, g := range genomes {
			row = append(row, strconv.Itoa(presence[q][g.Label]))
		}
		_, werr = fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	if err := w.Flush(); werr == nil {
		werr = err
	}
	if err := f.Close(); werr == nil {
		werr = err
	}
	if werr != nil {
		return fmt.Errorf("filter: write %s: %w", path, werr)
	}
	return nil
}

// buildSummary assembles the audit schema plus the per-genome missing
// counts the keep-set cut runs on.
func buildSummary(qNames []string, genomes []genome.Genome, presence map[string]map[int]int) (api.SummaryV1, map[int]int) {
	s := api.SummaryV1{
		Queries: api.QuerySectionV1{
			Names:   append([]string{}, qNames...),
			Count:   len(qNames),
			Missing: map[string]api.QueryMissingV1{},
		},
		Genomes: api.GenomeSectionV1{
			Count:   len(genomes),
			Missing: map[string]api.GenomeMissingV1{},
		},
	}
	for _, g := range genomes {
		s.Genomes.Names = append(s.Genomes.Names, g.Base)
		s.Genomes.Indexes = append(s.Genomes.Indexes, g.Label)
	}

	missingByGenome := make(map[int]int)
	for _, q := range qNames {
		var absent []string
		for _, g := range genomes {
			if presence[q][g.Label] == 0 {
				absent = append(absent, g.Base)
				missingByGenome[g.Label]++
			}
		}
		if len(absent) > 0 {
			s.Queries.Missing[q] = api.QueryMissingV1{
				Genomes: absent,
				Count:   len(absent),
				Percent: percent(len(absent), len(genomes)),
			}
		}
	}
	for _, g := range genomes {
		var absent []string
		for _, q := range qNames {
			if presence[q][g.Label] == 0 {
				absent = append(absent, q)
			}
		}
		if len(absent) > 0 {
			s.Genomes.Missing[g.Base] = api.GenomeMissingV1{
				Queries: absent,
				Count:   len(absent),
				Percent: percent(len(absent), len(qNames)),
			}
		}
	}
	return s, missingByGenome
}

func writeSummaries(env *runctx.Env, s api.SummaryV1) error {
	if err := writeJSON(env, env.Layout.SummaryFile(), s); err != nil {
		return err
	}
	counts := make(map[string]int, len(s.Queries.Missing))
	for q, m := range s.Queries.Missing {
		counts[q] = m.Count
	}
	if err := writeJSON(env, env.Layout.MissingCounts(), counts); err != nil {
		return err
	}
	byGenome := make(map[string]int, len(s.Genomes.Missing))
	for g, m := range s.Genomes.Missing {
		byGenome[g] = m.Count
	}
	return writeJSON(env, env.Layout.MissingByGenome(), byGenome)
}

// writeJSONState persists keepsidx.json and single_copy.json. Single-copy
// queries hit every kept genome exactly once; multi-copy hits usually
// mean paralogs worth a second look.
func writeJSONState(env *runctx.Env, keptLabels []int, qNames []string, presence map[string]map[int]int, keptSet map[int]struct{}) error {
	if err := writeJSON(env, env.Layout.KeepsIdxFile(), keptLabels); err != nil {
		return err
	}
	var single []string
	for _, q := range qNames {
		ok := true
		for label := range keptSet {
			if presence[q][label] != 1 {
				ok = false
				break
			}
		}
		if ok {
			single = append(single, q)
		}
	}
	sort.Strings(single)
	return writeJSON(env, env.Layout.SingleCopyFile(), single)
}

func writeJSON(env *runctx.Env, path string, v any) error {
	env.Log.Debug("writing filter artifact", "file", path)
	return state.WriteJSON(path, v)
}

func percent(part, whole int) string {
	if whole == 0 {
		return "0.00"
	}
	return fmt.Sprintf("%.2f", float64(part)/float64(whole)*100)
}

func uniqueStable(xs []string) []string {
	seen := make(map[string]struct{}, len(xs))
	out := make([]string, 0, len(xs))
	for _, x := range xs {
		if _, ok := seen[x]; ok {
			continue
		}
		seen[x] = struct{}{}
		out = append(out, x)
	}
	return out
}
