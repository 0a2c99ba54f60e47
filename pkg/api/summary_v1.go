// pkg/api/summary_v1.go
package api

// SummaryV1 is the stable schema of blast_summary.json, the audit
// artifact of the filtering stage. Keep fields, names, and types stable.
// Add new fields only with ",omitempty".
type SummaryV1 struct {
	Queries QuerySectionV1  `json:"queries"`
	Genomes GenomeSectionV1 `json:"genomes"`
}

type QuerySectionV1 struct {
	Names   []string                  `json:"names"`
	Count   int                       `json:"count"`
	Missing map[string]QueryMissingV1 `json:"missing"`
}

// QueryMissingV1 lists the genomes a query produced no hit in.
type QueryMissingV1 struct {
	Genomes []string `json:"genomes"`
	Count   int      `json:"count"`
	Percent string   `json:"percent"` // of all genomes, 2 decimals
}

type GenomeSectionV1 struct {
	Names   []string                   `json:"names"`
	Indexes []int                      `json:"indexes"` // stable integer labels
	Count   int                        `json:"count"`
	Missing map[string]GenomeMissingV1 `json:"missing"`
}

// GenomeMissingV1 lists the queries a genome is missing.
type GenomeMissingV1 struct {
	Queries []string `json:"queries"`
	Count   int      `json:"count"`
	Percent string   `json:"percent"` // of all queries, 2 decimals
}
