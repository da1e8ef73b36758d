package source

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownMetapath is returned for metapaths outside Metapaths.
var ErrUnknownMetapath = errors.New("unknown metapath")

// Metapath names the node-type pattern a graph query walks.
type Metapath string

const (
	// MetapathDGPG walks Disease – Gene – Pathway – Gene(target).
	MetapathDGPG Metapath = "DGPG"
	// MetapathGGGD walks Gene(target) – Gene – Gene – Disease.
	MetapathGGGD Metapath = "GGGD"
)

// DefaultMetapath is used when a query names none.
const DefaultMetapath = MetapathDGPG

// MetapathInfo describes a metapath for listings.
type MetapathInfo struct {
	Name        Metapath `json:"name"`
	Pattern     string   `json:"pattern"`
	Description string   `json:"description"`
}

// Metapaths lists the supported metapaths.
func Metapaths() []MetapathInfo {
	return []MetapathInfo{
		{
			Name:        MetapathDGPG,
			Pattern:     "Disease - Gene - Pathway - Gene",
			Description: "Genes associated with the indications that share a pathway with the target.",
		},
		{
			Name:        MetapathGGGD,
			Pattern:     "Gene - Gene - Gene - Disease",
			Description: "Genes linked to the target whose physical interactors are targets for the indications.",
		},
	}
}

// ParseMetapath validates s. An empty string yields DefaultMetapath.
func ParseMetapath(s string) (Metapath, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return DefaultMetapath, nil
	}
	for _, m := range Metapaths() {
		if string(m.Name) == s {
			return m.Name, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMetapath, s)
}

// Query selects one graph: a target gene, the indications to connect it to
// and the metapath to walk.
type Query struct {
	TargetGene     string   `json:"target_gene"`
	TargetDiseases []string `json:"target_diseases"`
	Metapath       Metapath `json:"metapath"`
}

// Normalize trims whitespace, drops empty diseases and defaults the metapath.
func (q Query) Normalize() (Query, error) {
	out := Query{TargetGene: strings.TrimSpace(q.TargetGene)}
	for _, d := range q.TargetDiseases {
		if d = strings.TrimSpace(d); d != "" {
			out.TargetDiseases = append(out.TargetDiseases, d)
		}
	}
	mp, err := ParseMetapath(string(q.Metapath))
	if err != nil {
		return Query{}, err
	}
	out.Metapath = mp
	if out.TargetGene == "" {
		return Query{}, errors.New("target gene is required")
	}
	if len(out.TargetDiseases) == 0 {
		return Query{}, errors.New("at least one target disease is required")
	}
	return out, nil
}

// CacheKey identifies the query's result: the lower-cased gene, the disease
// ids and the metapath, sorted and joined with ":".
func (q Query) CacheKey() string {
	parts := make([]string, 0, len(q.TargetDiseases)+2)
	parts = append(parts, strings.ToLower(strings.TrimSpace(q.TargetGene)))
	parts = append(parts, q.TargetDiseases...)
	parts = append(parts, string(q.Metapath))
	sort.Strings(parts)
	return strings.Join(parts, ":")
}

// String is a short human form for logs.
func (q Query) String() string {
	return fmt.Sprintf("%s/%s/%s", q.TargetGene, strings.Join(q.TargetDiseases, ","), q.Metapath)
}
