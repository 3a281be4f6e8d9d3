// Package schema maps customer spreadsheet exports onto canonical records.
package schema

import (
	_ "embed"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed tables.yaml
var defaultTablesYAML []byte

// DialectTable describes one source-system header convention.
type DialectTable struct {
	Name     string   `yaml:"name"`
	EMLAType string   `yaml:"emla_type"`
	Hints    []string `yaml:"hints"`
	Wanted   []string `yaml:"wanted"`
	// Rename maps header spellings to target names.
	Rename map[string]string `yaml:"rename"`
	// Positional maps targets to a normalized header fragment located by
	// column position when table-driven mapping left the field empty.
	Positional             map[string]string `yaml:"positional"`
	CustomerNameColumns    []string          `yaml:"customer_name_columns"`
	AdvisorRecoveryColumns []string          `yaml:"advisor_recovery_columns"`
	DetectProductType      bool              `yaml:"detect_product_type"`
	// AdvisorRequired rows without a BTP advisor are skipped when the
	// pipeline runs with advisor enforcement on.
	AdvisorRequired bool `yaml:"advisor_required"`

	renameNorm map[string]string
	wantedNorm []string
}

// ForcedType is an engagement type a caller may impose through a hint.
type ForcedType struct {
	EMLAType string   `yaml:"emla_type"`
	Dialect  string   `yaml:"dialect"`
	Hints    []string `yaml:"hints"`
}

// TypePattern classifies free-text product values by substring.
type TypePattern struct {
	Contains string `yaml:"contains"`
	EMLAType string `yaml:"emla_type"`
}

// Tables is the read-only mapping configuration shared by every upload.
type Tables struct {
	DefaultDialect    string              `yaml:"default_dialect"`
	HeaderSynonyms    map[string]string   `yaml:"header_synonyms"`
	Generic           map[string]string   `yaml:"generic"`
	Dialects          []*DialectTable     `yaml:"dialects"`
	ForcedTypes       []ForcedType        `yaml:"forced_types"`
	CRTColumns        []string            `yaml:"crt_columns"`
	IDColumns         []string            `yaml:"id_columns"`
	ProductColumns    []string            `yaml:"product_columns"`
	Fallbacks         map[string][]string `yaml:"fallbacks"`
	BTPAdvisorColumns []string            `yaml:"btp_advisor_columns"`
	ERPAdvisorColumns []string            `yaml:"erp_advisor_columns"`
	TypePatterns      []TypePattern       `yaml:"emla_type_patterns"`

	byName map[string]*DialectTable
}

// DefaultTables returns the built-in mapping tables.
func DefaultTables() (*Tables, error) {
	return LoadTables(defaultTablesYAML)
}

// LoadTablesFile reads mapping tables from a YAML file.
func LoadTablesFile(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "schema: read tables %s", path)
	}
	return LoadTables(data)
}

// LoadTables parses and validates YAML mapping tables.
func LoadTables(data []byte) (*Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrap(err, "schema: parse tables")
	}
	if err := t.compile(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Tables) compile() error {
	if len(t.Dialects) == 0 {
		return eris.New("schema: no dialects defined")
	}

	t.HeaderSynonyms = normalizeKeys(t.HeaderSynonyms)
	t.Generic = normalizeKeys(t.Generic)
	for key, target := range t.Generic {
		if target == "" {
			return eris.Errorf("schema: generic mapping %q has no target", key)
		}
	}

	t.byName = make(map[string]*DialectTable, len(t.Dialects))
	for _, d := range t.Dialects {
		if d == nil || d.Name == "" {
			return eris.New("schema: dialect without name")
		}
		if d.EMLAType == "" {
			return eris.Errorf("schema: dialect %s has no emla_type", d.Name)
		}
		if _, dup := t.byName[d.Name]; dup {
			return eris.Errorf("schema: duplicate dialect %s", d.Name)
		}
		d.renameNorm = make(map[string]string, len(d.Rename))
		for header, target := range d.Rename {
			if target == "" {
				return eris.Errorf("schema: dialect %s maps %q to nothing", d.Name, header)
			}
			d.renameNorm[NormalizeHeader(header)] = target
		}
		d.wantedNorm = d.wantedNorm[:0]
		for _, w := range d.Wanted {
			d.wantedNorm = append(d.wantedNorm, NormalizeHeader(w))
		}
		t.byName[d.Name] = d
	}

	if t.DefaultDialect == "" {
		t.DefaultDialect = t.Dialects[0].Name
	}
	if _, ok := t.byName[t.DefaultDialect]; !ok {
		return eris.Errorf("schema: default dialect %s is not defined", t.DefaultDialect)
	}
	for _, ft := range t.ForcedTypes {
		if _, ok := t.byName[ft.Dialect]; !ok {
			return eris.Errorf("schema: forced type %s uses unknown dialect %s", ft.EMLAType, ft.Dialect)
		}
	}
	for _, p := range t.TypePatterns {
		if p.Contains == "" || p.EMLAType == "" {
			return eris.New("schema: incomplete emla_type pattern")
		}
	}
	return nil
}

// Dialect returns the dialect table with the given name.
func (t *Tables) Dialect(name string) (*DialectTable, bool) {
	d, ok := t.byName[name]
	return d, ok
}

// DisplayHeader maps a raw header to its display spelling, the key used for
// parsed rows. Unknown headers keep their text without surrounding quotes.
func (t *Tables) DisplayHeader(h string) string {
	if v, ok := t.HeaderSynonyms[NormalizeHeader(h)]; ok {
		return v
	}
	return strings.Trim(strings.TrimSpace(h), `"`)
}

// NormalizeType classifies a free-text product value, or returns "" when no
// pattern matches.
func (t *Tables) NormalizeType(v string) string {
	low := strings.ToLower(v)
	for _, p := range t.TypePatterns {
		if strings.Contains(low, p.Contains) {
			return p.EMLAType
		}
	}
	return ""
}

func normalizeKeys(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[NormalizeHeader(k)] = v
	}
	return out
}
