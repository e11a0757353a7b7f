// Package reference holds the versioned trust reference dataset: recognized
// institutions, trusted certificate issuers, the skill dictionary with
// market demand and keywords, and ideal posting frequencies per social
// platform. The dataset is plain JSON validated against an embedded JSON
// schema, so it can be replaced without rebuilding the scoring code.
package reference

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON []byte

//go:embed dataset.json
var datasetJSON []byte

// Institution is a recognized education provider.
type Institution struct {
	Name    string   `json:"name"`
	Aliases []string `json:"aliases,omitempty"`
	Country string   `json:"country,omitempty"`
	Trust   int      `json:"trust"`
}

// Issuer is a trusted certificate issuer.
type Issuer struct {
	Name             string   `json:"name"`
	Aliases          []string `json:"aliases,omitempty"`
	Domain           string   `json:"domain"`
	VerifyURLPattern string   `json:"verifyUrlPattern,omitempty"`
	Trust            int      `json:"trust"`
}

// SkillInfo is a dictionary entry for a canonical skill.
type SkillInfo struct {
	Name         string   `json:"name"`
	Category     string   `json:"category"`
	MarketDemand int      `json:"marketDemand"`
	Keywords     []string `json:"keywords,omitempty"`
}

// Dataset is a loaded, indexed reference dataset. It is immutable and safe
// for concurrent use.
type Dataset struct {
	Version          string             `json:"version"`
	Institutions     []Institution      `json:"institutions"`
	Issuers          []Issuer           `json:"issuers"`
	Skills           []SkillInfo        `json:"skills"`
	PostingFrequency map[string]float64 `json:"postingFrequency"`

	institutions map[string]*Institution
	issuers      map[string]*Issuer
	skills       map[string]*SkillInfo
	keywords     map[string]string
}

// SchemaError reports a dataset that does not match the schema.
type SchemaError struct {
	Errors []string
}

func (e *SchemaError) Error() string {
	return "reference dataset invalid: " + strings.Join(e.Errors, "; ")
}

var (
	defaultOnce sync.Once
	defaultSet  *Dataset
)

// Default returns the dataset compiled into the binary.
func Default() *Dataset {
	defaultOnce.Do(func() {
		ds, err := Parse(datasetJSON)
		if err != nil {
			panic(fmt.Sprintf("reference: embedded dataset: %v", err))
		}
		defaultSet = ds
	})
	return defaultSet
}

// LoadFile reads and validates a dataset from disk.
func LoadFile(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reference dataset: %w", err)
	}
	return Parse(data)
}

// Parse validates data against the schema and builds the lookup indexes.
func Parse(data []byte) (*Dataset, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("validate reference dataset: %w", err)
	}
	if !result.Valid() {
		se := &SchemaError{}
		for _, desc := range result.Errors() {
			field := desc.Field()
			if field == "" {
				field = "(root)"
			}
			se.Errors = append(se.Errors, field+": "+desc.Description())
		}
		return nil, se
	}

	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("decode reference dataset: %w", err)
	}
	ds.index()
	return &ds, nil
}

func (d *Dataset) index() {
	d.institutions = make(map[string]*Institution)
	for i := range d.Institutions {
		in := &d.Institutions[i]
		d.institutions[Normalize(in.Name)] = in
		for _, a := range in.Aliases {
			d.institutions[Normalize(a)] = in
		}
	}

	d.issuers = make(map[string]*Issuer)
	for i := range d.Issuers {
		is := &d.Issuers[i]
		d.issuers[Normalize(is.Name)] = is
		for _, a := range is.Aliases {
			d.issuers[Normalize(a)] = is
		}
	}

	d.skills = make(map[string]*SkillInfo)
	d.keywords = make(map[string]string)
	for i := range d.Skills {
		sk := &d.Skills[i]
		d.skills[Normalize(sk.Name)] = sk
		for _, kw := range sk.Keywords {
			d.keywords[Normalize(kw)] = sk.Name
		}
	}
}

// Normalize lowercases s and collapses whitespace, for name lookups.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Institution looks up a recognized institution by name or alias.
func (d *Dataset) Institution(name string) (Institution, bool) {
	in, ok := d.institutions[Normalize(name)]
	if !ok {
		return Institution{}, false
	}
	return *in, true
}

// Issuer looks up a trusted issuer by name or alias.
func (d *Dataset) Issuer(name string) (Issuer, bool) {
	is, ok := d.issuers[Normalize(name)]
	if !ok {
		return Issuer{}, false
	}
	return *is, true
}

// Skill looks up a skill by canonical name or keyword.
func (d *Dataset) Skill(name string) (SkillInfo, bool) {
	n := Normalize(name)
	if sk, ok := d.skills[n]; ok {
		return *sk, true
	}
	if canon, ok := d.keywords[n]; ok {
		return *d.skills[Normalize(canon)], true
	}
	return SkillInfo{}, false
}

// IdealPostsPerWeek returns the posting frequency at which a platform's
// frequency score peaks.
func (d *Dataset) IdealPostsPerWeek(platform string) (float64, bool) {
	f, ok := d.PostingFrequency[Normalize(platform)]
	return f, ok
}

// SkillsInText returns the canonical skills whose keywords occur in text as
// whole words or phrases.
func (d *Dataset) SkillsInText(text string) SkillSet {
	padded := " " + tokenize(text) + " "
	set := make(SkillSet)
	for kw, canon := range d.keywords {
		if strings.Contains(padded, " "+kw+" ") {
			set.Add(canon)
		}
	}
	return set
}

// tokenize lowercases text and turns separators into single spaces, keeping
// characters that occur inside skill names such as "c++", "c#" and ".net".
func tokenize(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '+', r == '#', r == '.', r == '/':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	fields := strings.Fields(b.String())
	for i, f := range fields {
		fields[i] = strings.TrimRight(f, "./")
	}
	return strings.Join(fields, " ")
}

// MatchesIssuerDomain reports whether rawURL points at the issuer's domain
// (or a subdomain of it) or at its verification host.
func (is Issuer) MatchesIssuerDomain(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, domain := range []string{is.Domain, is.VerifyURLPattern} {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain == "" {
			continue
		}
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// SkillSet is a set of canonical skill names.
type SkillSet map[string]struct{}

// Add inserts names into the set.
func (s SkillSet) Add(names ...string) {
	for _, n := range names {
		s[n] = struct{}{}
	}
}

// Has reports membership.
func (s SkillSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the names in lexical order.
func (s SkillSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
