package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/range-medical/consent-api/internal/types"
)

// Question is one screening question in the intake form. Options is the
// legal answer set; Critical marks the question whose Yes/Unsure answer
// raises the safety flag.
type Question struct {
	Key          string         `yaml:"key"           json:"key"`
	Label        string         `yaml:"label"         json:"label"`
	Prompt       string         `yaml:"prompt"        json:"prompt"`
	Note         string         `yaml:"note"          json:"note,omitempty"`
	Options      []types.Answer `yaml:"options"       json:"options"`
	Critical     bool           `yaml:"critical"      json:"critical,omitempty"`
	ErrorLabel   string         `yaml:"error_label"   json:"-"`
	DetailPrompt string         `yaml:"detail_prompt" json:"detailPrompt,omitempty"`
}

// Acknowledgment is one legal statement the patient must individually
// affirm. The catalog is versioned so the rendered document always
// matches the statement list the UI showed.
type Acknowledgment struct {
	ID   string `yaml:"id"   json:"id"`
	Text string `yaml:"text" json:"text"`
}

type Catalog struct {
	Type            string           `yaml:"type"             json:"type"`
	Version         string           `yaml:"version"          json:"version"`
	Title           string           `yaml:"title"            json:"title"`
	Description     []string         `yaml:"description"      json:"description"`
	Risks           []string         `yaml:"risks"            json:"risks"`
	RisksIntro      string           `yaml:"risks_intro"      json:"risksIntro"`
	CriticalAlert   string           `yaml:"critical_alert"   json:"-"`
	SignatureNotice string           `yaml:"signature_notice" json:"signatureNotice"`
	Questions       []Question       `yaml:"questions"        json:"questions"`
	Acknowledgments []Acknowledgment `yaml:"acknowledgments"  json:"acknowledgments"`
}

// CriticalQuestion returns the question carrying the safety flag, or nil
// when the catalog has none.
func (c *Catalog) CriticalQuestion() *Question {
	for i := range c.Questions {
		if c.Questions[i].Critical {
			return &c.Questions[i]
		}
	}
	return nil
}

func (c *Catalog) validate() error {
	if c.Type == "" {
		return fmt.Errorf("catalog missing type")
	}
	if c.Version == "" {
		return fmt.Errorf("catalog %q missing version", c.Type)
	}
	if len(c.Questions) == 0 {
		return fmt.Errorf("catalog %q has no screening questions", c.Type)
	}
	if len(c.Acknowledgments) == 0 {
		return fmt.Errorf("catalog %q has no acknowledgments", c.Type)
	}

	seen := map[string]bool{}
	for _, q := range c.Questions {
		if q.Key == "" || q.Label == "" || q.Prompt == "" {
			return fmt.Errorf("catalog %q: question %q missing key, label, or prompt", c.Type, q.Key)
		}
		if seen[q.Key] {
			return fmt.Errorf("catalog %q: duplicate question key %q", c.Type, q.Key)
		}
		seen[q.Key] = true
		if len(q.Options) < 2 {
			return fmt.Errorf("catalog %q: question %q needs at least two options", c.Type, q.Key)
		}
	}

	criticals := 0
	for _, q := range c.Questions {
		if q.Critical {
			criticals++
		}
	}
	if criticals > 1 {
		return fmt.Errorf("catalog %q: more than one critical question", c.Type)
	}

	seen = map[string]bool{}
	for _, a := range c.Acknowledgments {
		if a.ID == "" || a.Text == "" {
			return fmt.Errorf("catalog %q: acknowledgment missing id or text", c.Type)
		}
		if seen[a.ID] {
			return fmt.Errorf("catalog %q: duplicate acknowledgment id %q", c.Type, a.ID)
		}
		seen[a.ID] = true
	}

	return nil
}

// Set holds every loaded consent-type catalog keyed by type.
type Set struct {
	catalogs map[string]*Catalog
}

func (s *Set) Get(consentType string) (*Catalog, bool) {
	c, ok := s.catalogs[consentType]
	return c, ok
}

func (s *Set) Types() []string {
	out := make([]string, 0, len(s.catalogs))
	for t := range s.catalogs {
		out = append(out, t)
	}
	return out
}

// Parse decodes and validates a single catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadDir reads every *.yaml catalog in dir into a Set.
func LoadDir(dir string) (*Set, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog dir: %w", err)
	}

	set := &Set{catalogs: map[string]*Catalog{}}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog %q: %w", entry.Name(), err)
		}

		c, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("catalog %q: %w", entry.Name(), err)
		}

		if _, dup := set.catalogs[c.Type]; dup {
			return nil, fmt.Errorf("catalog type %q defined twice", c.Type)
		}
		set.catalogs[c.Type] = c
	}

	if len(set.catalogs) == 0 {
		return nil, fmt.Errorf("no catalogs found in %q", dir)
	}

	return set, nil
}

// NewSet builds a Set from already-parsed catalogs. Used by tests.
func NewSet(catalogs ...*Catalog) *Set {
	set := &Set{catalogs: map[string]*Catalog{}}
	for _, c := range catalogs {
		set.catalogs[c.Type] = c
	}
	return set
}
