package importer

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_mapping.yaml
var defaultMappingYAML []byte

// ErrInvalidMapping indicates a mapping document that cannot be used.
var ErrInvalidMapping = errors.New("importer: invalid mapping")

// CodeMap translates the registrar's space codes into lab names.
// It is versioned so reports can state which table was applied.
type CodeMap struct {
	Version string
	names   map[string]string
}

// NewCodeMap builds a code map. Codes are matched after trimming whitespace.
func NewCodeMap(version string, entries map[string]string) CodeMap {
	names := make(map[string]string, len(entries))
	for code, name := range entries {
		names[strings.TrimSpace(code)] = strings.TrimSpace(name)
	}
	return CodeMap{Version: version, names: names}
}

// Lookup returns the lab name registered for code.
func (m CodeMap) Lookup(code string) (string, bool) {
	name, ok := m.names[strings.TrimSpace(code)]
	return name, ok && name != ""
}

// Len returns the number of registered codes.
func (m CodeMap) Len() int {
	return len(m.names)
}

// FacultyRule assigns Faculty to subjects containing any of Keywords.
type FacultyRule struct {
	Faculty  string   `yaml:"faculty"`
	Keywords []string `yaml:"keywords"`
}

// FacultyTable infers a faculty from a subject name. Rules are evaluated in
// order and the first rule with a matching keyword wins.
type FacultyTable struct {
	Rules    []FacultyRule
	Fallback string
}

// Infer returns the faculty for subject, or the fallback when nothing matches.
func (t FacultyTable) Infer(subject string) string {
	name := strings.ToLower(subject)
	for _, rule := range t.Rules {
		for _, keyword := range rule.Keywords {
			keyword = strings.ToLower(strings.TrimSpace(keyword))
			if keyword != "" && strings.Contains(name, keyword) {
				return rule.Faculty
			}
		}
	}
	return t.Fallback
}

// Mapping bundles the lookup tables the reconciler needs.
type Mapping struct {
	Codes     CodeMap
	Faculties FacultyTable
}

type mappingDocument struct {
	Version         string            `yaml:"version"`
	Codes           map[string]string `yaml:"codes"`
	Faculties       []FacultyRule     `yaml:"faculties"`
	FallbackFaculty string            `yaml:"fallback_faculty"`
}

// LoadMapping decodes a YAML mapping document.
func LoadMapping(r io.Reader) (Mapping, error) {
	var doc mappingDocument
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return Mapping{}, fmt.Errorf("%w: %v", ErrInvalidMapping, err)
	}

	if strings.TrimSpace(doc.Version) == "" {
		return Mapping{}, fmt.Errorf("%w: version is required", ErrInvalidMapping)
	}
	if len(doc.Codes) == 0 {
		return Mapping{}, fmt.Errorf("%w: at least one code is required", ErrInvalidMapping)
	}
	for i, rule := range doc.Faculties {
		if strings.TrimSpace(rule.Faculty) == "" {
			return Mapping{}, fmt.Errorf("%w: faculty rule %d has no name", ErrInvalidMapping, i+1)
		}
	}
	fallback := strings.TrimSpace(doc.FallbackFaculty)
	if fallback == "" {
		fallback = "Facultad por Determinar"
	}

	return Mapping{
		Codes:     NewCodeMap(strings.TrimSpace(doc.Version), doc.Codes),
		Faculties: FacultyTable{Rules: doc.Faculties, Fallback: fallback},
	}, nil
}

// DefaultMapping returns the built-in mapping.
func DefaultMapping() Mapping {
	m, err := LoadMapping(bytes.NewReader(defaultMappingYAML))
	if err != nil {
		panic(fmt.Sprintf("importer: embedded mapping: %v", err))
	}
	return m
}
