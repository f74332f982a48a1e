package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/abdul-hamid-achik/hitrun/packages/model"
)

// ErrInvalidCatalog is wrapped by every validation failure.
var ErrInvalidCatalog = errors.New("invalid catalog")

// ValidationError lists every problem found in a catalog document.
type ValidationError struct {
	Source   string
	Problems []string
}

func (e *ValidationError) Error() string {
	src := e.Source
	if src == "" {
		src = "catalog"
	}
	return fmt.Sprintf("%s: %s", src, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidCatalog
}

// Catalog is the decoded content of one or more catalog files.
type Catalog struct {
	Environments []*model.Environment `yaml:"environments"`
	Modules      []*Module            `yaml:"modules"`
}

// Module is a module with its variables and cases.
type Module struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description,omitempty"`
	Variables   []*model.Variable `yaml:"variables,omitempty"`
	Cases       []*model.TestCase `yaml:"cases,omitempty"`
}

var compiledSchema *gojsonschema.Schema

func init() {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		panic(fmt.Sprintf("catalog schema: %v", err))
	}
	compiledSchema = s
}

// Parse decodes and validates a YAML catalog document. source names the
// document in error messages.
func Parse(source string, data []byte) (*Catalog, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s: parsing yaml: %w", source, err)
	}
	if doc == nil {
		return &Catalog{}, nil
	}

	result, err := compiledSchema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("%s: schema validation error: %w", source, err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, &ValidationError{Source: source, Problems: problems}
	}

	var c Catalog
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: decoding catalog: %w", source, err)
	}
	c.normalize()

	if problems := c.check(); len(problems) > 0 {
		return nil, &ValidationError{Source: source, Problems: problems}
	}
	return &c, nil
}

// LoadFile reads and validates one catalog file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(path, data)
}

// Load reads every path. Directories contribute their *.yaml and *.yml files
// in name order. The result is validated as a whole.
func Load(paths ...string) (*Catalog, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		var names []string
		for _, e := range entries {
			ext := filepath.Ext(e.Name())
			if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
				names = append(names, filepath.Join(p, e.Name()))
			}
		}
		sort.Strings(names)
		files = append(files, names...)
	}

	merged := &Catalog{}
	for _, f := range files {
		c, err := LoadFile(f)
		if err != nil {
			return nil, err
		}
		merged.Environments = append(merged.Environments, c.Environments...)
		merged.Modules = append(merged.Modules, c.Modules...)
	}

	if problems := merged.check(); len(problems) > 0 {
		return nil, &ValidationError{Source: strings.Join(paths, ", "), Problems: problems}
	}
	return merged, nil
}

func (c *Catalog) normalize() {
	for _, m := range c.Modules {
		for _, v := range m.Variables {
			if v.Extractor != nil {
				v.Extractor.Source = v.Extractor.Source.Normalize()
			}
		}
		for _, tc := range m.Cases {
			tc.Method = strings.ToUpper(tc.Method)
		}
	}
}

// check reports semantic problems the schema cannot express.
func (c *Catalog) check() []string {
	var problems []string

	envs := make(map[string]bool)
	for _, e := range c.Environments {
		if envs[e.Name] {
			problems = append(problems, fmt.Sprintf("duplicate environment %q", e.Name))
		}
		envs[e.Name] = true
	}

	mods := make(map[string]bool)
	for _, m := range c.Modules {
		if mods[m.Name] {
			problems = append(problems, fmt.Sprintf("duplicate module %q", m.Name))
		}
		mods[m.Name] = true

		vars := make(map[string]bool)
		for _, v := range m.Variables {
			if vars[v.Name] {
				problems = append(problems, fmt.Sprintf("module %q: duplicate variable %q", m.Name, v.Name))
			}
			vars[v.Name] = true
			if v.Extractor != nil {
				if err := v.Extractor.Validate(); err != nil {
					problems = append(problems, fmt.Sprintf("module %q: variable %q: %v", m.Name, v.Name, err))
				}
			}
		}

		cases := make(map[string]bool)
		for _, tc := range m.Cases {
			name := tc.DisplayName()
			if cases[name] {
				problems = append(problems, fmt.Sprintf("module %q: duplicate case %q", m.Name, name))
			}
			cases[name] = true
			for i, a := range tc.Assertions {
				if err := a.Validate(); err != nil {
					problems = append(problems, fmt.Sprintf("module %q: case %q: assertion %d: %v", m.Name, name, i+1, err))
				}
			}
		}
	}
	return problems
}

// CaseCount returns the number of cases across all modules.
func (c *Catalog) CaseCount() int {
	n := 0
	for _, m := range c.Modules {
		n += len(m.Cases)
	}
	return n
}
