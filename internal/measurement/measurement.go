// Package measurement orders garment measurement fields for display.
package measurement

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed order.yaml
var orderYAML []byte

// Unlisted is the sort index of a field the table does not know.
const Unlisted = 1 << 16

// Field is one measurement, ready for display.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Table maps garment type + field name to a display index.
type Table struct {
	fallback map[string]int
	garments map[string]map[string]int
}

type tableFile struct {
	Default  []string            `yaml:"default"`
	Garments map[string][]string `yaml:"garments"`
}

var defaultTable = mustLoad(orderYAML)

// Default returns the built-in table.
func Default() *Table { return defaultTable }

// Load parses a YAML ordering table.
func Load(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse measurement table: %w", err)
	}

	t := &Table{
		fallback: indexOf(f.Default),
		garments: make(map[string]map[string]int, len(f.Garments)),
	}
	for garment, fields := range f.Garments {
		t.garments[key(garment)] = indexOf(fields)
	}
	return t, nil
}

func mustLoad(data []byte) *Table {
	t, err := Load(data)
	if err != nil {
		panic(err)
	}
	return t
}

// Index returns the display index of field for garment. Garments the table
// does not list use the default ordering.
func (t *Table) Index(garment, field string) int {
	idx, ok := t.garments[key(garment)]
	if !ok {
		idx = t.fallback
	}
	if i, ok := idx[key(field)]; ok {
		return i
	}
	return Unlisted
}

// Sort returns the measurements of one garment in display order. Unlisted
// fields follow the listed ones alphabetically; empty values are dropped.
func (t *Table) Sort(garment string, values map[string]string) []Field {
	fields := make([]Field, 0, len(values))
	for name, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		fields = append(fields, Field{Name: name, Value: v})
	}

	sort.SliceStable(fields, func(i, j int) bool {
		a, b := t.Index(garment, fields[i].Name), t.Index(garment, fields[j].Name)
		if a != b {
			return a < b
		}
		return key(fields[i].Name) < key(fields[j].Name)
	})
	return fields
}

func indexOf(names []string) map[string]int {
	m := make(map[string]int, len(names))
	for i, n := range names {
		m[key(n)] = i
	}
	return m
}

func key(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
