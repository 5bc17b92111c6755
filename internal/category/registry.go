// Package category maps discussion category keys to the table pair that
// stores that category's questions and answers.
package category

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Key identifies a discussion category in URLs and API payloads.
type Key string

const (
	Afterlife Key = "afterlife"
	ThisLife  Key = "this-life"
)

var ErrNotFound = errors.New("category not found")

var tableName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Partition is the storage location of one category.
type Partition struct {
	Category  Key    `json:"key"`
	Label     string `json:"label"`
	Questions string `json:"-"`
	Answers   string `json:"-"`
}

// Registry is a closed, immutable set of partitions. Safe for concurrent use.
type Registry struct {
	order []Partition
	byKey map[Key]Partition
}

func NewRegistry(parts ...Partition) (*Registry, error) {
	r := &Registry{byKey: make(map[Key]Partition, len(parts))}
	tables := make(map[string]Key, len(parts)*2)
	for _, p := range parts {
		if strings.TrimSpace(string(p.Category)) == "" {
			return nil, errors.New("category key required")
		}
		if _, exists := r.byKey[p.Category]; exists {
			return nil, fmt.Errorf("duplicate category %q", p.Category)
		}
		for _, table := range []string{p.Questions, p.Answers} {
			if !tableName.MatchString(table) {
				return nil, fmt.Errorf("category %q: invalid table name %q", p.Category, table)
			}
			if owner, taken := tables[table]; taken {
				return nil, fmt.Errorf("category %q: table %q already used by %q", p.Category, table, owner)
			}
			tables[table] = p.Category
		}
		r.byKey[p.Category] = p
		r.order = append(r.order, p)
	}
	return r, nil
}

// Default returns the registry for the categories shipped with the schema.
func Default() *Registry {
	r, err := NewRegistry(
		Partition{Category: Afterlife, Label: "Afterlife", Questions: "afterlife_questions", Answers: "afterlife_answers"},
		Partition{Category: ThisLife, Label: "This Life", Questions: "this_life_questions", Answers: "this_life_answers"},
	)
	if err != nil {
		panic(err)
	}
	return r
}

// Resolve looks up a category key. Anything outside the registered set is ErrNotFound.
func (r *Registry) Resolve(raw string) (Partition, error) {
	p, ok := r.byKey[Key(raw)]
	if !ok {
		return Partition{}, fmt.Errorf("%w: %q", ErrNotFound, raw)
	}
	return p, nil
}

// All returns partitions in registration order.
func (r *Registry) All() []Partition {
	out := make([]Partition, len(r.order))
	copy(out, r.order)
	return out
}
