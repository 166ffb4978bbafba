// Package mirror builds and refreshes the local relational copy of PokéAPI.
package mirror

import (
	_ "embed"
	"fmt"

	"github.com/jinzhu/inflection"
	"gopkg.in/yaml.v3"

	sqlguard "github.com/ekaya-inc/pokedex/pkg/sql"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// ColumnType controls how a JSON value is converted for storage.
type ColumnType string

const (
	ColumnText         ColumnType = "text"
	ColumnInt          ColumnType = "int"
	ColumnReal         ColumnType = "real"
	ColumnBool         ColumnType = "bool"
	ColumnRefID        ColumnType = "ref_id"
	ColumnJoin         ColumnType = "join"
	ColumnDamageFactor ColumnType = "damage_factor"
)

// Column maps one JSON path to one table column.
type Column struct {
	Name string     `yaml:"name"`
	Path string     `yaml:"path"`
	Type ColumnType `yaml:"type"`
}

// Association fans an array (or object of arrays) of a resource out into
// child rows keyed by the resource id. With Tree set, Path names a single
// node and Tree the array of child nodes under each node; every node in the
// tree becomes one row.
type Association struct {
	Table   string   `yaml:"table"`
	Key     string   `yaml:"key"`
	Path    string   `yaml:"path"`
	Each    string   `yaml:"each"`
	Object  bool     `yaml:"object"`
	Tree    string   `yaml:"tree"`
	Columns []Column `yaml:"columns"`
}

// Category is one PokéAPI list endpoint and the tables it feeds.
type Category struct {
	Resource     string        `yaml:"resource"`
	Table        string        `yaml:"table"`
	Columns      []Column      `yaml:"columns"`
	Associations []Association `yaml:"associations"`
}

// Catalog is the ordered set of categories a refresh loads.
type Catalog struct {
	Categories []Category `yaml:"categories"`
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalogYAML)
}

// ParseCatalog decodes and validates a catalog document, filling defaults.
func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(cat.Categories) == 0 {
		return nil, fmt.Errorf("catalog has no categories")
	}

	seen := make(map[string]bool)
	for i := range cat.Categories {
		c := &cat.Categories[i]
		if err := c.normalize(); err != nil {
			return nil, fmt.Errorf("category %q: %w", c.Resource, err)
		}
		for _, table := range c.Tables() {
			if seen[table] {
				return nil, fmt.Errorf("table %q is loaded by more than one category", table)
			}
			seen[table] = true
		}
	}
	return &cat, nil
}

// Tables returns the category table followed by its association tables.
func (c *Category) Tables() []string {
	tables := []string{c.Table}
	for _, a := range c.Associations {
		tables = append(tables, a.Table)
	}
	return tables
}

// ColumnNames returns the column names in declaration order.
func ColumnNames(cols []Column) []string {
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.Name
	}
	return names
}

// Tables returns every table the catalog writes, in load order.
func (cat *Catalog) Tables() []string {
	var tables []string
	for i := range cat.Categories {
		tables = append(tables, cat.Categories[i].Tables()...)
	}
	return tables
}

// Find returns the category for a resource name.
func (cat *Catalog) Find(resource string) (*Category, bool) {
	for i := range cat.Categories {
		if cat.Categories[i].Resource == resource {
			return &cat.Categories[i], true
		}
	}
	return nil, false
}

func (c *Category) normalize() error {
	if c.Resource == "" {
		return fmt.Errorf("resource is required")
	}
	if err := sqlguard.ValidateIdentifier("table", c.Table); err != nil {
		return err
	}
	if len(c.Columns) == 0 || c.Columns[0].Name != "id" {
		return fmt.Errorf("first column must be id")
	}
	if err := normalizeColumns(c.Columns); err != nil {
		return err
	}

	for i := range c.Associations {
		a := &c.Associations[i]
		if err := sqlguard.ValidateIdentifier("table", a.Table); err != nil {
			return err
		}
		if a.Path == "" {
			return fmt.Errorf("association %s: path is required", a.Table)
		}
		modes := 0
		for _, set := range []bool{a.Each != "", a.Object, a.Tree != ""} {
			if set {
				modes++
			}
		}
		if modes > 1 {
			return fmt.Errorf("association %s: each, object and tree are exclusive", a.Table)
		}
		if a.Key == "" {
			a.Key = inflection.Singular(c.Table) + "_id"
		}
		if err := sqlguard.ValidateIdentifier("key", a.Key); err != nil {
			return fmt.Errorf("association %s: %w", a.Table, err)
		}
		if err := normalizeColumns(a.Columns); err != nil {
			return fmt.Errorf("association %s: %w", a.Table, err)
		}
	}
	return nil
}

func normalizeColumns(cols []Column) error {
	for i := range cols {
		col := &cols[i]
		if col.Type == "" {
			col.Type = ColumnText
		}
		switch col.Type {
		case ColumnText, ColumnInt, ColumnReal, ColumnBool, ColumnRefID, ColumnJoin, ColumnDamageFactor:
		default:
			return fmt.Errorf("column %s: unknown type %q", col.Name, col.Type)
		}
		if col.Path == "" {
			return fmt.Errorf("column %s: path is required", col.Name)
		}
		if err := sqlguard.ValidateIdentifier("column", col.Name); err != nil {
			return err
		}
	}
	return nil
}
