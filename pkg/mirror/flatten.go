package mirror

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ekaya-inc/pokedex/pkg/pokeapi"
)

// TableRows holds the rows one resource document produces for one table.
type TableRows struct {
	Table   string
	Key     string // parent id column for association tables; "" for the category table
	Columns []string
	Rows    [][]any
}

// Flatten converts one resource document into the category row plus one
// TableRows per association. The first element is always the category table.
func Flatten(c *Category, doc []byte) ([]TableRows, error) {
	if !gjson.ValidBytes(doc) {
		return nil, fmt.Errorf("%s: invalid JSON document", c.Resource)
	}
	root := gjson.ParseBytes(doc)

	row := make([]any, len(c.Columns))
	for i, col := range c.Columns {
		row[i] = convert(col, root.Get(col.Path), "")
	}
	id, ok := row[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%s: document has no numeric id", c.Resource)
	}

	out := []TableRows{{
		Table:   c.Table,
		Columns: ColumnNames(c.Columns),
		Rows:    [][]any{row},
	}}

	for _, a := range c.Associations {
		out = append(out, flattenAssociation(a, root, id))
	}
	return out, nil
}

func flattenAssociation(a Association, root gjson.Result, parentID int64) TableRows {
	tr := TableRows{
		Table:   a.Table,
		Key:     a.Key,
		Columns: append([]string{a.Key}, ColumnNames(a.Columns)...),
	}

	emit := func(elem, outer gjson.Result, key string, depth int) {
		row := make([]any, 0, len(a.Columns)+1)
		row = append(row, parentID)
		for _, col := range a.Columns {
			row = append(row, convert(col, lookup(col.Path, elem, outer, key, depth), key))
		}
		tr.Rows = append(tr.Rows, row)
	}

	collection := root.Get(a.Path)
	switch {
	case a.Object:
		collection.ForEach(func(key, value gjson.Result) bool {
			value.ForEach(func(_, elem gjson.Result) bool {
				emit(elem, gjson.Result{}, key.String(), 0)
				return true
			})
			return true
		})
	case a.Each != "":
		collection.ForEach(func(_, outer gjson.Result) bool {
			outer.Get(a.Each).ForEach(func(_, elem gjson.Result) bool {
				emit(elem, outer, "", 0)
				return true
			})
			return true
		})
	case a.Tree != "":
		var walk func(node, parent gjson.Result, depth int)
		walk = func(node, parent gjson.Result, depth int) {
			if depth > maxTreeDepth {
				return
			}
			emit(node, parent, "", depth)
			node.Get(a.Tree).ForEach(func(_, child gjson.Result) bool {
				walk(child, node, depth+1)
				return true
			})
		}
		if collection.IsObject() {
			walk(collection, gjson.Result{}, 0)
		}
	default:
		collection.ForEach(func(_, elem gjson.Result) bool {
			emit(elem, gjson.Result{}, "", 0)
			return true
		})
	}

	return tr
}

// maxTreeDepth bounds tree associations against malformed documents.
const maxTreeDepth = 32

// lookup resolves a column path against the current element. "^path" reads
// the enclosing element (the parent node in a tree), "@key" yields the
// object key and "@depth" the node depth in a tree.
func lookup(path string, elem, outer gjson.Result, key string, depth int) gjson.Result {
	switch {
	case path == "@key":
		return gjson.Result{Type: gjson.String, Str: key}
	case path == "@depth":
		return gjson.Result{Type: gjson.Number, Num: float64(depth)}
	case strings.HasPrefix(path, "^"):
		return outer.Get(path[1:])
	default:
		return elem.Get(path)
	}
}

// convert maps a JSON value to a SQLite value. Missing and null values are NULL.
func convert(col Column, v gjson.Result, key string) any {
	if col.Type == ColumnDamageFactor {
		if f, ok := DamageFactor(key); ok {
			return f
		}
		return nil
	}
	if !v.Exists() || v.Type == gjson.Null {
		return nil
	}

	switch col.Type {
	case ColumnInt:
		if v.Type != gjson.Number {
			return nil
		}
		return v.Int()
	case ColumnReal:
		if v.Type != gjson.Number {
			return nil
		}
		return v.Float()
	case ColumnBool:
		if v.Type == gjson.True {
			return int64(1)
		}
		if v.Type == gjson.False {
			return int64(0)
		}
		return nil
	case ColumnRefID:
		if id := pokeapi.IDFromURL(v.String()); id > 0 {
			return id
		}
		return nil
	case ColumnJoin:
		if !v.IsArray() {
			return v.String()
		}
		var parts []string
		for _, item := range v.Array() {
			if s := item.String(); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ",")
	default:
		return v.String()
	}
}

// DamageFactor maps a damage_relations key to its multiplier:
// "double_damage_*" is 2.0, "half_damage_*" is 0.5, "no_damage_*" is 0.0.
func DamageFactor(relation string) (float64, bool) {
	switch {
	case strings.HasPrefix(relation, "double_damage"):
		return 2.0, true
	case strings.HasPrefix(relation, "half_damage"):
		return 0.5, true
	case strings.HasPrefix(relation, "no_damage"):
		return 0.0, true
	default:
		return 0, false
	}
}
