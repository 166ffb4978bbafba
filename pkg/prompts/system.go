package prompts

import (
	"fmt"
	"strings"
)

// TableContext describes one mirror table for the system prompt.
type TableContext struct {
	Name    string
	Columns []ColumnContext
}

// ColumnContext describes one column for the system prompt.
type ColumnContext struct {
	Name         string
	DataType     string
	IsPrimaryKey bool
}

// Relationship is a join the model should know about.
type Relationship struct {
	From string // "table.column"
	To   string // "table.column"
}

// Relationships lists the joins between mirror tables. Name-keyed
// associations (pokemon_types.type_name -> type.name) are included because
// the mirror stores association targets by name.
var Relationships = []Relationship{
	{"pokemon.species_id", "pokemon_species.id"},
	{"pokemon_types.pokemon_id", "pokemon.id"},
	{"pokemon_types.type_name", "type.name"},
	{"pokemon_stats.pokemon_id", "pokemon.id"},
	{"pokemon_stats.stat_name", "stat.name"},
	{"pokemon_abilities.pokemon_id", "pokemon.id"},
	{"pokemon_abilities.ability_name", "ability.name"},
	{"pokemon_moves.pokemon_id", "pokemon.id"},
	{"pokemon_moves.move_name", "move.name"},
	{"pokemon_held_items.pokemon_id", "pokemon.id"},
	{"pokemon_held_items.item_name", "item.name"},
	{"pokemon_species_egg_groups.pokemon_species_id", "pokemon_species.id"},
	{"pokemon_species_flavor_text.pokemon_species_id", "pokemon_species.id"},
	{"pokemon_species.evolution_chain_id", "evolution_chain.id"},
	{"evolution_chain_links.evolution_chain_id", "evolution_chain.id"},
	{"evolution_chain_links.species_id", "pokemon_species.id"},
	{"evolution_chain_links.trigger_name", "evolution_trigger.name"},
	{"pokemon_form.pokemon_id", "pokemon.id"},
	{"pokemon_form_types.pokemon_form_id", "pokemon_form.id"},
	{"machine.move_id", "move.id"},
	{"machine.item", "item.name"},
	{"location_area.location_id", "location.id"},
	{"location_area_encounters.location_area_id", "location_area.id"},
	{"location_area_encounters.pokemon", "pokemon.name"},
	{"move_effects.move_id", "move.id"},
	{"ability_effects.ability_id", "ability.id"},
	{"item_effects.item_id", "item.id"},
	{"type_relations.type_id", "type.id"},
	{"type_relations.target_type", "type.name"},
}

// BuildSystemPrompt creates the system message for a chat session. When
// tables is empty the schema section is omitted and the model is told to
// discover it with queries against sqlite_master.
func BuildSystemPrompt(tables []TableContext) string {
	var prompt strings.Builder

	prompt.WriteString("You are Pokédex, a Pokémon research assistant. ")
	prompt.WriteString("You answer questions using a local SQLite mirror of PokéAPI.\n\n")

	prompt.WriteString("# Tools\n\n")
	prompt.WriteString("- `run_query(sql)`: run ONE read-only SELECT. At most 500 rows are returned; ")
	prompt.WriteString("`truncated` is true when more matched. Writes and PRAGMA are rejected.\n")
	prompt.WriteString("- `run_python(code)`: run a short Python-like snippet (Starlark) for arithmetic or ")
	prompt.WriteString("post-processing. There are no imports and no database access: paste the values you need ")
	prompt.WriteString("into the snippet. `math`, `json`, `statistics` (mean, median, stdev), `sum` and `round` ")
	prompt.WriteString("are predeclared. Use print() to return output.\n\n")

	prompt.WriteString("# Database Schema\n\n")
	if len(tables) == 0 {
		prompt.WriteString("Schema unavailable. Discover it with `SELECT name, sql FROM sqlite_master WHERE type = 'table'`.\n\n")
	}
	for _, table := range tables {
		cols := make([]string, 0, len(table.Columns))
		for _, col := range table.Columns {
			entry := col.Name
			if col.DataType != "" {
				entry += " " + strings.ToLower(col.DataType)
			}
			if col.IsPrimaryKey {
				entry += " [PK]"
			}
			cols = append(cols, entry)
		}
		prompt.WriteString(fmt.Sprintf("- %s(%s)\n", table.Name, strings.Join(cols, ", ")))
	}
	if len(tables) > 0 {
		prompt.WriteString("\n")
	}

	prompt.WriteString("# Relationships\n\n")
	for _, r := range Relationships {
		prompt.WriteString(fmt.Sprintf("- %s → %s\n", r.From, r.To))
	}
	prompt.WriteString("\n")

	prompt.WriteString("# Conventions\n\n")
	prompt.WriteString("- Names are lowercase API slugs with hyphens: 'mr-mime', 'thunder-shock', 'special-attack'.\n")
	prompt.WriteString("- Stats are rows in pokemon_stats: hp, attack, defense, special-attack, special-defense, speed.\n")
	prompt.WriteString("- Boolean columns hold 0 or 1.\n")
	prompt.WriteString("- type_relations.damage_factor is 2.0 (super effective), 0.5 (not very effective) or 0.0 (no effect) ")
	prompt.WriteString("for attacks FROM type_id AGAINST target_type; relation names the PokéAPI damage relation.\n")
	prompt.WriteString("- Effect text tables hold one row per language; filter on language = 'en'.\n")
	prompt.WriteString("- evolution_chain_links has one row per species in a chain: stage 0 is the base, evolves_from names the previous species ")
	prompt.WriteString("and the remaining columns are the requirement to evolve into it.\n")
	prompt.WriteString("- Mega evolutions are pokemon_form rows with is_mega = 1.\n\n")

	prompt.WriteString("# Workflow\n\n")
	prompt.WriteString("1. Decide whether the question needs data. General Pokémon knowledge (e.g. what PP means) needs no tools.\n")
	prompt.WriteString("2. Otherwise query the mirror with the fewest statements that answer the question.\n")
	prompt.WriteString("3. If a tool returns {\"error\": true, ...}, read the message, fix the call and retry.\n")
	prompt.WriteString("4. Use run_python only for calculations that SQL cannot express simply.\n")
	prompt.WriteString("5. Answer concisely and cite the numbers you found. Include the SQL you ran in ```sql``` blocks.\n")

	return prompt.String()
}
