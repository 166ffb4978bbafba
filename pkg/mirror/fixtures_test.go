package mirror

import (
	"context"
	"fmt"
	"sync"

	"github.com/ekaya-inc/pokedex/pkg/pokeapi"
)

const pikachuJSON = `{
	"id": 25,
	"name": "pikachu",
	"base_experience": 112,
	"height": 4,
	"weight": 60,
	"is_default": true,
	"order": 35,
	"species": {"name": "pikachu", "url": "https://pokeapi.co/api/v2/pokemon-species/25/"},
	"types": [
		{"slot": 1, "type": {"name": "electric", "url": "https://pokeapi.co/api/v2/type/13/"}}
	],
	"stats": [
		{"base_stat": 35, "effort": 0, "stat": {"name": "hp"}},
		{"base_stat": 55, "effort": 0, "stat": {"name": "attack"}},
		{"base_stat": 90, "effort": 2, "stat": {"name": "speed"}}
	],
	"abilities": [
		{"ability": {"name": "static"}, "is_hidden": false, "slot": 1},
		{"ability": {"name": "lightning-rod"}, "is_hidden": true, "slot": 3}
	],
	"moves": [
		{
			"move": {"name": "thunder-shock"},
			"version_group_details": [
				{"level_learned_at": 1, "move_learn_method": {"name": "level-up"}, "version_group": {"name": "red-blue"}},
				{"level_learned_at": 1, "move_learn_method": {"name": "level-up"}, "version_group": {"name": "yellow"}}
			]
		},
		{
			"move": {"name": "thunderbolt"},
			"version_group_details": [
				{"level_learned_at": 0, "move_learn_method": {"name": "machine"}, "version_group": {"name": "red-blue"}}
			]
		}
	],
	"held_items": [
		{
			"item": {"name": "light-ball"},
			"version_details": [{"rarity": 5, "version": {"name": "yellow"}}]
		}
	]
}`

const bulbasaurJSON = `{
	"id": 1,
	"name": "bulbasaur",
	"base_experience": null,
	"height": 7,
	"weight": 69,
	"is_default": true,
	"order": 1,
	"species": {"name": "bulbasaur", "url": "https://pokeapi.co/api/v2/pokemon-species/1/"},
	"types": [
		{"slot": 1, "type": {"name": "grass"}},
		{"slot": 2, "type": {"name": "poison"}}
	],
	"stats": [{"base_stat": 45, "effort": 0, "stat": {"name": "speed"}}],
	"abilities": [],
	"moves": [],
	"held_items": []
}`

const electricTypeJSON = `{
	"id": 13,
	"name": "electric",
	"generation": {"name": "generation-i", "url": "https://pokeapi.co/api/v2/generation/1/"},
	"move_damage_class": {"name": "special"},
	"damage_relations": {
		"double_damage_to": [{"name": "water"}, {"name": "flying"}],
		"half_damage_to": [{"name": "grass"}],
		"no_damage_to": [{"name": "ground"}],
		"double_damage_from": [{"name": "ground"}],
		"half_damage_from": [],
		"no_damage_from": []
	}
}`

const thunderboltJSON = `{
	"id": 85,
	"name": "thunderbolt",
	"accuracy": 100,
	"effect_chance": 10,
	"pp": 15,
	"priority": 0,
	"power": 90,
	"contest_type": {"name": "cool"},
	"damage_class": {"name": "special"},
	"generation": {"url": "https://pokeapi.co/api/v2/generation/1/"},
	"target": {"name": "selected-pokemon"},
	"type": {"name": "electric"},
	"effect_entries": [
		{"effect": "Has a $effect_chance% chance to paralyze the target.", "short_effect": "May paralyze.", "language": {"name": "en"}}
	]
}`

const potionJSON = `{
	"id": 17,
	"name": "potion",
	"cost": 200,
	"fling_power": 30,
	"fling_effect": null,
	"category": {"name": "healing"},
	"attributes": [{"name": "countable"}, {"name": "consumable"}, {"name": "usable-in-battle"}],
	"effect_entries": [{"effect": "Restores 20 HP.", "short_effect": "Restores 20 HP.", "language": {"name": "en"}}]
}`

const pichuChainJSON = `{
	"id": 10,
	"baby_trigger_item": null,
	"chain": {
		"is_baby": true,
		"species": {"name": "pichu", "url": "https://pokeapi.co/api/v2/pokemon-species/172/"},
		"evolution_details": [],
		"evolves_to": [
			{
				"is_baby": false,
				"species": {"name": "pikachu", "url": "https://pokeapi.co/api/v2/pokemon-species/25/"},
				"evolution_details": [
					{"trigger": {"name": "level-up"}, "min_happiness": 220, "min_level": null, "item": null, "time_of_day": "", "needs_overworld_rain": false}
				],
				"evolves_to": [
					{
						"is_baby": false,
						"species": {"name": "raichu", "url": "https://pokeapi.co/api/v2/pokemon-species/26/"},
						"evolution_details": [
							{"trigger": {"name": "use-item"}, "item": {"name": "thunder-stone"}, "min_level": null, "min_happiness": null}
						],
						"evolves_to": []
					}
				]
			}
		]
	}
}`

const megaFormJSON = `{
	"id": 10033,
	"name": "venusaur-mega",
	"form_name": "mega",
	"order": 4,
	"form_order": 2,
	"is_default": true,
	"is_battle_only": true,
	"is_mega": true,
	"pokemon": {"name": "venusaur-mega", "url": "https://pokeapi.co/api/v2/pokemon/10033/"},
	"version_group": {"name": "x-y"},
	"types": [
		{"slot": 1, "type": {"name": "grass"}},
		{"slot": 2, "type": {"name": "poison"}}
	]
}`

const machineJSON = `{
	"id": 1,
	"item": {"name": "tm01", "url": "https://pokeapi.co/api/v2/item/305/"},
	"move": {"name": "mega-punch", "url": "https://pokeapi.co/api/v2/move/5/"},
	"version_group": {"name": "red-blue"}
}`

const viridianAreaJSON = `{
	"id": 296,
	"name": "viridian-forest-area",
	"game_index": 51,
	"location": {"name": "viridian-forest", "url": "https://pokeapi.co/api/v2/location/155/"},
	"pokemon_encounters": [
		{
			"pokemon": {"name": "pikachu"},
			"version_details": [
				{"max_chance": 5, "version": {"name": "red"}},
				{"max_chance": 5, "version": {"name": "blue"}}
			]
		}
	]
}`

// fakeSource serves fixed documents. Resources without an entry list as empty.
type fakeSource struct {
	mu        sync.Mutex
	lists     map[string][]pokeapi.NamedResource
	docs      map[string]string
	listErrs  map[string]error
	fetchErrs map[string]error
	fetches   int
	listCalls int
}

func newFakeSource() *fakeSource {
	s := &fakeSource{
		lists:     map[string][]pokeapi.NamedResource{},
		docs:      map[string]string{},
		listErrs:  map[string]error{},
		fetchErrs: map[string]error{},
	}
	s.add("pokemon", "pikachu", 25, pikachuJSON)
	s.add("pokemon", "bulbasaur", 1, bulbasaurJSON)
	s.add("type", "electric", 13, electricTypeJSON)
	s.add("move", "thunderbolt", 85, thunderboltJSON)
	s.add("item", "potion", 17, potionJSON)
	return s
}

func (s *fakeSource) add(resource, name string, id int, doc string) {
	url := fmt.Sprintf("https://pokeapi.test/api/v2/%s/%d/", resource, id)
	s.lists[resource] = append(s.lists[resource], pokeapi.NamedResource{Name: name, URL: url})
	s.docs[url] = doc
}

func (s *fakeSource) remove(resource, name string) {
	kept := s.lists[resource][:0]
	for _, r := range s.lists[resource] {
		if r.Name != name {
			kept = append(kept, r)
		}
	}
	s.lists[resource] = kept
}

func (s *fakeSource) List(_ context.Context, resource string) ([]pokeapi.NamedResource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if err := s.listErrs[resource]; err != nil {
		return nil, err
	}
	return append([]pokeapi.NamedResource(nil), s.lists[resource]...), nil
}

func (s *fakeSource) Fetch(_ context.Context, url string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if err := s.fetchErrs[url]; err != nil {
		return nil, err
	}
	doc, ok := s.docs[url]
	if !ok {
		return nil, &pokeapi.StatusError{URL: url, StatusCode: 404}
	}
	return []byte(doc), nil
}

func (s *fakeSource) ListURL(resource string) (string, error) {
	return "https://pokeapi.test/api/v2/" + resource + "/?limit=100&offset=0", nil
}

func (s *fakeSource) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

func namedResource(name, url string) pokeapi.NamedResource {
	return pokeapi.NamedResource{Name: name, URL: url}
}
