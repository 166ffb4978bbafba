package sql

import (
	"errors"
	"testing"
)

func TestValidateReadOnly_ValidQueries(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple select without semicolon",
			input:    "SELECT 1",
			expected: "SELECT 1",
		},
		{
			name:     "simple select with trailing semicolon",
			input:    "SELECT 1;",
			expected: "SELECT 1",
		},
		{
			name:     "select with trailing semicolon and whitespace",
			input:    "SELECT 1;  ",
			expected: "SELECT 1",
		},
		{
			name:     "lower case select with leading whitespace",
			input:    "  select name from pokemon  ",
			expected: "select name from pokemon",
		},
		{
			name:     "join with where clause",
			input:    "SELECT ps.base_stat FROM pokemon_stats ps JOIN pokemon p ON p.id = ps.pokemon_id WHERE p.name = 'pikachu';",
			expected: "SELECT ps.base_stat FROM pokemon_stats ps JOIN pokemon p ON p.id = ps.pokemon_id WHERE p.name = 'pikachu'",
		},
		{
			name:     "semicolon inside single quoted string",
			input:    "SELECT * FROM move WHERE name = 'test;test'",
			expected: "SELECT * FROM move WHERE name = 'test;test'",
		},
		{
			name:     "forbidden word inside string literal",
			input:    "SELECT * FROM move_effects WHERE effect LIKE '%delete%' OR effect LIKE '%Drop%'",
			expected: "SELECT * FROM move_effects WHERE effect LIKE '%delete%' OR effect LIKE '%Drop%'",
		},
		{
			name:     "SQL standard escaped single quote",
			input:    "SELECT * FROM item WHERE name = 'farfetch''d'",
			expected: "SELECT * FROM item WHERE name = 'farfetch''d'",
		},
		{
			name:     "forbidden word as quoted identifier",
			input:    `SELECT "update" FROM t`,
			expected: `SELECT "update" FROM t`,
		},
		{
			name:     "keyword as substring of identifier",
			input:    "SELECT created_at, updated_by, dropout FROM t",
			expected: "SELECT created_at, updated_by, dropout FROM t",
		},
		{
			name:     "replace scalar function",
			input:    "SELECT replace(name, '-', ' ') FROM pokemon",
			expected: "SELECT replace(name, '-', ' ') FROM pokemon",
		},
		{
			name:     "leading block comment",
			input:    "/* speed */ SELECT base_stat FROM pokemon_stats",
			expected: "/* speed */ SELECT base_stat FROM pokemon_stats",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateReadOnly(tt.input)
			if result.Error != nil {
				t.Fatalf("unexpected error: %v", result.Error)
			}
			if result.NormalizedSQL != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result.NormalizedSQL)
			}
		})
	}
}

func TestValidateReadOnly_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
		keyword string
	}{
		{name: "empty", input: "   ", wantErr: ErrEmptyQuery},
		{name: "insert", input: "INSERT INTO pokemon VALUES (1)", wantErr: ErrNotSelect},
		{name: "update", input: "UPDATE pokemon SET name = 'x'", wantErr: ErrNotSelect},
		{name: "pragma", input: "PRAGMA table_info(pokemon)", wantErr: ErrNotSelect},
		{name: "with clause", input: "WITH x AS (SELECT 1) SELECT * FROM x", wantErr: ErrNotSelect},
		{name: "replace statement", input: "REPLACE INTO pokemon (id) VALUES (1)", wantErr: ErrNotSelect},
		{name: "explain", input: "EXPLAIN SELECT 1", wantErr: ErrNotSelect},
		{name: "stacked statements", input: "SELECT 1; DROP TABLE pokemon", wantErr: ErrMultipleStatements},
		{name: "two trailing semicolons", input: "SELECT 1;;", wantErr: ErrMultipleStatements},
		{name: "semicolon in comment", input: "SELECT 1 -- ; \n", wantErr: nil, keyword: ""},
		{name: "select with attach", input: "SELECT 1 FROM (SELECT 1) WHERE 1 = 1 AND attach", keyword: "attach"},
		{name: "select with lower delete", input: "select * from pokemon where delete = 1", keyword: "delete"},
		{name: "select with create", input: "SELECT 1 UNION SELECT create FROM x", keyword: "create"},
		{name: "select with vacuum", input: "SELECT vacuum", keyword: "vacuum"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateReadOnly(tt.input)
			if tt.wantErr == nil && tt.keyword == "" {
				if result.Error != nil {
					t.Fatalf("unexpected error: %v", result.Error)
				}
				return
			}
			if result.Error == nil {
				t.Fatalf("expected error for %q", tt.input)
			}
			if result.NormalizedSQL != "" {
				t.Errorf("expected empty NormalizedSQL on error, got %q", result.NormalizedSQL)
			}
			if tt.wantErr != nil && !errors.Is(result.Error, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, result.Error)
			}
			if tt.keyword != "" {
				var kwErr *ForbiddenKeywordError
				if !errors.As(result.Error, &kwErr) {
					t.Fatalf("expected ForbiddenKeywordError, got %T: %v", result.Error, result.Error)
				}
				if kwErr.Keyword != tt.keyword {
					t.Errorf("expected keyword %q, got %q", tt.keyword, kwErr.Keyword)
				}
			}
		})
	}
}

func TestForbiddenKeywordError_Message(t *testing.T) {
	err := &ForbiddenKeywordError{Keyword: "drop"}
	want := "keyword DROP is not permitted; the database is read-only"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func TestScanTokens(t *testing.T) {
	words, semi := scanTokens(`SELECT a -- drop
	, [delete], ` + "`insert`" + ` /* update; */ FROM t WHERE x = 'a;b'`)
	if semi {
		t.Error("expected no semicolon outside literals and comments")
	}
	want := []string{"select", "a", "from", "t", "where", "x"}
	if len(words) != len(want) {
		t.Fatalf("expected words %v, got %v", want, words)
	}
	for i := range want {
		if words[i] != want[i] {
			t.Errorf("word %d: expected %q, got %q", i, want[i], words[i])
		}
	}
}

func TestStripTrailingSemicolon(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT 1", "SELECT 1"},
		{"SELECT 1;", "SELECT 1"},
		{"SELECT 1 ;\n", "SELECT 1"},
		{"SELECT 1;;", "SELECT 1;"},
	}
	for _, tt := range tests {
		if got := stripTrailingSemicolon(tt.input); got != tt.expected {
			t.Errorf("stripTrailingSemicolon(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
