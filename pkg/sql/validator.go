// Package sql provides SQL validation utilities.
package sql

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	// ErrEmptyQuery indicates the query has no content.
	ErrEmptyQuery = errors.New("query is empty")

	// ErrMultipleStatements indicates the query contains multiple SQL statements.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only a single SELECT is permitted")

	// ErrNotSelect indicates the statement does not begin with SELECT.
	ErrNotSelect = errors.New("only SELECT statements are permitted")
)

// WriteKeywords are rejected anywhere in a statement outside string literals
// and comments. REPLACE is absent because replace() is a scalar function;
// a REPLACE statement still fails the leading-SELECT check.
var WriteKeywords = []string{
	"insert",
	"update",
	"delete",
	"drop",
	"alter",
	"attach",
	"detach",
	"pragma",
	"create",
	"vacuum",
	"reindex",
}

// ForbiddenKeywordError reports a write or schema keyword found in a query.
type ForbiddenKeywordError struct {
	Keyword string
}

func (e *ForbiddenKeywordError) Error() string {
	return fmt.Sprintf("keyword %s is not permitted; the database is read-only", strings.ToUpper(e.Keyword))
}

// ValidationResult contains the normalized SQL and any validation errors.
type ValidationResult struct {
	NormalizedSQL string
	Error         error
}

// ValidateReadOnly accepts exactly one SELECT statement.
//
// The validation order is:
// 1. Strip trailing semicolon and whitespace (normalize)
// 2. Reject any remaining semicolon outside string literals and comments
// 3. Require SELECT as the first keyword
// 4. Reject write/schema keywords appearing as whole words
func ValidateReadOnly(sqlQuery string) ValidationResult {
	sqlQuery = strings.TrimSpace(sqlQuery)
	if sqlQuery == "" {
		return ValidationResult{Error: ErrEmptyQuery}
	}

	normalized := stripTrailingSemicolon(sqlQuery)
	words, hasSemicolon := scanTokens(normalized)

	if hasSemicolon {
		return ValidationResult{Error: ErrMultipleStatements}
	}
	if len(words) == 0 || words[0] != "select" {
		return ValidationResult{Error: ErrNotSelect}
	}
	for _, w := range words {
		if isWriteKeyword(w) {
			return ValidationResult{Error: &ForbiddenKeywordError{Keyword: w}}
		}
	}

	return ValidationResult{NormalizedSQL: normalized}
}

func isWriteKeyword(word string) bool {
	for _, kw := range WriteKeywords {
		if word == kw {
			return true
		}
	}
	return false
}

// scanTokens returns the lower-cased bare words of sqlQuery and whether a
// semicolon appears outside string literals, quoted identifiers and comments.
// Quoted identifiers ("update", [update], `update`) are not words.
func scanTokens(sqlQuery string) (words []string, hasSemicolon bool) {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
		stateBacktick
		stateBracket
		stateLineComment
		stateBlockComment
	)

	runes := []rune(sqlQuery)
	state := stateNormal
	var word strings.Builder

	flush := func() {
		if word.Len() > 0 {
			words = append(words, strings.ToLower(word.String()))
			word.Reset()
		}
	}

	for i := 0; i < len(runes); i++ {
		char := runes[i]
		var next rune
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		switch state {
		case stateNormal:
			if char == '_' || unicode.IsLetter(char) || unicode.IsDigit(char) {
				word.WriteRune(char)
				continue
			}
			flush()
			switch {
			case char == ';':
				hasSemicolon = true
			case char == '\'':
				state = stateSingleQuote
			case char == '"':
				state = stateDoubleQuote
			case char == '`':
				state = stateBacktick
			case char == '[':
				state = stateBracket
			case char == '-' && next == '-':
				state = stateLineComment
				i++
			case char == '/' && next == '*':
				state = stateBlockComment
				i++
			}
		case stateSingleQuote:
			// A doubled quote ('') exits and immediately re-enters.
			if char == '\'' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if char == '"' {
				state = stateNormal
			}
		case stateBacktick:
			if char == '`' {
				state = stateNormal
			}
		case stateBracket:
			if char == ']' {
				state = stateNormal
			}
		case stateLineComment:
			if char == '\n' {
				state = stateNormal
			}
		case stateBlockComment:
			if char == '*' && next == '/' {
				state = stateNormal
				i++
			}
		}
	}
	flush()

	return words, hasSemicolon
}

// stripTrailingSemicolon removes a trailing semicolon and any whitespace after it.
func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")

	if strings.HasSuffix(sqlQuery, ";") {
		sqlQuery = strings.TrimSuffix(sqlQuery, ";")
		sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	}

	return sqlQuery
}
