package validate

import (
	"fmt"
	"strings"

	"chimera/internal/api"
)

// forbiddenKeywords are rejected anywhere in a read-only statement:
// data modification, data definition, privilege control, and procedure
// execution.
var forbiddenKeywords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true,
	"MERGE": true, "REPLACE": true,
	"DROP": true, "ALTER": true, "CREATE": true, "TRUNCATE": true,
	"GRANT": true, "REVOKE": true,
	"EXEC": true, "EXECUTE": true, "CALL": true,
	"ATTACH": true, "DETACH": true, "PRAGMA": true, "VACUUM": true,
}

// ddlKeywords are the only permitted leading tokens in DDL mode.
var ddlKeywords = map[string]bool{
	"CREATE": true, "ALTER": true, "DROP": true, "TRUNCATE": true,
}

// stripSQLComments removes -- line comments and /* */ block comments while
// respecting single-quoted strings ('' escapes) and double-quoted
// identifiers, so a comment marker inside a literal survives.
func stripSQLComments(sql string) string {
	var b strings.Builder
	b.Grow(len(sql))
	runes := []rune(sql)
	for i := 0; i < len(runes); {
		c := runes[i]
		switch {
		case c == '\'':
			// Single-quoted string; '' is an escaped quote.
			b.WriteRune(c)
			i++
			for i < len(runes) {
				b.WriteRune(runes[i])
				if runes[i] == '\'' {
					if i+1 < len(runes) && runes[i+1] == '\'' {
						i++
						b.WriteRune(runes[i])
					} else {
						break
					}
				}
				i++
			}
			i++
		case c == '"':
			// Double-quoted identifier.
			b.WriteRune(c)
			i++
			for i < len(runes) {
				b.WriteRune(runes[i])
				if runes[i] == '"' {
					break
				}
				i++
			}
			i++
		case c == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(runes) && runes[i+1] == '*':
			i += 2
			for i+1 < len(runes) && !(runes[i] == '*' && runes[i+1] == '/') {
				i++
			}
			i += 2
		default:
			b.WriteRune(c)
			i++
		}
	}
	return b.String()
}

// sqlWords tokenizes the comment-stripped SQL into uppercase word tokens,
// skipping string literals and quoted identifiers.
func sqlWords(stripped string) []string {
	var words []string
	runes := []rune(stripped)
	for i := 0; i < len(runes); {
		c := runes[i]
		switch {
		case c == '\'':
			i++
			for i < len(runes) {
				if runes[i] == '\'' {
					if i+1 < len(runes) && runes[i+1] == '\'' {
						i += 2
						continue
					}
					break
				}
				i++
			}
			i++
		case c == '"':
			i++
			for i < len(runes) && runes[i] != '"' {
				i++
			}
			i++
		case isWordRune(c):
			start := i
			for i < len(runes) && isWordRune(runes[i]) {
				i++
			}
			words = append(words, strings.ToUpper(string(runes[start:i])))
		default:
			i++
		}
	}
	return words
}

func isWordRune(c rune) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// hasInteriorSemicolon reports a ';' before the end of the statement,
// ignoring string literals and trailing terminators.
func hasInteriorSemicolon(stripped string) bool {
	trimmed := strings.TrimRight(stripped, " \t\r\n;")
	runes := []rune(trimmed)
	for i := 0; i < len(runes); {
		c := runes[i]
		switch {
		case c == '\'':
			i++
			for i < len(runes) {
				if runes[i] == '\'' {
					if i+1 < len(runes) && runes[i+1] == '\'' {
						i += 2
						continue
					}
					break
				}
				i++
			}
			i++
		case c == '"':
			i++
			for i < len(runes) && runes[i] != '"' {
				i++
			}
			i++
		case c == ';':
			return true
		default:
			i++
		}
	}
	return false
}

// SingleStatement verifies the body holds exactly one statement. A trailing
// terminator is tolerated; an interior one is ErrMultipleStatements.
func SingleStatement(sql string) error {
	if hasInteriorSemicolon(stripSQLComments(sql)) {
		return fmt.Errorf("statement contains an interior semicolon: %w", api.ErrMultipleStatements)
	}
	return nil
}

// ReadOnlySQL verifies a rendered SQL body is a single read-only statement:
// first significant token SELECT or WITH, no forbidden keyword anywhere
// outside string literals.
func ReadOnlySQL(sql string) error {
	stripped := stripSQLComments(sql)
	if strings.TrimSpace(stripped) == "" {
		return fmt.Errorf("empty statement: %w", api.ErrNotReadOnly)
	}
	if err := SingleStatement(sql); err != nil {
		return err
	}
	words := sqlWords(stripped)
	if len(words) == 0 {
		return fmt.Errorf("no SQL tokens found: %w", api.ErrNotReadOnly)
	}
	if words[0] != "SELECT" && words[0] != "WITH" {
		return fmt.Errorf("statement must start with SELECT or WITH, got %s: %w", words[0], api.ErrNotReadOnly)
	}
	for _, w := range words {
		if forbiddenKeywords[w] {
			return fmt.Errorf("forbidden keyword %s: %w", w, api.ErrNotReadOnly)
		}
	}
	return nil
}

// DDL verifies a body for the DDL meta-tool: single statement whose first
// significant token is CREATE, ALTER, DROP, or TRUNCATE.
func DDL(sql string) error {
	stripped := stripSQLComments(sql)
	if err := SingleStatement(sql); err != nil {
		return err
	}
	words := sqlWords(stripped)
	if len(words) == 0 {
		return fmt.Errorf("no SQL tokens found: %w", api.ErrInvalidStructure)
	}
	if !ddlKeywords[words[0]] {
		return fmt.Errorf("DDL must start with CREATE, ALTER, DROP, or TRUNCATE, got %s: %w",
			words[0], api.ErrInvalidStructure)
	}
	return nil
}

// HasLimitClause reports whether a LIMIT token appears outside strings and
// comments. Temporary test tools must not carry their own LIMIT; the
// engine appends one.
func HasLimitClause(sql string) bool {
	for _, w := range sqlWords(stripSQLComments(sql)) {
		if w == "LIMIT" {
			return true
		}
	}
	return false
}

// StripTrailingTerminator removes trailing whitespace and semicolons; used
// when the engine appends clauses to a stored body.
func StripTrailingTerminator(sql string) string {
	return strings.TrimRight(sql, " \t\r\n;")
}
