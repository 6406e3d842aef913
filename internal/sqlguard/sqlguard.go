// Package sqlguard classifies raw SQL text as read-only-safe or not. It is
// deliberately free of other dependencies: the storage engine calls it
// before executing any user-supplied query.
package sqlguard

import (
	"fmt"
	"strings"
)

// Reason identifies why a query was rejected.
type Reason string

const (
	ReasonEmpty              Reason = "empty"
	ReasonDisallowedKeyword  Reason = "disallowed_leading_keyword"
	ReasonForbiddenKeyword   Reason = "forbidden_keyword"
	ReasonMultipleStatements Reason = "multiple_statements"
)

// Error is a rejection with its reason and a human-readable message.
type Error struct {
	Reason  Reason
	Message string
}

func (e *Error) Error() string { return e.Message }

func reject(reason Reason, format string, args ...any) error {
	return &Error{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// allowedLeading are the statement-leading keywords accepted as read-only.
var allowedLeading = map[string]bool{
	"SELECT":  true,
	"WITH":    true,
	"VALUES":  true,
	"EXPLAIN": true,
}

// forbidden are keywords that must not appear anywhere at the top
// syntactic level, even inside an otherwise allowed statement.
var forbidden = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "REPLACE": true,
	"DROP": true, "CREATE": true, "ALTER": true,
	"ATTACH": true, "DETACH": true,
	"PRAGMA": true, "VACUUM": true, "REINDEX": true, "ANALYZE": true,
	"BEGIN": true, "COMMIT": true, "ROLLBACK": true,
	"SAVEPOINT": true, "RELEASE": true,
}

// Validate accepts exactly one read-only statement. A trailing semicolon
// and whitespace are tolerated; any content after the terminator is an
// error. Keywords inside string literals, quoted or bracketed identifiers,
// and comments are inert.
func Validate(sql string) error {
	words, terminated, rest := scan(sql)
	if len(words) == 0 {
		return reject(ReasonEmpty, "query is empty or contains only comments")
	}
	if terminated && strings.TrimSpace(rest) != "" {
		return reject(ReasonMultipleStatements, "query must contain exactly one statement")
	}

	leading := words[0]
	if !allowedLeading[leading] {
		return reject(ReasonDisallowedKeyword, "statement must start with a read-only keyword, got %q", leading)
	}
	for _, word := range words {
		if forbidden[word] {
			return reject(ReasonForbiddenKeyword, "forbidden keyword %q in query", word)
		}
	}
	return nil
}

// scan tokenizes sql into upper-cased bare words at the top syntactic
// level, stopping at the first unquoted semicolon. It returns the words,
// whether a terminator was seen, and everything after it.
func scan(sql string) (words []string, terminated bool, rest string) {
	i := 0
	n := len(sql)
	for i < n {
		c := sql[i]
		switch {
		case c == ';':
			return words, true, sql[i+1:]

		case c == '\'':
			// Single-quoted literal with doubled-quote escaping.
			i++
			for i < n {
				if sql[i] == '\'' {
					if i+1 < n && sql[i+1] == '\'' {
						i += 2
						continue
					}
					i++
					break
				}
				i++
			}

		case c == '"' || c == '`':
			quote := c
			i++
			for i < n && sql[i] != quote {
				i++
			}
			if i < n {
				i++
			}

		case c == '[':
			for i < n && sql[i] != ']' {
				i++
			}
			if i < n {
				i++
			}

		case c == '-' && i+1 < n && sql[i+1] == '-':
			for i < n && sql[i] != '\n' {
				i++
			}

		case c == '/' && i+1 < n && sql[i+1] == '*':
			i += 2
			for i+1 < n && !(sql[i] == '*' && sql[i+1] == '/') {
				i++
			}
			if i+1 < n {
				i += 2
			} else {
				i = n
			}

		case isWordByte(c):
			start := i
			for i < n && isWordByte(sql[i]) {
				i++
			}
			words = append(words, strings.ToUpper(sql[start:i]))

		default:
			i++
		}
	}
	return words, false, ""
}

func isWordByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
