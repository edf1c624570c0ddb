package sql

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type QueryType int

// Ordered by how much a statement can change: the type of a script is the
// highest of its statements.
const (
	DQL QueryType = iota
	DML
	DDL
)

func (qt QueryType) String() string {
	return []string{"DQL", "DML", "DDL"}[qt]
}

func (qt QueryType) IsSafe() bool {
	return qt == DQL
}

var keywords = map[string]QueryType{
	"SELECT":   DQL,
	"WITH":     DQL,
	"SHOW":     DQL,
	"DESCRIBE": DQL,
	"EXPLAIN":  DQL,
	"VALUES":   DQL,
	"INSERT":   DML,
	"UPDATE":   DML,
	"DELETE":   DML,
	"MERGE":    DML,
	"COPY":     DML,
	"CREATE":   DDL,
	"ALTER":    DDL,
	"DROP":     DDL,
	"TRUNCATE": DDL,
	"PAUSE":    DDL,
	"RESUME":   DDL,
}

// Leading keywords whose body may hold a modifying statement.
var wrappers = map[string]bool{
	"WITH":    true,
	"EXPLAIN": true,
}

// SimpleQueryIdentifier classifies every ';'-separated statement of query by
// its leading keyword and returns the highest type found. Statements led by
// WITH or EXPLAIN are also searched for modifying keywords. Comments and
// quoted text are ignored.
func SimpleQueryIdentifier(query string) (QueryType, error) {
	stmts := statements(query)
	if len(stmts) == 0 {
		return 0, fmt.Errorf("Unable to identify query type")
	}

	result := DQL
	for _, words := range stmts {
		qt, ok := keywords[words[0]]
		if !ok {
			return 0, fmt.Errorf("Unable to identify query type")
		}

		if wrappers[words[0]] {
			for _, w := range words[1:] {
				if inner, ok := keywords[w]; ok {
					qt = max(qt, inner)
				}
			}
		}
		result = max(result, qt)
	}

	return result, nil
}

// statements splits query on ';' and returns the upper-cased words of each
// non-empty statement. Words inside comments, string literals and quoted
// identifiers are dropped. An unterminated comment or quote swallows the
// rest of the text.
func statements(query string) [][]string {
	var (
		stmts [][]string
		words []string
	)
	flush := func() {
		if len(words) > 0 {
			stmts = append(stmts, words)
		}
		words = nil
	}

	s := query
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		switch {
		case strings.HasPrefix(s, "--"):
			_, rest, found := strings.Cut(s, "\n")
			if !found {
				rest = ""
			}
			s = rest
		case strings.HasPrefix(s, "/*"):
			_, rest, found := strings.Cut(s[2:], "*/")
			if !found {
				rest = ""
			}
			s = rest
		case s[0] == '\'' || s[0] == '"' || s[0] == '`':
			end := strings.IndexByte(s[1:], s[0])
			if end < 0 {
				s = ""
				continue
			}
			s = s[end+2:]
		case s[0] == ';':
			flush()
			s = s[1:]
		case isWordStart(r):
			end := strings.IndexFunc(s, func(r rune) bool {
				return !isWordPart(r)
			})
			if end < 0 {
				end = len(s)
			}
			words = append(words, strings.ToUpper(s[:end]))
			s = s[end:]
		default:
			s = s[size:]
		}
	}
	flush()

	return stmts
}

func isWordStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isWordPart(r rune) bool {
	return isWordStart(r) || unicode.IsDigit(r)
}
