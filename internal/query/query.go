// Package query implements Apollo's compact query language: a sequence
// of field predicates and free-text terms that lower either to a SQL
// WHERE clause against the tracks table or to an FTS5 MATCH expression.
//
// Grounded on the teacher's internal/library/queries.go hand-rolled SQL
// construction (no query-builder dependency anywhere in the retrieved
// pack) and internal/search/search.go's tokenize-then-match shape,
// generalized from fuzzy matching to field:value parsing.
package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/apollo-music/apollo/internal/model"
)

// TermKind distinguishes the three term shapes the grammar accepts.
type TermKind int

const (
	TermField TermKind = iota
	TermRange
	TermFree
)

var validKeys = map[string]string{
	"artist": "artist",
	"album":  "album_title",
	"title":  "title",
	"genre":  "genres",
	"year":   "year",
	"format": "format",
}

// Term is one parsed unit of the query language.
type Term struct {
	Kind     TermKind
	Key      string // set for TermField/TermRange
	Value    string // set for TermField/TermFree
	RangeLo  int
	RangeHi  int
}

// Query is a conjunction of terms.
type Query struct {
	Terms []Term
}

const ftsMetacharacters = `"*:-`

// Parse tokenizes and parses s into a Query. Quoted values (`key:"a b"`)
// are treated as a single token. An empty query is valid and matches
// everything.
func Parse(s string) (*Query, error) {
	tokens, err := tokenize(s)
	if err != nil {
		return nil, err
	}

	q := &Query{}
	for _, tok := range tokens {
		term, err := parseToken(tok)
		if err != nil {
			return nil, err
		}
		q.Terms = append(q.Terms, term)
	}
	return q, nil
}

func tokenize(s string) ([]string, error) {
	var tokens []string
	var b strings.Builder
	inQuote := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == ' ' && !inQuote:
			if b.Len() > 0 {
				tokens = append(tokens, b.String())
				b.Reset()
			}
		default:
			b.WriteByte(c)
		}
	}
	if inQuote {
		return nil, model.BadQuery("unterminated quote")
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens, nil
}

func parseToken(tok string) (Term, error) {
	idx := strings.Index(tok, ":")
	if idx <= 0 {
		return Term{Kind: TermFree, Value: unquote(tok)}, nil
	}

	key := strings.ToLower(tok[:idx])
	value := unquote(tok[idx+1:])

	col, ok := validKeys[key]
	if !ok {
		return Term{}, model.BadQuery(fmt.Sprintf("unknown field %q", key))
	}

	if key == "year" {
		if lo, hi, ok := parseRange(value); ok {
			return Term{Kind: TermRange, Key: col, RangeLo: lo, RangeHi: hi}, nil
		}
		if _, err := strconv.Atoi(value); err != nil {
			return Term{}, model.BadQuery(fmt.Sprintf("malformed year %q", value))
		}
	}

	return Term{Kind: TermField, Key: col, Value: value}, nil
}

func parseRange(value string) (lo, hi int, ok bool) {
	idx := strings.Index(value, "..")
	if idx < 0 {
		return 0, 0, false
	}
	loStr, hiStr := value[:idx], value[idx+2:]
	lo, errLo := strconv.Atoi(loStr)
	hi, errHi := strconv.Atoi(hiStr)
	if errLo != nil || errHi != nil {
		return 0, 0, false
	}
	return lo, hi, true
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// containsFTSMeta reports whether term has any FTS5 metacharacter.
func containsFTSMeta(s string) bool {
	return strings.ContainsAny(s, ftsMetacharacters)
}

// Lower turns q into a SQL WHERE fragment and its positional args,
// suitable for store.ListTracks. Free terms are ANDed in as an FTS
// subquery (via an IN against tracks_fts).
func Lower(q *Query) (where string, args []any) {
	var clauses []string
	var freeTerms []string

	for _, t := range q.Terms {
		switch t.Kind {
		case TermField:
			if t.Key == "genres" {
				clauses = append(clauses, "genres LIKE ?")
				args = append(args, "%\""+t.Value+"\"%")
			} else if t.Key == "year" {
				clauses = append(clauses, "year = ?")
				args = append(args, t.Value)
			} else {
				clauses = append(clauses, t.Key+" = ? COLLATE NOCASE")
				args = append(args, t.Value)
			}
		case TermRange:
			clauses = append(clauses, "year BETWEEN ? AND ?")
			args = append(args, t.RangeLo, t.RangeHi)
		case TermFree:
			freeTerms = append(freeTerms, t.Value)
		}
	}

	if len(freeTerms) > 0 {
		clauses = append(clauses, "id IN (SELECT track_id FROM tracks_fts WHERE tracks_fts MATCH ?)")
		args = append(args, FTSExpression(freeTerms))
	}

	return strings.Join(clauses, " AND "), args
}

// FTSExpression builds the MATCH expression for a set of free-text
// tokens: each token is prefix-expanded (`term*`) unless it already
// contains an FTS metacharacter, in which case it is passed through
// verbatim, per spec §4.6.
func FTSExpression(terms []string) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		if containsFTSMeta(t) {
			parts[i] = t
			continue
		}
		parts[i] = t + "*"
	}
	return strings.Join(parts, " ")
}
