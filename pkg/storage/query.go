package storage

import (
	"strings"
	"unicode"
)

// BuildFTSQuery turns free text into an FTS5 MATCH expression: each
// whitespace-separated token becomes a quoted prefix term and the terms are
// implicitly AND-ed. Quotes inside a token are doubled so user input can
// never be read as FTS syntax. Tokens without a letter or digit are dropped,
// since the index holds nothing for them. Blank text yields "".
func BuildFTSQuery(text string) string {
	tokens := strings.Fields(text)
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if strings.IndexFunc(tok, isWordRune) < 0 {
			continue
		}
		terms = append(terms, `"`+strings.ReplaceAll(tok, `"`, `""`)+`"*`)
	}
	return strings.Join(terms, " ")
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// likePattern wraps text for a LIKE ... ESCAPE '\' contains match.
func likePattern(text string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(text) + "%"
}

// placeholders returns n comma separated bind markers. next produces the
// marker for the i-th argument of the statement.
func placeholders(n, offset int, next func(i int) string) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(next(offset + i + 1))
	}
	return b.String()
}

func questionMark(int) string { return "?" }

// chunk splits n rows into [start, end) windows of at most size rows.
func chunk(n, size int) [][2]int {
	if size <= 0 {
		size = n
	}
	var windows [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		windows = append(windows, [2]int{start, end})
	}
	return windows
}
