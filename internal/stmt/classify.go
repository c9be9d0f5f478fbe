// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package stmt

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// rowKeywords are the leading keywords of statements that produce a result
// set.
var rowKeywords = map[string]bool{
	"SELECT":   true,
	"WITH":     true,
	"SHOW":     true,
	"PRAGMA":   true,
	"EXPLAIN":  true,
	"DESCRIBE": true,
	"VALUES":   true,
}

// ReturnsRows reports whether query produces a result set rather than a
// result descriptor. This is the case for queries starting with a reading
// keyword and for any statement with a RETURNING clause. Comments and quoted
// sections of the query are ignored.
func ReturnsRows(query string) bool {
	s := &scanner{input: query}
	first := true
	for {
		word, ok := s.nextWord()
		if !ok {
			return false
		}
		word = strings.ToUpper(word)
		if first && rowKeywords[word] {
			return true
		}
		first = false
		if word == "RETURNING" {
			return true
		}
	}
}

// scanner splits a query into words, jumping over string literals, quoted
// identifiers and comments.
type scanner struct {
	input string
	pos   int
}

func (s *scanner) peek() (rune, int) {
	if s.pos >= len(s.input) {
		return 0, 0
	}
	return utf8.DecodeRuneInString(s.input[s.pos:])
}

// nextWord returns the next bare word of the input.
func (s *scanner) nextWord() (string, bool) {
	for s.pos < len(s.input) {
		if s.skipComment() || s.skipQuoted() {
			continue
		}
		c, size := s.peek()
		if isNameChar(c) {
			start := s.pos
			for s.pos < len(s.input) {
				c, size := s.peek()
				if !isNameChar(c) {
					break
				}
				s.pos += size
			}
			return s.input[start:s.pos], true
		}
		s.pos += size
	}
	return "", false
}

// skipQuoted jumps over single, double and back quoted sections of input.
// Doubled up quotes are escaped. An unterminated section runs to the end of
// the input.
func (s *scanner) skipQuoted() bool {
	q, _ := s.peek()
	if q != '\'' && q != '"' && q != '`' {
		return false
	}
	s.pos++
	for s.pos < len(s.input) {
		if s.input[s.pos] == byte(q) {
			s.pos++
			if s.pos < len(s.input) && s.input[s.pos] == byte(q) {
				s.pos++
				continue
			}
			return true
		}
		s.pos++
	}
	return true
}

// skipComment jumps over "--" line comments and "/* */" block comments.
func (s *scanner) skipComment() bool {
	rest := s.input[s.pos:]
	switch {
	case strings.HasPrefix(rest, "--"):
		if i := strings.IndexByte(rest, '\n'); i >= 0 {
			s.pos += i + 1
		} else {
			s.pos = len(s.input)
		}
		return true
	case strings.HasPrefix(rest, "/*"):
		if i := strings.Index(rest[2:], "*/"); i >= 0 {
			s.pos += i + 4
		} else {
			s.pos = len(s.input)
		}
		return true
	}
	return false
}

// isNameChar returns true if the given char can be part of a name.
func isNameChar(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_'
}
