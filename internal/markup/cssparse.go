package markup

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aymerick/douceur/css"
	"github.com/gorilla/css/scanner"
)

// nestedAtRules hold a rule list rather than declarations.
var nestedAtRules = map[string]bool{
	"media": true, "supports": true, "layer": true, "container": true, "document": true,
}

var importantSuffix = regexp.MustCompile(`(?i)\s*!\s*important\s*$`)

// ParseStylesheet parses a stylesheet the way a browser recovers from
// author mistakes: a malformed declaration is skipped up to the next
// semicolon and a malformed rule is skipped up to the end of its block.
// Only text that cannot be tokenized (an unclosed string or comment) is
// an error.
func ParseStylesheet(text string) ([]*css.Rule, error) {
	toks, err := tokenize(text)
	if err != nil {
		return nil, fmt.Errorf("parse stylesheet: %w", err)
	}
	return parseRuleList(toks), nil
}

// ParseDeclarations parses the body of a style attribute, dropping
// malformed declarations. Untokenizable input yields nil.
func ParseDeclarations(text string) []*css.Declaration {
	toks, err := tokenize(text)
	if err != nil {
		return nil
	}
	return parseDeclarationList(toks)
}

func tokenize(text string) ([]*scanner.Token, error) {
	var toks []*scanner.Token
	s := scanner.New(text)
	for {
		tok := s.Next()
		switch tok.Type {
		case scanner.TokenEOF:
			return toks, nil
		case scanner.TokenError:
			return nil, fmt.Errorf("%s at line %d, column %d", tok.Value, tok.Line, tok.Column)
		case scanner.TokenBOM:
		case scanner.TokenComment:
			toks = append(toks, &scanner.Token{Type: scanner.TokenS, Value: " ", Line: tok.Line, Column: tok.Column})
		default:
			toks = append(toks, tok)
		}
	}
}

func isChar(tok *scanner.Token, c string) bool {
	return tok.Type == scanner.TokenChar && tok.Value == c
}

// depthDelta reports how a token changes (), [] and {} nesting.
func depthDelta(tok *scanner.Token) int {
	switch tok.Type {
	case scanner.TokenFunction:
		return 1
	case scanner.TokenChar:
		switch tok.Value {
		case "(", "[", "{":
			return 1
		case ")", "]", "}":
			return -1
		}
	}
	return 0
}

func joinTokens(toks []*scanner.Token) string {
	var b strings.Builder
	for _, t := range toks {
		b.WriteString(t.Value)
	}
	return strings.TrimSpace(b.String())
}

// consumeBlock takes the tokens after an opening brace up to its matching
// closing brace. End of input closes any open block.
func consumeBlock(toks []*scanner.Token) (block, rest []*scanner.Token) {
	depth := 0
	for i, t := range toks {
		switch {
		case isChar(t, "{"):
			depth++
		case isChar(t, "}"):
			if depth == 0 {
				return toks[:i], toks[i+1:]
			}
			depth--
		}
	}
	return toks, nil
}

func parseRuleList(toks []*scanner.Token) []*css.Rule {
	var rules []*css.Rule
	for len(toks) > 0 {
		tok := toks[0]
		switch tok.Type {
		case scanner.TokenS, scanner.TokenCDO, scanner.TokenCDC:
			toks = toks[1:]
			continue
		}

		var rule *css.Rule
		if tok.Type == scanner.TokenAtKeyword {
			rule, toks = parseAtRule(toks)
		} else {
			rule, toks = parseQualifiedRule(toks)
		}
		if rule != nil {
			rules = append(rules, rule)
		}
	}
	return rules
}

// parseAtRule reads an at-rule that ends either with a semicolon or with
// a block.
func parseAtRule(toks []*scanner.Token) (*css.Rule, []*scanner.Token) {
	rule := css.NewRule(css.AtRule)
	rule.Name = toks[0].Value
	toks = toks[1:]

	depth := 0
	for i, t := range toks {
		if depth == 0 && isChar(t, ";") {
			rule.Prelude = joinTokens(toks[:i])
			return rule, toks[i+1:]
		}
		if depth == 0 && isChar(t, "{") {
			rule.Prelude = joinTokens(toks[:i])
			block, rest := consumeBlock(toks[i+1:])
			if nestedAtRules[strings.TrimPrefix(strings.ToLower(rule.Name), "@")] {
				rule.Rules = parseRuleList(block)
			} else {
				rule.Declarations = parseDeclarationList(block)
			}
			return rule, rest
		}
		if d := depthDelta(t); d != 0 && !isChar(t, "{") && !isChar(t, "}") {
			depth += d
		}
	}
	return nil, nil
}

// parseQualifiedRule reads a prelude and its declaration block. A stray
// closing brace becomes part of the prelude, which then fails to compile
// as a selector and drops only this rule.
func parseQualifiedRule(toks []*scanner.Token) (*css.Rule, []*scanner.Token) {
	depth := 0
	for i, t := range toks {
		if depth == 0 && isChar(t, "{") {
			prelude := joinTokens(toks[:i])
			block, rest := consumeBlock(toks[i+1:])
			if prelude == "" {
				return nil, rest
			}
			rule := css.NewRule(css.QualifiedRule)
			rule.Prelude = prelude
			rule.Selectors = splitSelectors(toks[:i])
			rule.Declarations = parseDeclarationList(block)
			return rule, rest
		}
		if d := depthDelta(t); d != 0 && !isChar(t, "{") && !isChar(t, "}") {
			depth += d
		}
	}
	return nil, nil
}

// splitTopLevel splits tokens at every sep character outside brackets.
func splitTopLevel(toks []*scanner.Token, sep string) [][]*scanner.Token {
	var parts [][]*scanner.Token
	depth, start := 0, 0
	for i, t := range toks {
		if depth == 0 && isChar(t, sep) {
			parts = append(parts, toks[start:i])
			start = i + 1
			continue
		}
		depth += depthDelta(t)
		if depth < 0 {
			depth = 0
		}
	}
	return append(parts, toks[start:])
}

func splitSelectors(toks []*scanner.Token) []string {
	parts := splitTopLevel(toks, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, joinTokens(p))
	}
	return out
}

func parseDeclarationList(toks []*scanner.Token) []*css.Declaration {
	var out []*css.Declaration
	for _, part := range splitTopLevel(toks, ";") {
		if d := parseDeclaration(part); d != nil {
			out = append(out, d)
		}
	}
	return out
}

// parseDeclaration returns nil for anything that is not "name: value".
func parseDeclaration(toks []*scanner.Token) *css.Declaration {
	colon := -1
	for i, t := range toks {
		if isChar(t, ":") {
			colon = i
			break
		}
		if depthDelta(t) != 0 {
			return nil
		}
	}
	if colon < 0 {
		return nil
	}
	for _, t := range toks[colon+1:] {
		if isChar(t, "{") || isChar(t, "}") {
			return nil
		}
	}

	name := joinTokens(toks[:colon])
	if !isPropertyName(name) {
		return nil
	}
	value := joinTokens(toks[colon+1:])
	important := false
	if importantSuffix.MatchString(value) {
		important = true
		value = strings.TrimSpace(importantSuffix.ReplaceAllString(value, ""))
	}
	if value == "" {
		return nil
	}
	return &css.Declaration{Property: name, Value: value, Important: important}
}

func isPropertyName(s string) bool {
	body := strings.TrimPrefix(strings.TrimPrefix(s, "-"), "-")
	if body == "" {
		return false
	}
	for i, r := range body {
		switch {
		case r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= 0x80:
		case i > 0 && (r == '-' || r >= '0' && r <= '9'):
		default:
			return false
		}
	}
	return true
}
