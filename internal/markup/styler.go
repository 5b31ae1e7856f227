package markup

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"github.com/aymerick/douceur/css"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Cascade ranks, lowest first.
const (
	rankUserAgent = iota
	rankAuthor
	rankInline
	rankAuthorImportant
	rankInlineImportant
)

// fontSizeKeywords maps absolute size keywords to pixels.
var fontSizeKeywords = map[string]float64{
	"xx-small":  9,
	"x-small":   10,
	"small":     13,
	"medium":    16,
	"large":     18,
	"x-large":   24,
	"xx-large":  32,
	"xxx-large": 48,
}

var lengthKeywords = map[string]bool{
	"auto": true, "none": true, "normal": true, "fit-content": true,
	"min-content": true, "max-content": true, "content": true,
}

type compiledRule struct {
	selectors []cascadia.Sel
	decls     []*css.Declaration
	ua        bool
	order     int
}

type cascaded struct {
	property string
	value    string
	rank     int
	spec     cascadia.Specificity
	order    int
}

// Styler computes styles for the elements of one parsed document. It is
// safe for concurrent use.
type Styler struct {
	rules []compiledRule

	mu    sync.Mutex
	cache map[*html.Node]Style
}

var (
	uaOnce  sync.Once
	uaRules []*css.Rule
	uaErr   error
)

func userAgentRules() ([]*css.Rule, error) {
	uaOnce.Do(func() {
		rules, err := ParseStylesheet(userAgentCSS)
		if err != nil {
			uaErr = fmt.Errorf("user agent stylesheet: %w", err)
			return
		}
		uaRules = rules
	})
	return uaRules, uaErr
}

// NewStyler collects every <style> element under root and prepares the
// cascade. Malformed rules and declarations are skipped; a stylesheet
// that cannot be tokenized is an error.
func NewStyler(root *html.Node) (*Styler, error) {
	s := &Styler{cache: make(map[*html.Node]Style)}

	ua, err := userAgentRules()
	if err != nil {
		return nil, err
	}
	s.addRules(ua, true)

	for _, text := range stylesheets(root) {
		rules, err := ParseStylesheet(text)
		if err != nil {
			return nil, err
		}
		s.addRules(rules, false)
	}
	return s, nil
}

func stylesheets(root *html.Node) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Style {
			if media := attr(n, "media"); media == "" || matchMedia(media) {
				out = append(out, textContent(n))
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if root != nil {
		walk(root)
	}
	return out
}

func (s *Styler) addRules(rules []*css.Rule, ua bool) {
	for _, r := range rules {
		switch r.Kind {
		case css.QualifiedRule:
			s.addQualified(r, ua)
		case css.AtRule:
			switch strings.TrimPrefix(strings.ToLower(r.Name), "@") {
			case "media":
				if matchMedia(r.Prelude) {
					s.addRules(r.Rules, ua)
				}
			case "supports", "layer", "container":
				s.addRules(r.Rules, ua)
			}
		}
	}
}

// addQualified compiles a style rule. One invalid selector in the list
// drops the whole rule, and pseudo-element rules never match elements.
func (s *Styler) addQualified(r *css.Rule, ua bool) {
	sels := make([]cascadia.Sel, 0, len(r.Selectors))
	for _, text := range r.Selectors {
		sel, err := cascadia.Parse(text)
		if err != nil {
			return
		}
		if sel.PseudoElement() != "" {
			continue
		}
		sels = append(sels, sel)
	}
	if len(sels) == 0 {
		return
	}
	s.rules = append(s.rules, compiledRule{
		selectors: sels,
		decls:     r.Declarations,
		ua:        ua,
		order:     len(s.rules),
	})
}

// Invalidate drops memoized styles after the document changed.
func (s *Styler) Invalidate() {
	s.mu.Lock()
	s.cache = make(map[*html.Node]Style)
	s.mu.Unlock()
}

// Computed returns the computed style of an element.
func (s *Styler) Computed(n *html.Node) Style {
	if n == nil || n.Type != html.ElementNode {
		return Style{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compute(n)
}

func (s *Styler) compute(n *html.Node) Style {
	if st, ok := s.cache[n]; ok {
		return st
	}
	var parent Style
	if p := parentElement(n); p != nil {
		parent = s.compute(p)
	}
	st := resolve(s.specified(n), parent)
	s.cache[n] = st
	return st
}

// specified runs the cascade for one element and returns the winning
// declaration per longhand.
func (s *Styler) specified(n *html.Node) map[string]string {
	var decls []cascaded
	order := 0
	add := func(d *css.Declaration, rank int, spec cascadia.Specificity) {
		prop := strings.TrimSpace(d.Property)
		if !strings.HasPrefix(prop, "--") {
			prop = strings.ToLower(prop)
		}
		for _, lh := range expandShorthand(prop, strings.TrimSpace(d.Value)) {
			decls = append(decls, cascaded{lh.property, lh.value, rank, spec, order})
			order++
		}
	}

	for _, r := range s.rules {
		spec, ok := bestMatch(r.selectors, n)
		if !ok {
			continue
		}
		for _, d := range r.decls {
			rank := rankAuthor
			switch {
			case r.ua:
				rank = rankUserAgent
			case d.Important:
				rank = rankAuthorImportant
			}
			add(d, rank, spec)
		}
	}

	if inline := attr(n, "style"); inline != "" {
		for _, d := range ParseDeclarations(inline) {
			rank := rankInline
			if d.Important {
				rank = rankInlineImportant
			}
			add(d, rank, cascadia.Specificity{})
		}
	}

	sort.SliceStable(decls, func(i, j int) bool {
		a, b := decls[i], decls[j]
		if a.rank != b.rank {
			return a.rank < b.rank
		}
		if a.spec != b.spec {
			return a.spec.Less(b.spec)
		}
		return a.order < b.order
	})

	out := make(map[string]string, len(decls))
	for _, d := range decls {
		out[d.property] = d.value
	}
	return out
}

func bestMatch(sels []cascadia.Sel, n *html.Node) (cascadia.Specificity, bool) {
	var best cascadia.Specificity
	matched := false
	for _, sel := range sels {
		if !sel.Match(n) {
			continue
		}
		if sp := sel.Specificity(); !matched || best.Less(sp) {
			best = sp
		}
		matched = true
	}
	return best, matched
}

// resolver turns cascaded values into computed values for one element.
type resolver struct {
	specified  map[string]string
	parent     Style
	out        Style
	parentFont float64
	fontSize   float64
}

func resolve(specified map[string]string, parent Style) Style {
	r := &resolver{
		specified:  specified,
		parent:     parent,
		out:        make(Style, len(properties)+len(specified)),
		parentFont: rootFontSize,
	}
	if parent != nil {
		if px, ok := toPixels(parent["font-size"], rootFontSize); ok {
			r.parentFont = px
		}
		for k, v := range parent {
			if strings.HasPrefix(k, "--") {
				r.out[k] = v
			}
		}
	}
	for k, v := range specified {
		if strings.HasPrefix(k, "--") {
			r.out[k] = strings.TrimSpace(v)
		}
	}

	r.fontSize = r.computeFontSize()
	r.out["font-size"] = formatPixels(r.fontSize)
	r.out["color"] = r.computeColor()

	for name, def := range properties {
		if _, done := r.out[name]; done {
			continue
		}
		r.out[name] = r.computed(name, def)
	}
	for name, v := range specified {
		if _, done := r.out[name]; !done {
			r.out[name] = normalizeMixed(r.substitute(v), r.fontSize, r.out["color"])
		}
	}
	return r.out
}

// cascadedValue applies css-wide keywords and inheritance. The second
// return is true when the value was taken from the parent already computed.
func (r *resolver) cascadedValue(name string) (string, bool) {
	def := properties[name]
	v, ok := r.specified[name]
	if ok {
		v = strings.TrimSpace(r.substitute(v))
	}
	lower := strings.ToLower(v)
	switch {
	case !ok || lower == "unset":
		if def.inherited && r.parent != nil {
			return r.parent[name], true
		}
		return def.initial, false
	case lower == "inherit":
		if r.parent != nil {
			return r.parent[name], true
		}
		return def.initial, false
	case lower == "initial" || lower == "revert":
		return def.initial, false
	}
	return v, false
}

func (r *resolver) computed(name string, def propertyDef) string {
	v, fromParent := r.cascadedValue(name)
	if fromParent {
		return v
	}
	lower := strings.ToLower(v)

	switch def.kind {
	case kindColor:
		if lower == "currentcolor" {
			return r.out["color"]
		}
		if c, ok := NormalizeColor(v); ok {
			return c
		}
		return v
	case kindLength:
		return normalizeLength(v, r.fontSize)
	case kindLengths:
		tokens := splitValue(v)
		for i, t := range tokens {
			tokens[i] = normalizeLengthToken(t, r.fontSize)
		}
		return strings.Join(tokens, " ")
	case kindMixed:
		return normalizeMixed(v, r.fontSize, r.out["color"])
	case kindBorderWidth:
		style, _ := r.cascadedValue(strings.TrimSuffix(name, "-width") + "-style")
		if s := strings.ToLower(style); s == "none" || s == "hidden" {
			return "0px"
		}
		switch lower {
		case "thin":
			return "1px"
		case "medium":
			return "3px"
		case "thick":
			return "5px"
		}
		return normalizeLength(v, r.fontSize)
	case kindFontWeight:
		return r.fontWeight(lower)
	case kindLineHeight:
		if lower == "normal" {
			return lower
		}
		if n, unit, ok := splitNumber(lower); ok {
			switch unit {
			case "":
				return formatPixels(n * r.fontSize)
			case "%":
				return formatPixels(n * r.fontSize / 100)
			}
		}
		return normalizeLength(v, r.fontSize)
	}
	if isNumber(v) {
		n, _, _ := splitNumber(v)
		return formatNumber(n)
	}
	return v
}

func (r *resolver) computeFontSize() float64 {
	v, fromParent := r.cascadedValue("font-size")
	if fromParent {
		if px, ok := toPixels(v, rootFontSize); ok {
			return px
		}
		return r.parentFont
	}
	lower := strings.ToLower(v)
	if px, ok := fontSizeKeywords[lower]; ok {
		return px
	}
	switch lower {
	case "smaller":
		return r.parentFont / 1.2
	case "larger":
		return r.parentFont * 1.2
	}
	if n, unit, ok := splitNumber(lower); ok && unit == "%" {
		return r.parentFont * n / 100
	}
	if px, ok := toPixels(lower, r.parentFont); ok {
		return px
	}
	return r.parentFont
}

func (r *resolver) computeColor() string {
	v, fromParent := r.cascadedValue("color")
	if fromParent {
		return v
	}
	if strings.EqualFold(v, "currentcolor") {
		if r.parent != nil {
			return r.parent["color"]
		}
		return properties["color"].initial
	}
	if c, ok := NormalizeColor(v); ok {
		return c
	}
	if r.parent != nil {
		return r.parent["color"]
	}
	return properties["color"].initial
}

func (r *resolver) fontWeight(v string) string {
	parent := 400.0
	if r.parent != nil {
		if n, err := strconv.ParseFloat(r.parent["font-weight"], 64); err == nil {
			parent = n
		}
	}
	switch v {
	case "normal":
		return "400"
	case "bold":
		return "700"
	case "bolder":
		switch {
		case parent < 350:
			return "400"
		case parent < 550:
			return "700"
		}
		return "900"
	case "lighter":
		switch {
		case parent < 550:
			return "100"
		case parent < 750:
			return "400"
		}
		return "700"
	}
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return formatNumber(n)
	}
	return v
}

// substitute replaces var() references with custom property values.
func (r *resolver) substitute(v string) string {
	for depth := 0; depth < 32; depth++ {
		start := strings.Index(v, "var(")
		if start < 0 {
			return v
		}
		end := closingParen(v, start+3)
		if end < 0 {
			return v
		}
		name, fallback, _ := strings.Cut(v[start+4:end], ",")
		val, ok := r.out[strings.TrimSpace(name)]
		if !ok {
			val = strings.TrimSpace(fallback)
		}
		v = v[:start] + val + v[end+1:]
	}
	return v
}

func closingParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func normalizeLength(v string, fontSize float64) string {
	lower := strings.ToLower(strings.TrimSpace(v))
	if lengthKeywords[lower] {
		return lower
	}
	if n, unit, ok := splitNumber(lower); ok && unit == "%" {
		return formatNumber(n) + "%"
	}
	if px, ok := toPixels(lower, fontSize); ok {
		return formatPixels(px)
	}
	return v
}

// normalizeMixed rewrites the color and length tokens of a free-form value.
func normalizeMixed(v string, fontSize float64, current string) string {
	tokens := splitValue(v)
	for i, t := range tokens {
		body, comma := strings.CutSuffix(t, ",")
		switch {
		case strings.EqualFold(body, "currentcolor"):
			body = current
		default:
			if c, ok := NormalizeColor(body); ok {
				body = c
			} else if _, unit, ok := splitNumber(body); ok && unit != "" && unit != "%" {
				body = normalizeLengthToken(body, fontSize)
			}
		}
		if comma {
			body += ","
		}
		tokens[i] = body
	}
	return strings.Join(tokens, " ")
}

// Style is a computed style keyed by CSS property name.
type Style map[string]string

// Get returns a property value. Both "background-color" and
// "backgroundColor" are accepted, and common shorthands are serialized
// from their longhands.
func (s Style) Get(property string) string {
	name := PropertyName(property)
	if v, ok := s[name]; ok {
		return v
	}
	return s.shorthand(name)
}

func (s Style) shorthand(name string) string {
	side := func(prefix, suffix string) [4]string {
		var out [4]string
		for i, sd := range boxSides {
			key := prefix + "-" + sd
			if suffix != "" {
				key += "-" + suffix
			}
			out[i] = s[key]
		}
		return out
	}
	pair := func(a, b string) string {
		if s[a] == s[b] {
			return s[a]
		}
		return s[a] + " " + s[b]
	}

	switch name {
	case "margin", "padding":
		return collapseBox(side(name, ""))
	case "inset":
		return collapseBox([4]string{s["top"], s["right"], s["bottom"], s["left"]})
	case "border-width", "border-style", "border-color":
		return collapseBox(side("border", strings.TrimPrefix(name, "border-")))
	case "border-radius":
		var corners [4]string
		for i, c := range radiusCorners {
			corners[i] = s["border-"+c+"-radius"]
		}
		return collapseBox(corners)
	case "border-top", "border-right", "border-bottom", "border-left", "outline":
		return strings.Join([]string{s[name+"-width"], s[name+"-style"], s[name+"-color"]}, " ")
	case "border":
		first := s.shorthand("border-top")
		for _, sd := range boxSides[1:] {
			if s.shorthand("border-"+sd) != first {
				return ""
			}
		}
		return first
	case "gap", "grid-gap":
		return pair("row-gap", "column-gap")
	case "overflow":
		return pair("overflow-x", "overflow-y")
	case "flex":
		return strings.Join([]string{s["flex-grow"], s["flex-shrink"], s["flex-basis"]}, " ")
	case "flex-flow":
		return s["flex-direction"] + " " + s["flex-wrap"]
	case "background":
		if img := s["background-image"]; img != "" && img != "none" {
			return s["background-color"] + " " + img
		}
		return s["background-color"]
	case "text-decoration":
		return strings.Join([]string{s["text-decoration-line"], s["text-decoration-style"], s["text-decoration-color"]}, " ")
	case "list-style":
		return s["list-style-type"]
	case "font":
		return fmt.Sprintf("%s %s %s / %s %s", s["font-style"], s["font-weight"], s["font-size"], s["line-height"], s["font-family"])
	}
	return ""
}

func collapseBox(v [4]string) string {
	t, r, b, l := v[0], v[1], v[2], v[3]
	switch {
	case t == r && t == b && t == l:
		return t
	case t == b && r == l:
		return t + " " + r
	case r == l:
		return t + " " + r + " " + b
	}
	return t + " " + r + " " + b + " " + l
}

// PropertyName converts a camelCase style property to its CSS name.
func PropertyName(name string) string {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "--") {
		return name
	}
	if !strings.ContainsAny(name, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		return strings.ToLower(name)
	}
	if name == "cssFloat" {
		return "float"
	}
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// matchMedia evaluates a media query list against a 1280x720 screen.
func matchMedia(query string) bool {
	query = strings.TrimSpace(strings.ToLower(query))
	if query == "" {
		return true
	}
	for _, q := range strings.Split(query, ",") {
		if matchMediaQuery(strings.TrimSpace(q)) {
			return true
		}
	}
	return false
}

func matchMediaQuery(q string) bool {
	negate := false
	if rest, ok := strings.CutPrefix(q, "not "); ok {
		negate, q = true, rest
	}
	q = strings.TrimPrefix(q, "only ")

	result := true
	for _, part := range strings.Split(q, " and ") {
		part = strings.TrimSpace(part)
		switch {
		case part == "" || part == "all" || part == "screen":
		case strings.HasPrefix(part, "("):
			if !matchMediaFeature(strings.Trim(part, "()")) {
				result = false
			}
		default:
			result = false
		}
	}
	return result != negate
}

func matchMediaFeature(f string) bool {
	name, value, _ := strings.Cut(f, ":")
	name, value = strings.TrimSpace(name), strings.TrimSpace(value)
	px := func() float64 {
		v, _ := toPixels(value, rootFontSize)
		return v
	}
	switch name {
	case "min-width":
		return viewportWidth >= px()
	case "max-width":
		return viewportWidth <= px()
	case "min-height":
		return viewportHeight >= px()
	case "max-height":
		return viewportHeight <= px()
	case "orientation":
		return value == "landscape"
	case "prefers-color-scheme":
		return value == "light"
	case "prefers-reduced-motion":
		return value == "no-preference"
	case "hover", "any-hover":
		return value == "" || value == "hover"
	case "pointer", "any-pointer":
		return value == "" || value == "fine"
	case "color":
		return true
	}
	return false
}

func parentElement(n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode {
			return p
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textContent(c))
	}
	return b.String()
}
