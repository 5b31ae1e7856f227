package markup

import (
	"strings"
)

type longhand struct {
	property string
	value    string
}

var boxSides = [4]string{"top", "right", "bottom", "left"}

var radiusCorners = [4]string{"top-left", "top-right", "bottom-right", "bottom-left"}

var borderStyles = map[string]bool{
	"none": true, "hidden": true, "dotted": true, "dashed": true, "solid": true,
	"double": true, "groove": true, "ridge": true, "inset": true, "outset": true,
}

var cssWideKeywords = map[string]bool{"inherit": true, "initial": true, "unset": true, "revert": true}

// splitValue splits a declaration value on whitespace outside parentheses.
func splitValue(v string) []string {
	var tokens []string
	var cur strings.Builder
	depth := 0
	for _, r := range v {
		switch {
		case r == '(':
			depth++
		case r == ')':
			if depth > 0 {
				depth--
			}
		case (r == ' ' || r == '\t' || r == '\n' || r == '\r') && depth == 0:
			if cur.Len() > 0 {
				tokens = append(tokens, cur.String())
				cur.Reset()
			}
			continue
		}
		cur.WriteRune(r)
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	return tokens
}

// fourValues spreads the 1-4 value box syntax to top, right, bottom, left.
func fourValues(tokens []string) ([4]string, bool) {
	switch len(tokens) {
	case 1:
		return [4]string{tokens[0], tokens[0], tokens[0], tokens[0]}, true
	case 2:
		return [4]string{tokens[0], tokens[1], tokens[0], tokens[1]}, true
	case 3:
		return [4]string{tokens[0], tokens[1], tokens[2], tokens[1]}, true
	case 4:
		return [4]string{tokens[0], tokens[1], tokens[2], tokens[3]}, true
	}
	return [4]string{}, false
}

// expandShorthand returns the longhands a declaration sets. Unknown
// properties come back unchanged. A nil result means the value is invalid
// for the shorthand and the declaration is dropped.
func expandShorthand(property, value string) []longhand {
	tokens := splitValue(value)
	if len(tokens) == 1 && cssWideKeywords[strings.ToLower(tokens[0])] {
		if names, ok := shorthandLonghands(property); ok {
			out := make([]longhand, 0, len(names))
			for _, n := range names {
				out = append(out, longhand{n, tokens[0]})
			}
			return out
		}
	}

	switch property {
	case "margin", "padding":
		return boxExpansion(property, "", tokens)
	case "inset":
		vals, ok := fourValues(tokens)
		if !ok {
			return nil
		}
		return []longhand{{"top", vals[0]}, {"right", vals[1]}, {"bottom", vals[2]}, {"left", vals[3]}}
	case "border-width", "border-style", "border-color":
		return boxExpansion("border", strings.TrimPrefix(property, "border-"), tokens)
	case "border":
		var out []longhand
		for _, side := range boxSides {
			out = append(out, borderSide("border-"+side, tokens)...)
		}
		return out
	case "border-top", "border-right", "border-bottom", "border-left":
		return borderSide(property, tokens)
	case "outline":
		return borderSide("outline", tokens)
	case "border-radius":
		if i := indexOf(tokens, "/"); i >= 0 {
			tokens = tokens[:i]
		}
		vals, ok := fourValues(tokens)
		if !ok {
			return nil
		}
		out := make([]longhand, 4)
		for i, corner := range radiusCorners {
			out[i] = longhand{"border-" + corner + "-radius", vals[i]}
		}
		return out
	case "background":
		return backgroundExpansion(tokens)
	case "flex":
		return flexExpansion(tokens)
	case "flex-flow":
		var out []longhand
		for _, t := range tokens {
			switch strings.ToLower(t) {
			case "row", "row-reverse", "column", "column-reverse":
				out = append(out, longhand{"flex-direction", t})
			default:
				out = append(out, longhand{"flex-wrap", t})
			}
		}
		return out
	case "gap", "grid-gap":
		switch len(tokens) {
		case 1:
			return []longhand{{"row-gap", tokens[0]}, {"column-gap", tokens[0]}}
		case 2:
			return []longhand{{"row-gap", tokens[0]}, {"column-gap", tokens[1]}}
		}
		return nil
	case "overflow":
		switch len(tokens) {
		case 1:
			return []longhand{{"overflow-x", tokens[0]}, {"overflow-y", tokens[0]}}
		case 2:
			return []longhand{{"overflow-x", tokens[0]}, {"overflow-y", tokens[1]}}
		}
		return nil
	case "text-decoration":
		return textDecorationExpansion(tokens)
	case "list-style":
		for _, t := range tokens {
			lower := strings.ToLower(t)
			if lower != "inside" && lower != "outside" && !strings.HasPrefix(lower, "url(") {
				return []longhand{{"list-style-type", t}}
			}
		}
		return nil
	case "font":
		return fontExpansion(value, tokens)
	}
	return []longhand{{property, value}}
}

func boxExpansion(prefix, suffix string, tokens []string) []longhand {
	vals, ok := fourValues(tokens)
	if !ok {
		return nil
	}
	out := make([]longhand, 4)
	for i, side := range boxSides {
		name := prefix + "-" + side
		if suffix != "" {
			name += "-" + suffix
		}
		out[i] = longhand{name, vals[i]}
	}
	return out
}

// borderSide expands "<width> || <style> || <color>" for one side. Missing
// components reset to their initial values.
func borderSide(prefix string, tokens []string) []longhand {
	width, style, color := "medium", "none", "currentcolor"
	for _, t := range tokens {
		lower := strings.ToLower(t)
		switch {
		case borderStyles[lower]:
			style = lower
		case lower == "thin" || lower == "medium" || lower == "thick" || isLength(t):
			width = t
		default:
			color = t
		}
	}
	return []longhand{
		{prefix + "-width", width},
		{prefix + "-style", style},
		{prefix + "-color", color},
	}
}

func backgroundExpansion(tokens []string) []longhand {
	color, image := "transparent", "none"
	for _, t := range tokens {
		lower := strings.ToLower(t)
		switch {
		case strings.HasPrefix(lower, "url(") || strings.Contains(lower, "gradient("):
			image = t
		default:
			if _, ok := parseColor(t); ok {
				color = t
			}
		}
	}
	return []longhand{{"background-color", color}, {"background-image", image}}
}

func flexExpansion(tokens []string) []longhand {
	grow, shrink, basis := "0", "1", "auto"
	switch {
	case len(tokens) == 1 && strings.EqualFold(tokens[0], "none"):
		grow, shrink, basis = "0", "0", "auto"
	case len(tokens) == 1 && strings.EqualFold(tokens[0], "auto"):
		grow, shrink, basis = "1", "1", "auto"
	default:
		var numbers []string
		for _, t := range tokens {
			if isNumber(t) && len(numbers) < 2 {
				numbers = append(numbers, t)
			} else {
				basis = t
			}
		}
		if len(numbers) > 0 {
			grow = numbers[0]
			if basis == "auto" {
				basis = "0%"
			}
		}
		if len(numbers) > 1 {
			shrink = numbers[1]
		}
	}
	return []longhand{{"flex-grow", grow}, {"flex-shrink", shrink}, {"flex-basis", basis}}
}

func textDecorationExpansion(tokens []string) []longhand {
	var lines []string
	style, color := "solid", "currentcolor"
	for _, t := range tokens {
		lower := strings.ToLower(t)
		switch lower {
		case "none", "underline", "overline", "line-through", "blink":
			lines = append(lines, lower)
		case "solid", "double", "dotted", "dashed", "wavy":
			style = lower
		default:
			color = t
		}
	}
	line := "none"
	if len(lines) > 0 {
		line = strings.Join(lines, " ")
	}
	return []longhand{
		{"text-decoration-line", line},
		{"text-decoration-style", style},
		{"text-decoration-color", color},
	}
}

// fontExpansion handles "[style] [variant] [weight] size[/line-height] family".
func fontExpansion(value string, tokens []string) []longhand {
	var out []longhand
	sizeAt := -1
	for i, t := range tokens {
		size := t
		if slash := strings.IndexByte(t, '/'); slash > 0 {
			size = t[:slash]
		}
		if isLength(size) || strings.HasSuffix(size, "%") || fontSizeKeywords[strings.ToLower(size)] > 0 {
			sizeAt = i
			break
		}
		switch lower := strings.ToLower(t); {
		case lower == "italic" || lower == "oblique":
			out = append(out, longhand{"font-style", lower})
		case lower == "small-caps":
			out = append(out, longhand{"font-variant", lower})
		case lower == "bold" || lower == "bolder" || lower == "lighter" || isNumber(lower):
			out = append(out, longhand{"font-weight", lower})
		}
	}
	if sizeAt < 0 {
		return []longhand{{"font", value}}
	}
	size := tokens[sizeAt]
	if slash := strings.IndexByte(size, '/'); slash > 0 {
		out = append(out, longhand{"line-height", size[slash+1:]})
		size = size[:slash]
	} else if sizeAt+2 < len(tokens) && tokens[sizeAt+1] == "/" {
		out = append(out, longhand{"line-height", tokens[sizeAt+2]})
		sizeAt += 2
	}
	out = append(out, longhand{"font-size", size})
	if family := strings.Join(tokens[sizeAt+1:], " "); family != "" {
		out = append(out, longhand{"font-family", family})
	}
	return out
}

// shorthandSamples holds a value that makes each shorthand emit all of its
// longhands.
var shorthandSamples = map[string]string{
	"margin":          "0",
	"padding":         "0",
	"inset":           "0",
	"border-width":    "0",
	"border-style":    "none",
	"border-color":    "black",
	"border-radius":   "0",
	"border":          "medium none currentcolor",
	"border-top":      "medium none currentcolor",
	"border-right":    "medium none currentcolor",
	"border-bottom":   "medium none currentcolor",
	"border-left":     "medium none currentcolor",
	"outline":         "medium none currentcolor",
	"background":      "none",
	"flex":            "1 1 0",
	"flex-flow":       "row nowrap",
	"gap":             "normal",
	"grid-gap":        "normal",
	"overflow":        "visible",
	"text-decoration": "none",
	"list-style":      "disc",
	"font":            "italic small-caps bold 16px/normal serif",
}

// shorthandLonghands lists the longhands a css-wide keyword resets.
func shorthandLonghands(property string) ([]string, bool) {
	sample, ok := shorthandSamples[property]
	if !ok {
		return nil, false
	}
	var names []string
	for _, lh := range expandShorthand(property, sample) {
		names = append(names, lh.property)
	}
	return names, len(names) > 0
}

func indexOf(tokens []string, s string) int {
	for i, t := range tokens {
		if t == s {
			return i
		}
	}
	return -1
}

func isNumber(t string) bool {
	_, unit, ok := splitNumber(t)
	return ok && unit == ""
}

func isLength(t string) bool {
	v, unit, ok := splitNumber(t)
	if !ok {
		return false
	}
	if unit == "" {
		return v == 0
	}
	if unit == "%" {
		return true
	}
	_, ok = toPixels(t, rootFontSize)
	return ok
}
