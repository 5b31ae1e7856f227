package markup

import (
	"regexp"
	"strings"
)

var (
	styleBlock = regexp.MustCompile(`(?is)<style\b[^>]*>(.*?)</style\s*>`)
	cssMarker  = regexp.MustCompile(`(?i)/\*\s*css\s*\*/|<!--\s*css\s*-->`)
)

// Split separates a combined html-css submission. Inline <style> blocks
// become the CSS and are removed from the HTML. Without style blocks, a
// "/* CSS */" or "<!-- CSS -->" marker line divides HTML above from CSS
// below. Otherwise the whole submission is HTML.
func Split(code string) (markup, css string) {
	if blocks := styleBlock.FindAllStringSubmatch(code, -1); len(blocks) > 0 {
		parts := make([]string, 0, len(blocks))
		for _, b := range blocks {
			parts = append(parts, strings.TrimSpace(b[1]))
		}
		return strings.TrimSpace(styleBlock.ReplaceAllString(code, "")), strings.Join(parts, "\n")
	}
	if loc := cssMarker.FindStringIndex(code); loc != nil {
		return strings.TrimSpace(code[:loc[0]]), strings.TrimSpace(code[loc[1]:])
	}
	return code, ""
}
