package markup

import (
	"math"
	"strconv"
	"strings"
)

const (
	rootFontSize   = 16.0
	viewportWidth  = 1280.0
	viewportHeight = 720.0
)

// unitScale maps absolute and viewport units to pixels.
var unitScale = map[string]float64{
	"px": 1,
	"pt": 96.0 / 72,
	"pc": 16,
	"in": 96,
	"cm": 96 / 2.54,
	"mm": 96 / 25.4,
	"q":  96 / 101.6,
	"vw": viewportWidth / 100,
	"vh": viewportHeight / 100,
}

// splitNumber separates "12.5em" into 12.5 and "em".
func splitNumber(token string) (float64, string, bool) {
	i := 0
	for i < len(token) {
		c := token[i]
		if (c >= '0' && c <= '9') || c == '.' || ((c == '-' || c == '+') && i == 0) {
			i++
			continue
		}
		break
	}
	if i == 0 {
		return 0, "", false
	}
	v, err := strconv.ParseFloat(token[:i], 64)
	if err != nil {
		return 0, "", false
	}
	return v, strings.ToLower(token[i:]), true
}

// toPixels resolves a length token against the element font size. Percent
// values are left to the caller because they need a layout box.
func toPixels(token string, fontSize float64) (float64, bool) {
	v, unit, ok := splitNumber(token)
	if !ok {
		return 0, false
	}
	switch unit {
	case "":
		if v == 0 {
			return 0, true
		}
		return 0, false
	case "em":
		return v * fontSize, true
	case "rem":
		return v * rootFontSize, true
	case "ex", "ch":
		return v * fontSize / 2, true
	case "vmin":
		return v * math.Min(viewportWidth, viewportHeight) / 100, true
	case "vmax":
		return v * math.Max(viewportWidth, viewportHeight) / 100, true
	}
	if scale, ok := unitScale[unit]; ok {
		return v * scale, true
	}
	return 0, false
}

func formatPixels(v float64) string {
	return formatNumber(v) + "px"
}

func formatNumber(v float64) string {
	v = math.Round(v*10000) / 10000
	if v == 0 {
		// drop negative zero
		v = 0
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// normalizeLengthToken converts one token to px when it is a length and
// returns it unchanged otherwise.
func normalizeLengthToken(token string, fontSize float64) string {
	if px, ok := toPixels(token, fontSize); ok {
		return formatPixels(px)
	}
	return token
}
