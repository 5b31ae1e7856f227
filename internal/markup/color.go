package markup

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
)

// rgba is a parsed CSS color with alpha in [0, 1].
type rgba struct {
	r, g, b uint8
	a       float64
}

// String serializes the color the way computed style reports it.
func (c rgba) String() string {
	if c.a >= 1 {
		return fmt.Sprintf("rgb(%d, %d, %d)", c.r, c.g, c.b)
	}
	return fmt.Sprintf("rgba(%d, %d, %d, %s)", c.r, c.g, c.b, formatAlpha(c.a))
}

func formatAlpha(a float64) string {
	if a <= 0 {
		return "0"
	}
	rounded := math.Round(a*100) / 100
	if math.Round(rounded*255) != math.Round(a*255) {
		rounded = math.Round(a*1000) / 1000
	}
	return strconv.FormatFloat(rounded, 'f', -1, 64)
}

// NormalizeColor converts any supported CSS color token to rgb()/rgba().
// The second return is false when the token is not a color.
func NormalizeColor(token string) (string, bool) {
	c, ok := parseColor(token)
	if !ok {
		return token, false
	}
	return c.String(), true
}

func parseColor(token string) (rgba, bool) {
	s := strings.ToLower(strings.TrimSpace(token))
	switch {
	case s == "":
		return rgba{}, false
	case s == "transparent":
		return rgba{a: 0}, true
	case strings.HasPrefix(s, "#"):
		return parseHex(s[1:])
	case strings.HasPrefix(s, "rgb(") || strings.HasPrefix(s, "rgba("):
		return parseRGBFunc(s)
	case strings.HasPrefix(s, "hsl(") || strings.HasPrefix(s, "hsla("):
		return parseHSLFunc(s)
	}
	if named, ok := colornames.Map[s]; ok {
		return rgba{r: named.R, g: named.G, b: named.B, a: 1}, true
	}
	return rgba{}, false
}

func parseHex(h string) (rgba, bool) {
	for _, ch := range h {
		if !strings.ContainsRune("0123456789abcdef", ch) {
			return rgba{}, false
		}
	}
	nibble := func(i int) uint8 {
		v, _ := strconv.ParseUint(h[i:i+1], 16, 8)
		return uint8(v * 17)
	}
	pair := func(i int) uint8 {
		v, _ := strconv.ParseUint(h[i:i+2], 16, 8)
		return uint8(v)
	}
	switch len(h) {
	case 3:
		return rgba{nibble(0), nibble(1), nibble(2), 1}, true
	case 4:
		return rgba{nibble(0), nibble(1), nibble(2), float64(nibble(3)) / 255}, true
	case 6:
		return rgba{pair(0), pair(2), pair(4), 1}, true
	case 8:
		return rgba{pair(0), pair(2), pair(4), float64(pair(6)) / 255}, true
	}
	return rgba{}, false
}

// functionArgs splits "name(a, b, c / d)" into its arguments. Both the
// legacy comma syntax and the space syntax with a slash alpha are accepted.
func functionArgs(s string) ([]string, bool) {
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return nil, false
	}
	body := s[open+1 : len(s)-1]
	body = strings.ReplaceAll(body, "/", " / ")
	body = strings.ReplaceAll(body, ",", " ")
	fields := strings.Fields(body)

	var args []string
	for i := 0; i < len(fields); i++ {
		if fields[i] == "/" {
			continue
		}
		args = append(args, fields[i])
	}
	return args, len(args) == 3 || len(args) == 4
}

func parseRGBFunc(s string) (rgba, bool) {
	args, ok := functionArgs(s)
	if !ok {
		return rgba{}, false
	}
	var ch [3]uint8
	for i := 0; i < 3; i++ {
		v, ok := parseChannel(args[i])
		if !ok {
			return rgba{}, false
		}
		ch[i] = v
	}
	alpha := 1.0
	if len(args) == 4 {
		if alpha, ok = parseAlpha(args[3]); !ok {
			return rgba{}, false
		}
	}
	return rgba{ch[0], ch[1], ch[2], alpha}, true
}

func parseChannel(s string) (uint8, bool) {
	if strings.HasSuffix(s, "%") {
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
		if err != nil {
			return 0, false
		}
		return clampByte(v * 255 / 100), true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return clampByte(v), true
}

func parseAlpha(s string) (float64, bool) {
	pct := strings.HasSuffix(s, "%")
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		return 0, false
	}
	if pct {
		v /= 100
	}
	return math.Max(0, math.Min(1, v)), true
}

func parseHSLFunc(s string) (rgba, bool) {
	args, ok := functionArgs(s)
	if !ok {
		return rgba{}, false
	}
	hue := strings.TrimSuffix(args[0], "deg")
	h, err := strconv.ParseFloat(hue, 64)
	if err != nil {
		return rgba{}, false
	}
	sat, err1 := strconv.ParseFloat(strings.TrimSuffix(args[1], "%"), 64)
	light, err2 := strconv.ParseFloat(strings.TrimSuffix(args[2], "%"), 64)
	if err1 != nil || err2 != nil {
		return rgba{}, false
	}
	alpha := 1.0
	if len(args) == 4 {
		if alpha, ok = parseAlpha(args[3]); !ok {
			return rgba{}, false
		}
	}
	r, g, b := hslToRGB(math.Mod(math.Mod(h, 360)+360, 360)/360, sat/100, light/100)
	return rgba{clampByte(r * 255), clampByte(g * 255), clampByte(b * 255), alpha}, true
}

func hslToRGB(h, s, l float64) (float64, float64, float64) {
	if s == 0 {
		return l, l, l
	}
	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	return hueToRGB(p, q, h+1.0/3), hueToRGB(p, q, h), hueToRGB(p, q, h-1.0/3)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6:
		return p + (q-p)*6*t
	case t < 0.5:
		return q
	case t < 2.0/3:
		return p + (q-p)*(2.0/3-t)*6
	}
	return p
}

func clampByte(v float64) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(v))))
}
