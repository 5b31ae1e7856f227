package markup

// valueKind selects how a computed value is normalized.
type valueKind int

const (
	kindKeyword valueKind = iota
	kindColor
	kindLength
	kindLengths // space separated lengths, e.g. border radii
	kindMixed   // free-form values whose color and length tokens are normalized
	kindBorderWidth
	kindFontWeight
	kindLineHeight
)

type propertyDef struct {
	initial   string
	inherited bool
	kind      valueKind
}

// properties is the set of longhands every computed style reports.
var properties = map[string]propertyDef{
	"color":            {"rgb(0, 0, 0)", true, kindColor},
	"background-color": {"rgba(0, 0, 0, 0)", false, kindColor},
	"background-image": {"none", false, kindKeyword},
	"opacity":          {"1", false, kindKeyword},
	"visibility":       {"visible", true, kindKeyword},

	"display":    {"inline", false, kindKeyword},
	"position":   {"static", false, kindKeyword},
	"float":      {"none", false, kindKeyword},
	"clear":      {"none", false, kindKeyword},
	"z-index":    {"auto", false, kindKeyword},
	"overflow-x": {"visible", false, kindKeyword},
	"overflow-y": {"visible", false, kindKeyword},
	"box-sizing": {"content-box", false, kindKeyword},

	"width":      {"auto", false, kindLength},
	"height":     {"auto", false, kindLength},
	"min-width":  {"auto", false, kindLength},
	"min-height": {"auto", false, kindLength},
	"max-width":  {"none", false, kindLength},
	"max-height": {"none", false, kindLength},
	"top":        {"auto", false, kindLength},
	"right":      {"auto", false, kindLength},
	"bottom":     {"auto", false, kindLength},
	"left":       {"auto", false, kindLength},

	"margin-top":     {"0px", false, kindLength},
	"margin-right":   {"0px", false, kindLength},
	"margin-bottom":  {"0px", false, kindLength},
	"margin-left":    {"0px", false, kindLength},
	"padding-top":    {"0px", false, kindLength},
	"padding-right":  {"0px", false, kindLength},
	"padding-bottom": {"0px", false, kindLength},
	"padding-left":   {"0px", false, kindLength},

	"border-top-width":    {"medium", false, kindBorderWidth},
	"border-right-width":  {"medium", false, kindBorderWidth},
	"border-bottom-width": {"medium", false, kindBorderWidth},
	"border-left-width":   {"medium", false, kindBorderWidth},
	"border-top-style":    {"none", false, kindKeyword},
	"border-right-style":  {"none", false, kindKeyword},
	"border-bottom-style": {"none", false, kindKeyword},
	"border-left-style":   {"none", false, kindKeyword},
	"border-top-color":    {"currentcolor", false, kindColor},
	"border-right-color":  {"currentcolor", false, kindColor},
	"border-bottom-color": {"currentcolor", false, kindColor},
	"border-left-color":   {"currentcolor", false, kindColor},

	"border-top-left-radius":     {"0px", false, kindLengths},
	"border-top-right-radius":    {"0px", false, kindLengths},
	"border-bottom-right-radius": {"0px", false, kindLengths},
	"border-bottom-left-radius":  {"0px", false, kindLengths},

	"outline-width":  {"medium", false, kindBorderWidth},
	"outline-style":  {"none", false, kindKeyword},
	"outline-color":  {"currentcolor", false, kindColor},
	"outline-offset": {"0px", false, kindLength},

	"font-size":       {"16px", true, kindLength},
	"font-weight":     {"400", true, kindFontWeight},
	"font-style":      {"normal", true, kindKeyword},
	"font-family":     {"Times New Roman", true, kindKeyword},
	"font-variant":    {"normal", true, kindKeyword},
	"line-height":     {"normal", true, kindLineHeight},
	"letter-spacing":  {"normal", true, kindLength},
	"word-spacing":    {"0px", true, kindLength},
	"text-align":      {"start", true, kindKeyword},
	"text-indent":     {"0px", true, kindLength},
	"text-transform":  {"none", true, kindKeyword},
	"white-space":     {"normal", true, kindKeyword},
	"list-style-type": {"disc", true, kindKeyword},
	"cursor":          {"auto", true, kindKeyword},

	"text-decoration-line":  {"none", false, kindKeyword},
	"text-decoration-style": {"solid", false, kindKeyword},
	"text-decoration-color": {"currentcolor", false, kindColor},

	"flex-direction":  {"row", false, kindKeyword},
	"flex-wrap":       {"nowrap", false, kindKeyword},
	"flex-grow":       {"0", false, kindKeyword},
	"flex-shrink":     {"1", false, kindKeyword},
	"flex-basis":      {"auto", false, kindLength},
	"justify-content": {"normal", false, kindKeyword},
	"align-items":     {"normal", false, kindKeyword},
	"align-content":   {"normal", false, kindKeyword},
	"align-self":      {"auto", false, kindKeyword},
	"order":           {"0", false, kindKeyword},
	"row-gap":         {"normal", false, kindLength},
	"column-gap":      {"normal", false, kindLength},

	"grid-template-columns": {"none", false, kindMixed},
	"grid-template-rows":    {"none", false, kindMixed},
	"grid-column":           {"auto", false, kindKeyword},
	"grid-row":              {"auto", false, kindKeyword},

	"box-shadow":   {"none", false, kindMixed},
	"text-shadow":  {"none", true, kindMixed},
	"transform":    {"none", false, kindMixed},
	"transition":   {"all 0s ease 0s", false, kindMixed},
	"object-fit":   {"fill", false, kindKeyword},
	"aspect-ratio": {"auto", false, kindKeyword},
}

// inheritedCustom reports whether an unlisted property inherits. Custom
// properties always do.
func inheritedCustom(name string) bool {
	return len(name) > 2 && name[:2] == "--"
}
