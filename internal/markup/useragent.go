package markup

// userAgentCSS is the default stylesheet applied beneath author styles.
const userAgentCSS = `
html, address, blockquote, body, center, dialog, div, figure, figcaption,
footer, form, header, hr, legend, listing, main, p, plaintext, pre, search,
xmp, article, aside, h1, h2, h3, h4, h5, h6, hgroup, nav, section,
dl, dt, dd, ol, ul, menu, details, summary, fieldset, optgroup {
  display: block;
}
head, link, meta, script, style, title, template, noscript, base, [hidden] {
  display: none;
}
body { margin: 8px; }
p, dl, figure, blockquote { margin-top: 1em; margin-bottom: 1em; }
blockquote, figure { margin-left: 40px; margin-right: 40px; }
dd { margin-left: 40px; }
h1 { font-size: 2em; margin-top: 0.67em; margin-bottom: 0.67em; font-weight: bold; }
h2 { font-size: 1.5em; margin-top: 0.83em; margin-bottom: 0.83em; font-weight: bold; }
h3 { font-size: 1.17em; margin-top: 1em; margin-bottom: 1em; font-weight: bold; }
h4 { margin-top: 1.33em; margin-bottom: 1.33em; font-weight: bold; }
h5 { font-size: 0.83em; margin-top: 1.67em; margin-bottom: 1.67em; font-weight: bold; }
h6 { font-size: 0.67em; margin-top: 2.33em; margin-bottom: 2.33em; font-weight: bold; }
ul, ol, menu { margin-top: 1em; margin-bottom: 1em; padding-left: 40px; }
ul, menu { list-style-type: disc; }
ol { list-style-type: decimal; }
ul ul, ol ul { list-style-type: circle; }
li { display: list-item; }
ul ul, ul ol, ol ul, ol ol { margin-top: 0; margin-bottom: 0; }
hr {
  margin-top: 0.5em; margin-bottom: 0.5em; margin-left: auto; margin-right: auto;
  border-style: inset; border-width: 1px; color: gray; overflow: hidden;
}
fieldset {
  margin-left: 2px; margin-right: 2px;
  padding: 0.35em 0.75em 0.625em;
  border: 2px groove rgb(192, 192, 192);
}
pre, listing, xmp, plaintext { white-space: pre; margin-top: 1em; margin-bottom: 1em; }
pre, code, kbd, samp, tt { font-family: monospace; }
pre, code, kbd, samp, tt { font-size: 13px; }
b, strong, th { font-weight: bold; }
i, em, cite, var, dfn, address { font-style: italic; }
u, ins { text-decoration: underline; }
s, strike, del { text-decoration: line-through; }
small { font-size: smaller; }
big { font-size: larger; }
sub, sup { font-size: smaller; }
mark { background-color: yellow; color: black; }
center { text-align: center; }
a[href] { color: #0000ee; text-decoration: underline; cursor: pointer; }
table { display: table; border-collapse: separate; box-sizing: border-box; }
caption { display: table-caption; text-align: center; }
thead { display: table-header-group; }
tbody { display: table-row-group; }
tfoot { display: table-footer-group; }
tr { display: table-row; }
td, th { display: table-cell; padding: 1px; }
th { text-align: center; }
img, video, canvas, iframe, svg { display: inline; }
img { overflow: clip; }
input, select, textarea, button { display: inline-block; margin: 0; }
button {
  padding: 1px 6px;
  border: 2px outset rgb(118, 118, 118);
  text-align: center;
  cursor: default;
}
textarea { white-space: pre-wrap; }
`
