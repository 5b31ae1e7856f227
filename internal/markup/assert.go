package markup

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
	"golang.org/x/net/html"

	"github.com/felixgeelhaar/verdict/internal/domain"
)

// checkFunc evaluates one assertion against a rendered document.
type checkFunc func(doc *Document, tc domain.TestAssertion, source string) domain.TestResult

var checks = map[domain.AssertionKind]checkFunc{
	domain.AssertExists:         checkExists,
	domain.AssertCountAtLeast:   checkCountAtLeast,
	domain.AssertSourceContains: checkSourceContains,
	domain.AssertSourceMatch:    checkSourceMatch,
	domain.AssertEquals:         compareCheck(func(got, want string) bool { return got == want }),
	domain.AssertNotEquals:      compareCheck(func(got, want string) bool { return got != want }),
	domain.AssertContains:       compareCheck(strings.Contains),
}

// Check evaluates a single assertion. source is the raw text that source
// assertions inspect. Unknown kinds fail rather than error so the other
// assertions still report.
func Check(doc *Document, tc domain.TestAssertion, source string) domain.TestResult {
	fn, ok := checks[tc.Assertion]
	if !ok {
		return domain.TestResult{
			Description: describe(tc),
			Got:         fmt.Sprintf("unknown assertion %q", tc.Assertion),
		}
	}
	return fn(doc, tc, source)
}

func checkExists(doc *Document, tc domain.TestAssertion, _ string) domain.TestResult {
	nodes, err := doc.QueryAll(tc.Target())
	if err != nil {
		return invalidSelector(tc, err)
	}
	return domain.TestResult{Pass: len(nodes) > 0, Description: describe(tc), Got: len(nodes)}
}

func checkCountAtLeast(doc *Document, tc domain.TestAssertion, _ string) domain.TestResult {
	want, err := tc.ExpectedInt()
	if err != nil {
		return domain.TestResult{Description: describe(tc), Got: err.Error()}
	}
	nodes, err := doc.QueryAll(tc.Target())
	if err != nil {
		return invalidSelector(tc, err)
	}
	return domain.TestResult{Pass: len(nodes) >= want, Description: describe(tc), Got: len(nodes)}
}

func checkSourceContains(_ *Document, tc domain.TestAssertion, source string) domain.TestResult {
	want := tc.ExpectedString()
	return domain.TestResult{
		Pass:        want != "" && strings.Contains(source, want),
		Description: describe(tc),
		Got:         excerpt(source),
	}
}

// checkSourceMatch treats the value as an ECMAScript pattern fragment. A
// pattern that does not compile is matched literally.
func checkSourceMatch(_ *Document, tc domain.TestAssertion, source string) domain.TestResult {
	pattern := tc.ExpectedString()
	var pass bool
	if re, err := regexp2.Compile(pattern, regexp2.ECMAScript); err == nil {
		re.MatchTimeout = sourceMatchTimeout
		pass, err = re.MatchString(source)
		if err != nil {
			pass = false
		}
	} else {
		pass = strings.Contains(source, pattern)
	}
	return domain.TestResult{Pass: pattern != "" && pass, Description: describe(tc), Got: excerpt(source)}
}

// compareCheck reads the first match's computed property, or its text when
// no property is named, and compares it with the expected value.
func compareCheck(cmp func(got, want string) bool) checkFunc {
	return func(doc *Document, tc domain.TestAssertion, _ string) domain.TestResult {
		n, err := doc.Query(tc.Target())
		if err != nil {
			return invalidSelector(tc, err)
		}
		if n == nil {
			return domain.TestResult{Description: describe(tc), Got: "element not found"}
		}
		got := observed(doc, n, tc.Property)
		return domain.TestResult{
			Pass:        cmp(got, strings.TrimSpace(tc.ExpectedString())),
			Description: describe(tc),
			Got:         got,
		}
	}
}

func observed(doc *Document, n *html.Node, property string) string {
	if property == "" {
		return Text(n)
	}
	return strings.TrimSpace(doc.ComputedStyle(n).Get(property))
}

func invalidSelector(tc domain.TestAssertion, err error) domain.TestResult {
	return domain.TestResult{Description: describe(tc), Got: err.Error()}
}

func describe(tc domain.TestAssertion) string {
	if tc.Description != "" {
		return tc.Description
	}
	target := tc.Target()
	switch tc.Assertion {
	case domain.AssertExists:
		return target + " exists"
	case domain.AssertCountAtLeast:
		return fmt.Sprintf("at least %s %s", tc.ExpectedString(), target)
	case domain.AssertSourceContains, domain.AssertSourceMatch:
		return fmt.Sprintf("source uses %q", tc.ExpectedString())
	}
	if tc.Property != "" {
		return fmt.Sprintf("%s %s %s %s", target, tc.Property, tc.Assertion, tc.ExpectedString())
	}
	return fmt.Sprintf("%s text %s %s", target, tc.Assertion, tc.ExpectedString())
}

const (
	excerptLimit       = 200
	sourceMatchTimeout = time.Second
)

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= excerptLimit {
		return s
	}
	cut := excerptLimit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
