package markup_test

import (
	"context"
	"testing"
	"time"

	"github.com/felixgeelhaar/verdict/internal/domain"
	"github.com/felixgeelhaar/verdict/internal/markup"
)

func TestEngine_Evaluate(t *testing.T) {
	engine := markup.NewEngine(0, nil)
	providedHTML := `<div class="box" id="test-box">Content</div>`
	css := `.box { width: 200px; height: 150px; box-sizing: border-box; background-color: #3b82f6; }`

	outcome := engine.Evaluate(context.Background(), markup.Input{
		HTML: providedHTML,
		CSS:  css,
		TestCases: []domain.TestAssertion{
			{Selector: "#test-box", Assertion: domain.AssertEquals, Property: "width", Value: "200px", Description: "width is 200px"},
			{Selector: "#test-box", Assertion: domain.AssertEquals, Property: "width", Value: "199px", Description: "width is 199px"},
			{Selector: "#test-box", Assertion: domain.AssertEquals, Property: "background-color", Value: "rgb(59, 130, 246)", Description: "blue background"},
			{Query: ".box", Assertion: domain.AssertExists, Description: "box exists"},
			{Query: ".missing", Assertion: domain.AssertExists, Description: "missing element"},
			{Selector: "div", Assertion: domain.AssertCountAtLeast, Value: float64(1), Description: "one div"},
			{Selector: "div", Assertion: domain.AssertCountAtLeast, Value: float64(2), Description: "two divs"},
			{Assertion: domain.AssertSourceContains, Value: "box-sizing", Description: "uses box-sizing"},
			{Assertion: domain.AssertSourceMatch, Value: `width:\s*200px`, Description: "width pattern"},
			{Selector: "#test-box", Assertion: domain.AssertNotEquals, Property: "height", Value: "100px", Description: "height is not 100px"},
			{Selector: "#test-box", Assertion: domain.AssertContains, Property: "box-sizing", Value: "border", Description: "border box"},
			{Selector: "#test-box", Assertion: domain.AssertEquals, Value: "Content", Description: "text content"},
		},
		DefaultSource: css,
	})

	if outcome.IsError() {
		t.Fatalf("Evaluate() error = %s", outcome.Error)
	}
	want := []bool{true, false, true, true, false, true, false, true, true, true, true, true}
	if len(outcome.Results) != len(want) {
		t.Fatalf("got %d results; want %d", len(outcome.Results), len(want))
	}
	for i, r := range outcome.Results {
		if r.Pass != want[i] {
			t.Errorf("result %d (%s) pass = %v; want %v (got %v)", i, r.Description, r.Pass, want[i], r.Got)
		}
	}
	if got := outcome.Results[1].Got; got != "200px" {
		t.Errorf("failing width got = %v; want 200px", got)
	}
}

func TestEngine_EvaluatePreservesOrder(t *testing.T) {
	engine := markup.NewEngine(0, nil)
	cases := []domain.TestAssertion{
		{Query: "a", Assertion: domain.AssertExists, Description: "first"},
		{Query: "b", Assertion: domain.AssertExists, Description: "second"},
		{Query: "c", Assertion: domain.AssertExists, Description: "third"},
	}
	outcome := engine.Evaluate(context.Background(), markup.Input{HTML: `<b>x</b>`, TestCases: cases})
	for i, r := range outcome.Results {
		if r.Description != cases[i].Description {
			t.Errorf("result %d = %q; want %q", i, r.Description, cases[i].Description)
		}
	}
}

func TestEngine_EvaluateNoAssertions(t *testing.T) {
	outcome := markup.NewEngine(0, nil).Evaluate(context.Background(), markup.Input{HTML: `<p>hi</p>`})
	if outcome.IsError() {
		t.Fatalf("Evaluate() error = %s", outcome.Error)
	}
	if outcome.Results == nil || len(outcome.Results) != 0 {
		t.Errorf("Results = %v; want empty slice", outcome.Results)
	}
}

func TestEngine_EvaluateBadAssertions(t *testing.T) {
	outcome := markup.NewEngine(0, nil).Evaluate(context.Background(), markup.Input{
		HTML: `<p>hi</p>`,
		TestCases: []domain.TestAssertion{
			{Query: "p[", Assertion: domain.AssertExists},
			{Query: "p", Assertion: "glows"},
			{Query: "section", Assertion: domain.AssertEquals, Property: "color", Value: "red"},
		},
	})
	if outcome.IsError() {
		t.Fatalf("Evaluate() error = %s", outcome.Error)
	}
	for i, r := range outcome.Results {
		if r.Pass {
			t.Errorf("result %d passed; want failure", i)
		}
		if r.Got == nil {
			t.Errorf("result %d has no diagnostic", i)
		}
	}
}

func TestEngine_EvaluateScriptsAreInert(t *testing.T) {
	outcome := markup.NewEngine(0, nil).Evaluate(context.Background(), markup.Input{
		HTML: `<button onclick="alert(1)">go</button><script>document.body.innerHTML = ""</script>`,
		TestCases: []domain.TestAssertion{
			{Query: "button", Assertion: domain.AssertExists},
			{Query: "script", Assertion: domain.AssertExists},
			{Query: "[onclick]", Assertion: domain.AssertExists},
		},
	})
	want := []bool{true, false, false}
	for i, r := range outcome.Results {
		if r.Pass != want[i] {
			t.Errorf("result %d pass = %v; want %v", i, r.Pass, want[i])
		}
	}
}

func TestEngine_EvaluateCanceledDuringSettle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := markup.NewEngine(time.Minute, nil).Evaluate(ctx, markup.Input{HTML: `<p>x</p>`})
	if outcome.Error != domain.CanceledMessage {
		t.Errorf("Error = %q; want %q", outcome.Error, domain.CanceledMessage)
	}
}

func TestEngine_EvaluateSourceTargets(t *testing.T) {
	outcome := markup.NewEngine(0, nil).Evaluate(context.Background(), markup.Input{
		HTML: `<nav></nav>`,
		CSS:  `nav { display: flex; flex-wrap: wrap; }`,
		TestCases: []domain.TestAssertion{
			{Assertion: domain.AssertSourceContains, Value: "flex-wrap", Source: "css"},
			{Assertion: domain.AssertSourceContains, Value: "<nav>", Source: "html"},
			{Assertion: domain.AssertSourceContains, Value: "flex-wrap"},
		},
		Sources:       map[string]string{"html": `<nav></nav>`, "css": `nav { display: flex; flex-wrap: wrap; }`},
		DefaultSource: `<nav></nav>`,
	})
	want := []bool{true, true, false}
	for i, r := range outcome.Results {
		if r.Pass != want[i] {
			t.Errorf("result %d pass = %v; want %v", i, r.Pass, want[i])
		}
	}
}

func TestEngine_EvaluateMalformedStylesheet(t *testing.T) {
	tests := []struct {
		name      string
		css       string
		testCases []domain.TestAssertion
		wantErr   bool
		want      []bool
	}{
		{
			name:      "untokenizable stylesheet is an error",
			css:       `.box { content: "open }`,
			testCases: []domain.TestAssertion{{Selector: ".box", Assertion: domain.AssertExists}},
			wantErr:   true,
		},
		{
			name: "declaration without colon is skipped",
			css:  `.box { width 200px; height: 10px }`,
			testCases: []domain.TestAssertion{
				{Selector: ".box", Assertion: domain.AssertEquals, Property: "height", Value: "10px"},
				{Selector: ".box", Assertion: domain.AssertEquals, Property: "width", Value: "200px"},
			},
			want: []bool{true, false},
		},
		{
			name: "stray closing brace spares later rules",
			css:  `} .other { color: red } .box { width: 200px }`,
			testCases: []domain.TestAssertion{
				{Selector: ".box", Assertion: domain.AssertEquals, Property: "width", Value: "200px"},
			},
			want: []bool{true},
		},
		{
			name: "source checks still run",
			css:  `.box { width 200px }`,
			testCases: []domain.TestAssertion{
				{Assertion: domain.AssertSourceContains, Value: "width"},
			},
			want: []bool{true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := markup.NewEngine(0, nil).Evaluate(context.Background(), markup.Input{
				HTML:          `<div class="box">x</div>`,
				CSS:           tt.css,
				TestCases:     tt.testCases,
				DefaultSource: tt.css,
			})
			if tt.wantErr {
				if !outcome.IsError() {
					t.Fatalf("Evaluate() = %+v; want error outcome", outcome)
				}
				if outcome.Results != nil {
					t.Errorf("Results = %v; want nil on error", outcome.Results)
				}
				return
			}
			if outcome.IsError() {
				t.Fatalf("Evaluate() error = %s", outcome.Error)
			}
			if len(outcome.Results) != len(tt.want) {
				t.Fatalf("got %d results; want %d", len(outcome.Results), len(tt.want))
			}
			for i, r := range outcome.Results {
				if r.Pass != tt.want[i] {
					t.Errorf("result %d pass = %v; want %v (got %v)", i, r.Pass, tt.want[i], r.Got)
				}
			}
		})
	}
}

func TestEngine_EvaluateFractionalCount(t *testing.T) {
	outcome := markup.NewEngine(0, nil).Evaluate(context.Background(), markup.Input{
		HTML: `<p>a</p><p>b</p>`,
		TestCases: []domain.TestAssertion{
			{Selector: "p", Assertion: domain.AssertCountAtLeast, Value: 2.5},
			{Selector: "p", Assertion: domain.AssertCountAtLeast, Value: 1.5},
		},
	})
	if outcome.IsError() {
		t.Fatalf("Evaluate() error = %s", outcome.Error)
	}
	want := []bool{false, true}
	for i, r := range outcome.Results {
		if r.Pass != want[i] {
			t.Errorf("result %d pass = %v; want %v", i, r.Pass, want[i])
		}
	}
}
