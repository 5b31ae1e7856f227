package domain

import (
	"testing"
)

func TestExerciseType(t *testing.T) {
	tests := []struct {
		typ      ExerciseType
		valid    bool
		isMarkup bool
	}{
		{ExerciseTypeJS, true, false},
		{ExerciseTypeHTML, true, true},
		{ExerciseTypeCSS, true, true},
		{ExerciseTypeHTMLCSS, true, true},
		{ExerciseType("python"), false, false},
		{ExerciseType(""), false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			if got := tt.typ.Valid(); got != tt.valid {
				t.Errorf("Valid() = %v, want %v", got, tt.valid)
			}
			if got := tt.typ.IsMarkup(); got != tt.isMarkup {
				t.Errorf("IsMarkup() = %v, want %v", got, tt.isMarkup)
			}
		})
	}
}

func TestTestAssertion_Target(t *testing.T) {
	if got := (TestAssertion{Query: ".a", Selector: "#b"}).Target(); got != "#b" {
		t.Errorf("Target() = %q, want selector to win", got)
	}
	if got := (TestAssertion{Query: ".a"}).Target(); got != ".a" {
		t.Errorf("Target() = %q, want query fallback", got)
	}
}

func TestTestAssertion_ExpectedString(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"nil", nil, ""},
		{"string", "200px", "200px"},
		{"json number", float64(3), "3"},
		{"fraction", 0.5, "0.5"},
		{"yaml int", 4, "4"},
		{"bool", true, "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := TestAssertion{Value: tt.value}
			if got := a.ExpectedString(); got != tt.want {
				t.Errorf("ExpectedString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTestAssertion_ExpectedInt(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    int
		wantErr bool
	}{
		{"json number", float64(3), 3, false},
		{"yaml int", 2, 2, false},
		{"numeric string", " 5 ", 5, false},
		{"fraction rounds up", 2.5, 3, false},
		{"fractional string rounds up", "1.2", 2, false},
		{"whole float", 4.0, 4, false},
		{"missing defaults to one", nil, 1, false},
		{"garbage", "many", 0, true},
		{"bool", true, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TestAssertion{Value: tt.value}.ExpectedInt()
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExpectedInt() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExpectedInt() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAssertionKind_Valid(t *testing.T) {
	for _, k := range AssertionKinds {
		if !k.Valid() {
			t.Errorf("%s should be valid", k)
		}
	}
	if AssertionKind("matches").Valid() {
		t.Error("unknown kind should be invalid")
	}
}
