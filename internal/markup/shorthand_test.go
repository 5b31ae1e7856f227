package markup

import (
	"reflect"
	"testing"
)

func TestExpandShorthand(t *testing.T) {
	tests := []struct {
		property string
		value    string
		want     []longhand
	}{
		{"padding", "1px 2px", []longhand{
			{"padding-top", "1px"}, {"padding-right", "2px"}, {"padding-bottom", "1px"}, {"padding-left", "2px"},
		}},
		{"border-top", "dashed red", []longhand{
			{"border-top-width", "medium"}, {"border-top-style", "dashed"}, {"border-top-color", "red"},
		}},
		{"border-radius", "4px 8px / 2px", []longhand{
			{"border-top-left-radius", "4px"}, {"border-top-right-radius", "8px"},
			{"border-bottom-right-radius", "4px"}, {"border-bottom-left-radius", "8px"},
		}},
		{"flex", "none", []longhand{{"flex-grow", "0"}, {"flex-shrink", "0"}, {"flex-basis", "auto"}}},
		{"flex", "2 1 100px", []longhand{{"flex-grow", "2"}, {"flex-shrink", "1"}, {"flex-basis", "100px"}}},
		{"background", "url(a.png) #fff", []longhand{{"background-color", "#fff"}, {"background-image", "url(a.png)"}}},
		{"font", "italic bold 12px/30px Georgia, serif", []longhand{
			{"font-style", "italic"}, {"font-weight", "bold"}, {"line-height", "30px"},
			{"font-size", "12px"}, {"font-family", "Georgia, serif"},
		}},
		{"margin", "inherit", []longhand{
			{"margin-top", "inherit"}, {"margin-right", "inherit"}, {"margin-bottom", "inherit"}, {"margin-left", "inherit"},
		}},
		{"margin", "1px 2px 3px 4px 5px", nil},
		{"color", "red", []longhand{{"color", "red"}}},
	}

	for _, tt := range tests {
		t.Run(tt.property+": "+tt.value, func(t *testing.T) {
			got := expandShorthand(tt.property, tt.value)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expandShorthand() = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestSplitValue(t *testing.T) {
	got := splitValue("0 2px  4px rgba(0, 0, 0, 0.2)")
	want := []string{"0", "2px", "4px", "rgba(0, 0, 0, 0.2)"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitValue() = %q; want %q", got, want)
	}
}
