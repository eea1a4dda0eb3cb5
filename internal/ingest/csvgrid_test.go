package ingest

import (
	"reflect"
	"testing"
)

// ============================================================================
// ParseGrid Tests
// ============================================================================

func TestParseGrid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  [][]string
	}{
		{
			name:  "empty input yields zero rows",
			input: "",
			want:  nil,
		},
		{
			name:  "single row",
			input: "a,b,c",
			want:  [][]string{{"a", "b", "c"}},
		},
		{
			name:  "two rows with trailing newline",
			input: "a,b\nc,d\n",
			want:  [][]string{{"a", "b"}, {"c", "d"}},
		},
		{
			name:  "carriage returns stripped",
			input: "a,b\r\nc,d\r\n",
			want:  [][]string{{"a", "b"}, {"c", "d"}},
		},
		{
			name:  "quoted field with comma",
			input: `a,"b,c",d`,
			want:  [][]string{{"a", "b,c", "d"}},
		},
		{
			name:  "quoted field with newline",
			input: "a,\"line1\nline2\",c",
			want:  [][]string{{"a", "line1\nline2", "c"}},
		},
		{
			name:  "escaped quote inside quoted field",
			input: `a,"say ""hi""",c`,
			want:  [][]string{{"a", `say "hi"`, "c"}},
		},
		{
			name:  "unterminated quote runs to end of input",
			input: "a,\"no closing\nquote here",
			want:  [][]string{{"a", "no closing\nquote here"}},
		},
		{
			name:  "empty fields preserved",
			input: "a,,c\n,,\n",
			want:  [][]string{{"a", "", "c"}, {"", "", ""}},
		},
		{
			name:  "leading blank line suppressed",
			input: "\na,b\n",
			want:  [][]string{{"a", "b"}},
		},
		{
			name:  "multiple leading blank lines suppressed",
			input: "\n\na,b\n",
			want:  [][]string{{"a", "b"}},
		},
		{
			name:  "interior blank line kept as sparse row",
			input: "a,b\n\nc,d\n",
			want:  [][]string{{"a", "b"}, {""}, {"c", "d"}},
		},
		{
			name:  "blank line before final newline keeps one empty row",
			input: "a,b\n\n",
			want:  [][]string{{"a", "b"}, {""}},
		},
		{
			name:  "only newlines yields zero rows",
			input: "\n\n\n",
			want:  nil,
		},
		{
			name:  "quoted empty field is a real field",
			input: `"",b`,
			want:  [][]string{{"", "b"}},
		},
		{
			name:  "ragged rows preserved",
			input: "a,b,c\nd\ne,f\n",
			want:  [][]string{{"a", "b", "c"}, {"d"}, {"e", "f"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseGrid(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseGrid(%q) = %#v, want %#v", tt.input, got, tt.want)
			}
		})
	}
}

// TestParseGrid_RoundTrip serializes grids through WriteGrid and parses
// them back; the grid must survive exactly, including cells containing
// commas, quotes, and newlines.
func TestParseGrid_RoundTrip(t *testing.T) {
	grids := [][][]string{
		{{"date", "amount"}, {"2024-01-01", "100"}},
		{{"a", "b"}, {"x,y", `quote "inside"`}, {"multi\nline", ""}},
		{{"h1", "h2", "h3"}, {"", "", ""}, {",", `"`, "\n"}},
		{{"only"}, {"one"}, {"column"}},
		{{"tricky"}, {`""`}, {`,"`}, {"a\"b"}},
	}

	for _, grid := range grids {
		text := WriteGrid(grid)
		got := ParseGrid(text)
		if !reflect.DeepEqual(got, grid) {
			t.Errorf("round trip failed:\n text: %q\n  got: %#v\n want: %#v", text, got, grid)
		}
	}
}

// ============================================================================
// WriteGrid Tests
// ============================================================================

func TestWriteGrid_QuotesOnlyWhenNeeded(t *testing.T) {
	got := WriteGrid([][]string{{"plain", "with,comma", `with"quote`, "with\nnewline"}})
	want := "plain,\"with,comma\",\"with\"\"quote\",\"with\nnewline\"\n"
	if got != want {
		t.Errorf("WriteGrid = %q, want %q", got, want)
	}
}
