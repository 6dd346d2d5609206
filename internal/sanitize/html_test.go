package sanitize

import "testing"

func TestText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "general", want: "general"},
		{name: "script", input: "<script>alert(1)</script>lounge", want: "lounge"},
		{name: "tags", input: "<b>bold</b> move", want: "bold move"},
		{name: "entities kept", input: "Q&A", want: "Q&A"},
		{name: "quotes kept", input: `it's "fine"`, want: `it's "fine"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Text(tt.input); got != tt.want {
				t.Fatalf("Text(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "  My   Guild  ", want: "My Guild"},
		{input: "<img src=x onerror=alert(1)>", want: ""},
		{input: "tea\n\tparty", want: "tea party"},
	}

	for _, tt := range tests {
		if got := Name(tt.input); got != tt.want {
			t.Fatalf("Name(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
