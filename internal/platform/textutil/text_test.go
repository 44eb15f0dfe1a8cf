package textutil

import "testing"

func TestNormalizeLocale(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{input: "en-US", want: "en-US"},
		{input: " ja ", want: "ja"},
		{input: "EN_gb", want: "en-GB"},
		{input: "", want: "en"},
		{input: "not a tag!!", want: "en"},
	}
	for _, tc := range cases {
		if got := NormalizeLocale(tc.input); got != tc.want {
			t.Errorf("NormalizeLocale(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestFoldFilename(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{input: "Renée Müller", want: "renee-muller"},
		{input: "  Acme Corp.  ", want: "acme-corp"},
		{input: "order #42 / invoice", want: "order-42-invoice"},
		{input: "---", want: ""},
	}
	for _, tc := range cases {
		if got := FoldFilename(tc.input); got != tc.want {
			t.Errorf("FoldFilename(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}
