package ledger

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercase word", "soldadura", "SOLDADURA"},
		{"already canonical", "SOLDADURA", "SOLDADURA"},
		{"mixed case", "Pintura", "PINTURA"},
		{"accented rune and spaces", "Línea 3 ", "L_NEA_3_"},
		{"digits survive", "area51", "AREA51"},
		{"punctuation", "a-b.c/d", "A_B_C_D"},
		{"empty", "", ""},
		{"only separators", " -/ ", "____"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.input)
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"Soldadura", "Línea 3 ", "a b c", "ÁÉÍÓÚ", "x_1"}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}
