package reconcile

import "testing"

func TestServerForm(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Paracetamol", "PARACETAMOL"},
		{"padded", " Paracetamol  ", "PARACETAMOL"},
		{"punctuation", "Dolo-650, (tabs).", "DOLO650TABS"},
		{"pack size ml", "Brethnol Syp 100ML", "BRETHNOLSYP"},
		{"pack size spaced", "Crocin 500 mg", "CROCIN"},
		{"pack size tablet", "Azee 10 TABLET", "AZEE"},
		{"only one suffix stripped", "X 10MG 20ML", "X10MG"},
		{"internal spaces removed", "Vitamin  C  Drops", "VITAMINCDROPS"},
		{"underscore kept", "Foo_Bar", "FOO_BAR"},
		{"unicode letters", "Ibuprofène", "IBUPROFÈNE"},
		{"bare pack size", "100ML", ""},
		{"separator controls trimmed", "\x1cABC\x1f", "ABC"},
		{"unicode spaces trimmed", "\u00a0Crocin\u2003", "CROCIN"},
		{"inner separator kept", "A\x1dB", "A\x1dB"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ServerForm(tt.in); got != tt.want {
				t.Errorf("ServerForm(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{" Paracetamol  ", "paracetamol"},
		{"paracetamol", "paracetamol"},
		{"PARACETAMOL", "paracetamol"},
		{"Brethnol Syp 100ML", "brethnolsyp"},
		{"X 10MG 20ML", "x"},
		{"Dolo-650", "dolo650"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"", " ", "Paracetamol", " Paracetamol  ", "Dolo-650 15 TAB", "X 10MG 20ML 5G",
		"Straße 10 ml", "İbuprofen", "Ａｍｏｘ 250MG", "tab 500 MG", "a.b.c", "10ML 20ML",
	}

	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestNormalizeAgreesWithServer(t *testing.T) {
	// Names the backend maps to the same product must group together.
	pairs := [][2]string{
		{"Paracetamol", " paracetamol "},
		{"Brethnol Syp", "BRETHNOL SYP 100ML"},
		{"Dolo 650", "dolo-650"},
		{"Vitamin C", "Vitamin  C."},
	}

	for _, p := range pairs {
		if ServerForm(p[0]) != ServerForm(p[1]) {
			t.Fatalf("test pair %q / %q is not server-equal", p[0], p[1])
		}
		if Normalize(p[0]) != Normalize(p[1]) {
			t.Errorf("Normalize(%q) = %q, Normalize(%q) = %q", p[0], Normalize(p[0]), p[1], Normalize(p[1]))
		}
	}
}

func TestProductKey(t *testing.T) {
	if got := ProductKey("P1", " Paracetamol  "); got != "P1|EXACT|PARACETAMOL" {
		t.Errorf("ProductKey = %q", got)
	}

	pid, product, ok := ParseProductKey("P1|EXACT|PARACETAMOL")
	if !ok || pid != "P1" || product != "PARACETAMOL" {
		t.Errorf("ParseProductKey = %q, %q, %v", pid, product, ok)
	}

	if _, _, ok := ParseProductKey("P1|PID|PR-9"); ok {
		t.Error("PID keys are not EXACT keys")
	}
}
