package correlate

import "testing"

func TestNormalizeSubject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		subject string
		want    string
	}{
		{"trailing marker", "Order #42 (#ПЕР)", "Order #42"},
		{"marker with padding", "  Invoice 7   (#ABC-1)  ", "Invoice 7"},
		{"stacked markers", "Report (#A) (#B)", "Report"},
		{"no marker", "  Plain subject ", "Plain subject"},
		{"marker not trailing", "Re (#X) tail", "Re (#X) tail"},
		{"hash without parens", "Order #42", "Order #42"},
		{"empty token", "Order ()", "Order ()"},
		{"empty marker body", "Order (#)", "Order (#)"},
		{"only marker", "(#ПЕР)", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeSubject(tt.subject); got != tt.want {
				t.Errorf("NormalizeSubject(%q): got %q, want %q", tt.subject, got, tt.want)
			}
		})
	}
}

func TestMarkSubject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		subject string
		marker  string
		want    string
	}{
		{"Order #42", "(#ПЕР)", "Order #42 (#ПЕР)"},
		{"Order #42 (#ПЕР)", "(#ПЕР)", "Order #42 (#ПЕР)"},
		{" Order #42 ", "", "Order #42"},
		{"", "(#ПЕР)", "(#ПЕР)"},
	}

	for _, tt := range tests {
		got := MarkSubject(tt.subject, tt.marker)
		if got != tt.want {
			t.Errorf("MarkSubject(%q, %q): got %q, want %q", tt.subject, tt.marker, got, tt.want)
		}
		if NormalizeSubject(got) != NormalizeSubject(tt.subject) {
			t.Errorf("NormalizeSubject(MarkSubject(%q)): got %q", tt.subject, NormalizeSubject(got))
		}
	}
}

func TestExtractToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"single token", "Total [Item: 1000.50] due", "Item: 1000.50"},
		{"first of many", "[first] and [second]", "first"},
		{"multiline", "line one\nref [A-7]\n[B-8]", "A-7"},
		{"none", "no brackets here", ""},
		{"empty body", "", ""},
		{"empty brackets skipped", "[] then [x]", "x"},
		{"unterminated", "open [bracket only", ""},
		{"nested keeps inner open bracket", "[[inner]]", "[inner"},
		{"stray open bracket", "Total [Item: [1000.50] due", "Item: [1000.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ExtractToken(tt.body); got != tt.want {
				t.Errorf("ExtractToken(%q): got %q, want %q", tt.body, got, tt.want)
			}
		})
	}
}
