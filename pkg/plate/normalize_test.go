package plate

import (
	"testing"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		expect string
	}{
		{
			name:   "uppercase and strip spaces",
			raw:    "abc 123",
			expect: "ABC123",
		},
		{
			name:   "strip punctuation",
			raw:    "A.B,C*1!2?3",
			expect: "ABC123",
		},
		{
			name:   "collapse dash runs",
			raw:    "ABC--123",
			expect: "ABC-123",
		},
		{
			name:   "too short rejected",
			raw:    "AB1",
			expect: "",
		},
		{
			name:   "too long rejected",
			raw:    "ABCDE12345",
			expect: "",
		},
		{
			name:   "empty rejected",
			raw:    "",
			expect: "",
		},
		{
			name:   "space inside plate",
			raw:    "ABC I23",
			expect: "ABCI23",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Clean(tc.raw)
			if got != tc.expect {
				t.Errorf("Clean(%q): got %q, want %q", tc.raw, got, tc.expect)
			}
		})
	}
}

func TestValid(t *testing.T) {
	valid := []string{
		"ABC123", "ABC-123", // 3 letters + 3 digits
		"A1B234", "A1B-234", // letter digit letter + 3 digits
		"AB1234", // 2 letters + 4 digits
		"ABCD12", // 4 letters + 2 digits
		"A12B34", // letter 2digits letter 2digits
		"123ABC", // 3 digits + 3 letters
		"ABCI23", // matches the 4-letter shape even though I is a likely misread
	}
	for _, code := range valid {
		if !Valid(code) {
			t.Errorf("Valid(%q): got false, want true", code)
		}
	}

	invalid := []string{
		"", "ABC", "ABC12", "1234567", "ABCDEF", "123456", "ABC1234X", "A23BC1",
	}
	for _, code := range invalid {
		if Valid(code) {
			t.Errorf("Valid(%q): got true, want false", code)
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		expect string
	}{
		{
			name:   "already canonical formats",
			raw:    "ABC123",
			expect: "ABC-123",
		},
		{
			name:   "already formatted stays put",
			raw:    "ABC-123",
			expect: "ABC-123",
		},
		{
			name:   "mixed shape gets separator",
			raw:    "A1B234",
			expect: "A1B-234",
		},
		{
			name:   "two by four shape stays bare",
			raw:    "AB1234",
			expect: "AB1234",
		},
		{
			name:   "digits then letters stays bare",
			raw:    "123ABC",
			expect: "123ABC",
		},
		{
			name:   "four letter shape wins over correction",
			raw:    "ABC I23",
			expect: "ABCI23", // validates as ABCI+23, so the I is never swapped
		},
		{
			name:   "single confusable S to 5",
			raw:    "ABC12S",
			expect: "ABC-125",
		},
		{
			name:   "single confusable digit to letter",
			raw:    "0BC123",
			expect: "OBC-123",
		},
		{
			name:   "no swap partner falls back",
			raw:    "4BC123",
			expect: "4BC123", // 4 has no swap partner; falls back unformatted
		},
		{
			name:   "run correction 0O to 00",
			raw:    "ABC0O3",
			expect: "ABC-003",
		},
		{
			name:   "run correction II to 11",
			raw:    "ABCII3",
			expect: "ABC-113",
		},
		{
			name:   "ungrammatical but plausible length falls back",
			raw:    "ABCDEFG",
			expect: "ABCDEFG",
		},
		{
			name:   "too short rejected",
			raw:    "AB1",
			expect: "",
		},
		{
			name:   "garbage rejected",
			raw:    "!!!",
			expect: "",
		},
		{
			name:   "lowercase with noise",
			raw:    " abc-123 ",
			expect: "ABC-123",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Normalize(tc.raw)
			if got != tc.expect {
				t.Errorf("Normalize(%q): got %q, want %q", tc.raw, got, tc.expect)
			}
		})
	}
}

// Normalizing an already-canonical code must be a fixed point.
func TestNormalize_Idempotent(t *testing.T) {
	codes := []string{"ABC123", "A1B234", "AB1234", "ABCD12", "A12B34", "123ABC"}
	for _, code := range codes {
		first := Normalize(code)
		if first == "" {
			t.Fatalf("Normalize(%q): unexpectedly rejected", code)
		}
		second := Normalize(first)
		if second != first {
			t.Errorf("Normalize(Normalize(%q)): got %q, want %q", code, second, first)
		}
		if first != Format(code) {
			t.Errorf("Normalize(%q): got %q, want Format result %q", code, first, Format(code))
		}
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in     string
		expect string
	}{
		{"ABC123", "ABC-123"},
		{"A1B234", "A1B-234"},
		{"AB1234", "AB1234"},
		{"ABCD12", "ABCD12"},
		{"123ABC", "123ABC"},
		{"ABC-123", "ABC-123"},
	}
	for _, tc := range tests {
		if got := Format(tc.in); got != tc.expect {
			t.Errorf("Format(%q): got %q, want %q", tc.in, got, tc.expect)
		}
	}
}
