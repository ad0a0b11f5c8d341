package facematch

import "testing"

func TestRemoveDiacritics(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Honza", "Honza"},
		{"Jiří", "Jiri"},
		{"café", "cafe"},
		{"naïve", "naive"},
		{"hello", "hello"},
		{"Žluťoučký kůň", "Zlutoucky kun"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := RemoveDiacritics(tt.input)
			if result != tt.expected {
				t.Errorf("RemoveDiacritics(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Jan Novák", "jan novak"},
		{"jan-novak", "jan novak"},
		{"JOHN DOE", "john doe"},
		{"jan_novák", "jan novak"},
		{"  Jan   Novák ", "jan novak"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := NormalizeLabel(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizeLabel(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestSameLabel(t *testing.T) {
	if !SameLabel("Jiří", "jiri") {
		t.Error("expected Jiří and jiri to be the same label")
	}
	if SameLabel("Alice", "Alicia") {
		t.Error("expected Alice and Alicia to differ")
	}
}

func TestFolderName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Alice", "Alice"},
		{"Jan Novák", "Jan Novák"},
		{"AC/DC", "AC_DC"},
		{"a:b*c?", "a_b_c_"},
		{"..", "_"},
		{" ../etc ", "_etc"},
		{"", "_"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := FolderName(tt.input)
			if result != tt.expected {
				t.Errorf("FolderName(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
