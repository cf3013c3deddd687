package config

import "testing"

func TestCleanPathSegment(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"button.css", "button.css"},
		{"exports.json", "exports.json"},
		{"a/b.css", "ab.css"},
		{"", "_"},
		{".", "_."},
		{"..", "_.."},
		{"../", "_.."},
		{"a\x00b.css", "ab.css"},
	}
	for _, tt := range tests {
		if got := CleanPathSegment(tt.in); got != tt.want {
			t.Errorf("CleanPathSegment(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
