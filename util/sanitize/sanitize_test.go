package sanitize

import "testing"

func TestForBranchPart(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"identifier", "ENG-42", "eng-42"},
		{"spaces", "Fix login bug", "fix-login-bug"},
		{"underscores and dots", "eng_42.b", "eng-42-b"},
		{"special characters", "fix: login (again)!", "fix-login-again"},
		{"collapses dashes", "a--b---c", "a-b-c"},
		{"trims dashes", "-eng-42-", "eng-42"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ForBranchPart(tt.input); got != tt.want {
				t.Errorf("ForBranchPart(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestForFilename(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"title", "Fix The Login Issue", "fix-the-login-issue"},
		{"drops punctuation", "what's up?", "whats-up"},
		{"truncates long names", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ForFilename(tt.input); got != tt.want {
				t.Errorf("ForFilename(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
