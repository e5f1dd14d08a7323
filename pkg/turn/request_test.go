package turn

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	r := &Request{Message: "hello"}
	if err := r.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}

	for _, message := range []string{"", "   ", "\n\t "} {
		r := &Request{Message: message}
		if err := r.Validate(); err != ErrEmptyMessage {
			t.Errorf("Validate(%q) = %v, want ErrEmptyMessage", message, err)
		}
	}
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{
			name:    "short message used verbatim",
			message: "How do I cook rice?",
			want:    "How do I cook rice?",
		},
		{
			name:    "long message cut to first ten words",
			message: "one two three four five six seven eight nine ten eleven twelve",
			want:    "one two three four five six seven eight nine ten",
		},
		{
			name:    "whitespace collapsed",
			message: "  hello   world  ",
			want:    "hello world",
		},
		{
			name:    "character budget trims oversized words",
			message: strings.Repeat("a", 120),
			want:    strings.Repeat("a", 80),
		},
		{
			name:    "blank message falls back",
			message: "   ",
			want:    "New conversation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := deriveTitle(tt.message); got != tt.want {
				t.Errorf("deriveTitle(%q) = %q, want %q", tt.message, got, tt.want)
			}
		})
	}
}
