package utils

import (
	"strings"
	"testing"
)

func TestSplitText(t *testing.T) {
	t.Run("short text stays whole", func(t *testing.T) {
		chunks := SplitText("hello world", 100, 20)
		if len(chunks) != 1 || chunks[0] != "hello world" {
			t.Errorf("SplitText = %v, want single original chunk", chunks)
		}
	})

	t.Run("chunks overlap", func(t *testing.T) {
		text := strings.Repeat("abcdefghij", 10) // 100 chars
		chunks := SplitText(text, 40, 10)

		if len(chunks) < 3 {
			t.Fatalf("expected at least 3 chunks, got %d", len(chunks))
		}
		for i, c := range chunks {
			if len(c) > 40 {
				t.Errorf("chunk %d exceeds size: %d", i, len(c))
			}
		}
		// Tail of each chunk reappears at the head of the next one.
		for i := 0; i < len(chunks)-1; i++ {
			tail := chunks[i][len(chunks[i])-10:]
			if !strings.HasPrefix(chunks[i+1], tail) {
				t.Errorf("chunk %d does not overlap into chunk %d", i, i+1)
			}
		}
	})

	t.Run("no content lost", func(t *testing.T) {
		text := strings.Repeat("0123456789", 25)
		chunks := SplitText(text, 70, 15)

		var rebuilt strings.Builder
		step := 70 - 15
		for i, c := range chunks {
			if i == len(chunks)-1 {
				rebuilt.WriteString(c)
				break
			}
			rebuilt.WriteString(c[:step])
		}
		if rebuilt.String() != text {
			t.Error("reassembled chunks do not cover the original text")
		}
	})

	t.Run("overlap larger than chunk size falls back", func(t *testing.T) {
		chunks := SplitText(strings.Repeat("x", 50), 10, 20)
		if len(chunks) != 5 {
			t.Errorf("expected 5 non-overlapping chunks, got %d", len(chunks))
		}
	})

	t.Run("multibyte runes are never split", func(t *testing.T) {
		text := strings.Repeat("héllo wörld ", 20)
		for _, c := range SplitText(text, 30, 5) {
			if !strings.Contains(text, c) {
				t.Errorf("chunk %q is not a substring of the input", c)
			}
		}
	})
}
