package excerpt

import "testing"

func TestWindowCentersOnPosition(t *testing.T) {
	text := "one two three four five six seven eight nine ten"
	got := Window(text, []int{4}, 2)
	want := "… three four five six seven …"
	if got != want {
		t.Fatalf("Window = %q, want %q", got, want)
	}
}

func TestWindowNoTruncationMarkersAtBoundaries(t *testing.T) {
	text := "one two three"
	got := Window(text, []int{1}, 5)
	if got != "one two three" {
		t.Fatalf("Window = %q, want %q", got, "one two three")
	}
}

func TestWindowEmptyInputs(t *testing.T) {
	if got := Window("", []int{0}, 5); got != "" {
		t.Fatalf("Window(empty text) = %q, want empty", got)
	}
	if got := Window("a b c", nil, 5); got != "" {
		t.Fatalf("Window(no positions) = %q, want empty", got)
	}
}

func TestHighlightWrapsMatchingWords(t *testing.T) {
	got := Highlight("the quick brown fox", []string{"quick", "fox"}, "**", "**")
	want := "the **quick** brown **fox**"
	if got != want {
		t.Fatalf("Highlight = %q, want %q", got, want)
	}
}
