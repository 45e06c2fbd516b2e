package token

import (
	"reflect"
	"strings"
	"testing"
)

func TestTokenizeStructured(t *testing.T) {
	got := Tokenize("Α B-C d3.14e")
	want := []string{"α", "b", "c", "d3", "14e"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Tokenize() = %v, want %v", got, want)
	}
}

func TestTokenizeUnstructuredPreservesDigitBoundedPunctAndHyphen(t *testing.T) {
	got := TokenizeUnstructured("Α B-C d3.14e", ModeRPS)
	want := []string{"α", "b-c", "d3.14e"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("TokenizeUnstructured() = %v, want %v", got, want)
	}
}

func TestTokenizeUnstructuredStripsOrdinaryPunctuation(t *testing.T) {
	got := TokenizeQueryPaper("hello, world! 1,000 times 3.14")
	want := []string{"hello", "world", "1,000", "times", "3.14"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("TokenizeQueryPaper() = %v, want %v", got, want)
	}
}

func TestTokenizeQueryHTMLReplacesWithSpace(t *testing.T) {
	got := TokenizeQueryHTML("hello, world!")
	want := []string{"hello", "world"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("TokenizeQueryHTML() = %v, want %v", got, want)
	}
}

func TestTokenizeEmpty(t *testing.T) {
	if got := Tokenize(""); got != nil {
		t.Fatalf("Tokenize(\"\") = %v, want nil", got)
	}
	if got := TokenizeUnstructured("   ", ModeRPS); got != nil {
		t.Fatalf("TokenizeUnstructured(blank) = %v, want nil", got)
	}
}

func TestTokenizeIdempotence(t *testing.T) {
	original := "The Quick, Brown-Fox jumps over 3.14 dogs!"
	first := TokenizeQueryHTML(original)
	second := TokenizeQueryHTML(strings.Join(first, " "))
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("tokenizer not idempotent: %v != %v", first, second)
	}
}

func TestTokenizeNewlinesBecomeSpaces(t *testing.T) {
	got := TokenizeQueryPaper("line one\nline two")
	want := []string{"line", "one", "line", "two"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("TokenizeQueryPaper() = %v, want %v", got, want)
	}
}
