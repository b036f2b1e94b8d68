package names

import "testing"

func TestSuggestIsDeterministic(t *testing.T) {
	g := NewGenerator()
	a := g.Suggest("abcd", 1)
	b := g.Suggest("abcd", 1)
	if a != b {
		t.Fatalf("expected deterministic suggestion, got %q then %q", a, b)
	}
}

func TestSuggestVariesByParticipant(t *testing.T) {
	g := NewGenerator()
	a := g.Suggest("abcd", 1)
	b := g.Suggest("abcd", 2)
	if a == b {
		t.Fatalf("expected different participants to usually get different suggestions, got %q for both", a)
	}
}
