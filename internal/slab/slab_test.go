package slab

import "testing"

func TestInsertGetRemove(t *testing.T) {
	s := New[string]()

	a := s.Insert("a")
	b := s.Insert("b")

	if a == b {
		t.Fatalf("tokens collide: %d", a)
	}
	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2", s.Len())
	}

	got, ok := s.Get(a)
	if !ok || got != "a" {
		t.Errorf("Get(%d) = %q, %v; want \"a\", true", a, got, ok)
	}

	removed, ok := s.Remove(a)
	if !ok || removed != "a" {
		t.Errorf("Remove(%d) = %q, %v; want \"a\", true", a, removed, ok)
	}
	if s.Contains(a) {
		t.Errorf("Contains(%d) = true after remove", a)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestTokenRecycledOnlyAfterRemove(t *testing.T) {
	s := New[int]()

	first := s.Insert(1)
	second := s.Insert(2)
	if second == first {
		t.Fatalf("live token %d reissued", first)
	}

	// While the entry is live, fresh inserts never reuse its token.
	for i := 0; i < 8; i++ {
		if tok := s.Insert(i); tok == first {
			t.Fatalf("live token %d reissued on insert %d", first, i)
		}
	}

	s.Remove(first)
	reused := s.Insert(99)
	if reused != first {
		t.Errorf("freed token %d not reused, got %d", first, reused)
	}
}

func TestNoDuplicateLiveTokens(t *testing.T) {
	s := New[int]()
	seen := make(map[int]bool)

	for i := 0; i < 100; i++ {
		tok := s.Insert(i)
		if seen[tok] {
			t.Fatalf("token %d issued twice while live", tok)
		}
		seen[tok] = true
	}

	// Remove every other entry and refill; freed tokens may come back but
	// never while another live entry holds them.
	for tok := 0; tok < 100; tok += 2 {
		s.Remove(tok)
		delete(seen, tok)
	}
	for i := 0; i < 50; i++ {
		tok := s.Insert(i)
		if seen[tok] {
			t.Fatalf("token %d issued while live", tok)
		}
		seen[tok] = true
	}
	if s.Len() != 100 {
		t.Errorf("Len = %d, want 100", s.Len())
	}
}

func TestAbsentToken(t *testing.T) {
	s := New[string]()
	tok := s.Insert("x")
	s.Remove(tok)

	if _, ok := s.Get(tok); ok {
		t.Error("Get on removed token succeeded")
	}
	if _, ok := s.Remove(tok); ok {
		t.Error("double Remove succeeded")
	}
	if _, ok := s.Get(-1); ok {
		t.Error("Get(-1) succeeded")
	}
	if _, ok := s.Get(1000); ok {
		t.Error("Get out of range succeeded")
	}
}

func TestRange(t *testing.T) {
	s := New[int]()
	s.Insert(10)
	b := s.Insert(20)
	s.Insert(30)
	s.Remove(b)

	sum := 0
	s.Range(func(_ int, v int) bool {
		sum += v
		return true
	})
	if sum != 40 {
		t.Errorf("sum over live entries = %d, want 40", sum)
	}
}
