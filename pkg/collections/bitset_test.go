package collections

import "testing"

func TestIdSet_Basic(t *testing.T) {
	s := NewIdSet(100)

	s.Set(0)
	s.Set(50)
	s.Set(99)

	if !s.Test(0) || !s.Test(50) || !s.Test(99) {
		t.Error("expected bits 0, 50, 99 to be set")
	}
	if s.Test(1) {
		t.Error("expected bit 1 to be clear")
	}
}

func TestIdSet_Grow(t *testing.T) {
	s := NewIdSet(64)

	s.Set(200)
	if !s.Test(200) {
		t.Error("expected bit 200 to be set after grow")
	}
}

func TestIdSet_NegativeIdIgnored(t *testing.T) {
	s := NewIdSet(10)
	s.Set(-1)
	if s.Test(-1) {
		t.Error("negative id must never test as set")
	}
}

func TestIdSet_TestAndSet(t *testing.T) {
	s := NewIdSet(10)

	if s.TestAndSet(5) {
		t.Error("expected TestAndSet to return false for an unset id")
	}
	if !s.TestAndSet(5) {
		t.Error("expected TestAndSet to return true once the id is set")
	}
}

func TestIdSet_ZeroCapacityStartsEmptyAndGrows(t *testing.T) {
	s := NewIdSet(0)
	if s.Test(0) {
		t.Error("a fresh zero-capacity set should have nothing set")
	}
	s.Set(0)
	if !s.Test(0) {
		t.Error("expected bit 0 to be set")
	}
}

func BenchmarkIdSet_TestAndSet(b *testing.B) {
	s := NewIdSet(1_000_000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.TestAndSet(i % 1_000_000)
	}
}
