package env

import "testing"

func TestFirst(t *testing.T) {
	t.Setenv("BAZAAR_TEST_A", "")
	t.Setenv("BAZAAR_TEST_B", "  ")
	if got := First("fallback", "BAZAAR_TEST_A", "BAZAAR_TEST_B"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv("BAZAAR_TEST_B", "b")
	if got := First("fallback", "BAZAAR_TEST_A", "BAZAAR_TEST_B"); got != "b" {
		t.Fatalf("expected b, got %q", got)
	}
	t.Setenv("BAZAAR_TEST_A", "a")
	if got := First("fallback", "BAZAAR_TEST_A", "BAZAAR_TEST_B"); got != "a" {
		t.Fatalf("expected a, got %q", got)
	}
}
