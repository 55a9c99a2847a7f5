package homefeed

import "testing"

func TestContainsHelper(t *testing.T) {
	list := []string{"animasu", "samehadaku"}
	if !contains(list, "animasu") {
		t.Fatalf("expected contains to find existing element")
	}
	if contains(list, "missing") {
		t.Fatalf("expected contains to reject missing element")
	}
}
