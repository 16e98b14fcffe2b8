package ids

import "testing"

func TestNewIsUniqueAndSortable(t *testing.T) {
	prev := New()
	seen := map[string]struct{}{prev: {}}
	for i := 0; i < 1000; i++ {
		id := New()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %s", id)
		}
		if id <= prev {
			t.Fatalf("ids not monotonic: %s after %s", id, prev)
		}
		seen[id] = struct{}{}
		prev = id
	}
}
