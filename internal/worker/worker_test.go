package worker

import (
	"sync"
	"testing"
)

func TestFileKeyIsDeterministicAndSaltBound(t *testing.T) {
	a := FileKey("salt1", 55825, 3, "animasu", "720p")
	b := FileKey("salt1", 55825, 3, "animasu", "720p")
	if a != b {
		t.Fatalf("expected deterministic file key, got %q vs %q", a, b)
	}
	if len(a) != 32 {
		t.Fatalf("expected 32-char file key, got %d chars", len(a))
	}

	c := FileKey("salt2", 55825, 3, "animasu", "720p")
	if a == c {
		t.Fatalf("expected a different salt to change the file key")
	}
}

func TestLooksLikeEmbedDistinguishesMediaURLs(t *testing.T) {
	cases := map[string]bool{
		"https://cdn.example.com/v.mp4":     false,
		"https://cdn.example.com/pl.m3u8":   false,
		"https://embed.example.com/e/abc123": true,
	}
	for u, want := range cases {
		if got := looksLikeEmbed(u); got != want {
			t.Fatalf("looksLikeEmbed(%q) = %v, want %v", u, got, want)
		}
	}
}

func TestActiveKeyDedupRejectsConcurrentDuplicate(t *testing.T) {
	w := &Worker{active: make(map[string]struct{})}

	if !w.claimActive("k1") {
		t.Fatalf("expected first claim to succeed")
	}
	if w.claimActive("k1") {
		t.Fatalf("expected duplicate claim to be rejected while active")
	}
	w.releaseActive("k1")
	if !w.claimActive("k1") {
		t.Fatalf("expected claim to succeed again after release")
	}
}

func TestSemaphoreBoundsConcurrency(t *testing.T) {
	sem := newSemaphore(2)
	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem.acquire()
			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()

			mu.Lock()
			inFlight--
			mu.Unlock()
			sem.release()
		}()
	}
	wg.Wait()

	if maxInFlight > 2 {
		t.Fatalf("expected at most 2 concurrent holders, saw %d", maxInFlight)
	}
}
