package resolvers

import "testing"

func TestUnpackSimpleSubstitution(t *testing.T) {
	// "0 1" with dict ["hello","world"], base 10 -> "hello world"
	got, err := unpack("0 1", 10, 2, "hello|world")
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if got != "hello world" {
		t.Fatalf("unpack = %q, want %q", got, "hello world")
	}
}

func TestUnpackLeavesUnknownTokensAlone(t *testing.T) {
	got, err := unpack("foo(0)", 10, 1, "bar")
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if got != "foo(bar)" {
		t.Fatalf("unpack = %q, want %q", got, "foo(bar)")
	}
}

func TestExtractHLSLinkPrefersHLS2(t *testing.T) {
	text := `var links = {hls4: "https://x/a4.m3u8", hls2: "https://x/a2.m3u8"};`
	got := extractHLSLink(text)
	if got != "https://x/a2.m3u8" {
		t.Fatalf("extractHLSLink = %q, want hls2 link", got)
	}
}

func TestExtractHLSLinkFallsBackToBareURL(t *testing.T) {
	text := `some junk https://cdn.example.com/stream/index.m3u8?t=1 more junk`
	got := extractHLSLink(text)
	if got != "https://cdn.example.com/stream/index.m3u8?t=1" {
		t.Fatalf("extractHLSLink = %q, want bare m3u8 match", got)
	}
}

func TestAbsolutiseRelative(t *testing.T) {
	got := absolutise("https://cdn.example.com/video/master.m3u8", "index-v1-a1.m3u8?t=1")
	want := "https://cdn.example.com/video/index-v1-a1.m3u8?t=1"
	if got != want {
		t.Fatalf("absolutise = %q, want %q", got, want)
	}
}
