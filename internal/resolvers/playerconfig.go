package resolvers

import (
	"context"
	"fmt"
	"regexp"
)

var (
	playerSrcRe = regexp.MustCompile(`player\.src\(\s*\{[^}]*?(?:src|file)\s*:\s*['"]([^'"]+)['"]`)
	fileFieldRe = regexp.MustCompile(`file\s*:\s*['"]([^'"]+\.(?:m3u8|mp4)[^'"]*)['"]`)
)

// ResolvePlayerConfig handles hosts whose page embeds a videojs/jwplayer
// setup literal (player.src({...}) or a bare file: field) rather than a
// packed script.
func ResolvePlayerConfig(ctx context.Context, embedURL string) (*Result, error) {
	html, finalURL, err := fetchPage(ctx, embedURL, embedURL)
	if err != nil {
		return nil, err
	}

	if m := playerSrcRe.FindStringSubmatch(html); m != nil {
		return &Result{DirectURL: absolutise(finalURL, m[1])}, nil
	}
	if m := fileFieldRe.FindStringSubmatch(html); m != nil {
		return &Result{DirectURL: absolutise(finalURL, m[1])}, nil
	}
	return nil, fmt.Errorf("playerconfig: no source literal found")
}
