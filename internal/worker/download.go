// Package worker implements the archival worker of SPEC_FULL §4.9:
// claim/webhook dual-trigger job intake, download via aria2c or ffmpeg,
// upload to every configured durable-storage target, and commit.
package worker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// downloadDirect shells out to aria2c for the multi-connection segmented
// download path, mirroring the original Python worker's
// download_with_aria2c exactly: spawn with an explicit flag list, capture
// combined output, map exit code to success/failure, bound by a context
// timeout. No pack example shells out to aria2c; this is grounded on
// original_source/huggingface-space/app.py instead.
func downloadDirect(ctx context.Context, videoURL, destPath string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	dir := destPath[:strings.LastIndex(destPath, "/")]
	file := destPath[strings.LastIndex(destPath, "/")+1:]

	cmd := exec.CommandContext(ctx, "aria2c",
		"--max-connection-per-server=8",
		"--split=8",
		"--max-tries=3",
		"--retry-wait=2",
		"--continue=true",
		"--dir="+dir,
		"--out="+file,
		videoURL,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("worker: aria2c failed: %w: %s", err, truncate(out, 2000))
	}
	return nil
}

// downloadHLS shells out to ffmpeg to copy an HLS stream's codecs into an
// MP4 container without re-encoding, mirroring the original worker's
// _download_hls_ffmpeg.
func downloadHLS(ctx context.Context, playlistURL, destPath string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-i", playlistURL,
		"-c", "copy",
		"-bsf:a", "aac_adtstoasc",
		destPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("worker: ffmpeg failed: %w: %s", err, truncate(out, 2000))
	}
	return nil
}

func isHLS(videoURL string) bool {
	lower := strings.ToLower(videoURL)
	return strings.Contains(lower, ".m3u8")
}

func truncate(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		return s[:n] + "...(truncated)"
	}
	return s
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
