package inserter

import (
	"fmt"
	"math"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
)

// PlaylistFilename is the name of the rewritten playlist within a stream's
// output directory.
const PlaylistFilename = "playlist.m3u8"

// BuildPlaylist serializes a snapshot to canonical m3u8 text. Segment URIs are
// rewritten to their local filenames and every EXTINF duration is rounded to
// the nearest integer second (some downstream players reject fractional
// durations after splice rewriting).
func BuildPlaylist(snap *Snapshot) string {
	var b strings.Builder

	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	b.WriteString(fmt.Sprintf("#EXT-X-TARGETDURATION:%d\n", targetDurationFromSnapshot(snap)))
	b.WriteString(fmt.Sprintf("#EXT-X-MEDIA-SEQUENCE:%d\n", snap.MediaSequence))

	for _, seg := range snap.Segments {
		for _, tag := range seg.Tags {
			b.WriteString(tag)
			b.WriteString("\n")
		}
		b.WriteString(fmt.Sprintf("#EXTINF:%d,\n", int(math.Round(seg.Duration))))
		b.WriteString(SegmentFilename(seg.URI))
		b.WriteString("\n")
	}

	return b.String()
}

// targetDurationFromSnapshot returns the #EXT-X-TARGETDURATION value: the
// upstream hint when present, otherwise the ceiling of the longest segment.
func targetDurationFromSnapshot(snap *Snapshot) int {
	max := snap.TargetDuration
	for _, seg := range snap.Segments {
		if seg.Duration > max {
			max = seg.Duration
		}
	}
	if max <= 0 {
		return 1
	}
	return int(math.Ceil(max))
}

// WritePlaylist atomically replaces the playlist file under outputDir with the
// serialized snapshot, creating the directory if needed. Partial playlists are
// never observable.
func WritePlaylist(snap *Snapshot, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	target := filepath.Join(outputDir, PlaylistFilename)

	pending, err := renameio.NewPendingFile(target)
	if err != nil {
		return fmt.Errorf("create pending playlist: %w", err)
	}
	defer pending.Cleanup() //nolint:errcheck // no-op once committed

	if _, err := pending.WriteString(BuildPlaylist(snap)); err != nil {
		return fmt.Errorf("write playlist: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace playlist: %w", err)
	}

	return nil
}

// SegmentFilename returns the local filename a segment URI is mirrored under:
// the base name of the URI path, query and fragment stripped.
func SegmentFilename(uri string) string {
	if i := strings.IndexAny(uri, "?#"); i >= 0 {
		uri = uri[:i]
	}
	return path.Base(uri)
}
