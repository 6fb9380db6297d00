package inserter

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildPlaylist_roundsDurations(t *testing.T) {
	snap := &Snapshot{
		TargetDuration: 4,
		MediaSequence:  7,
		Segments: []SegmentRef{
			{URI: "a.ts", Duration: 2.4},
			{URI: "b.ts", Duration: 2.5},
			{URI: "c.ts", Duration: 3.96},
		},
	}

	out := BuildPlaylist(snap)

	for _, want := range []string{
		"#EXTM3U\n",
		"#EXT-X-VERSION:3\n",
		"#EXT-X-TARGETDURATION:4\n",
		"#EXT-X-MEDIA-SEQUENCE:7\n",
		"#EXTINF:2,\na.ts\n",
		"#EXTINF:3,\nb.ts\n",
		"#EXTINF:4,\nc.ts\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("playlist missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "#EXTINF:2.4") || strings.Contains(out, "#EXTINF:3.96") {
		t.Errorf("fractional EXTINF leaked:\n%s", out)
	}
}

func TestBuildPlaylist_tagsPrecedeSegment(t *testing.T) {
	snap := &Snapshot{
		Segments: []SegmentRef{
			{URI: "a.ts", Duration: 4, Tags: []string{`#EXT-X-SCTE35:CUE="abc"`}},
			{URI: "b.ts", Duration: 4, Tags: []string{`#EXT-X-SCTE35:CUE="def"`, "#EXT-X-CUE-IN"}},
		},
	}

	out := BuildPlaylist(snap)

	cueOut := strings.Index(out, `#EXT-X-SCTE35:CUE="abc"`)
	segA := strings.Index(out, "a.ts")
	if cueOut < 0 || segA < 0 || cueOut > segA {
		t.Errorf("break-start tag should precede its segment:\n%s", out)
	}
	cueIn := strings.Index(out, "#EXT-X-CUE-IN")
	segB := strings.Index(out, "b.ts")
	if cueIn < 0 || segB < 0 || cueIn > segB {
		t.Errorf("cue-in tag should precede its segment line:\n%s", out)
	}
}

func TestBuildPlaylist_rewritesURIsToLocalNames(t *testing.T) {
	snap := &Snapshot{
		Segments: []SegmentRef{
			{URI: "http://upstream/media/seg-001.ts?token=x", Duration: 4},
			{URI: "nested/path/seg-002.ts", Duration: 4},
		},
	}

	out := BuildPlaylist(snap)

	if !strings.Contains(out, "\nseg-001.ts\n") || !strings.Contains(out, "\nseg-002.ts\n") {
		t.Errorf("segment URIs not rewritten to local names:\n%s", out)
	}
	if strings.Contains(out, "upstream") || strings.Contains(out, "token") {
		t.Errorf("upstream URI leaked into playlist:\n%s", out)
	}
}

func TestBuildPlaylist_targetDurationFallback(t *testing.T) {
	t.Run("uses_longest_segment_when_no_hint", func(t *testing.T) {
		snap := &Snapshot{Segments: []SegmentRef{{URI: "a.ts", Duration: 5.2}}}
		if out := BuildPlaylist(snap); !strings.Contains(out, "#EXT-X-TARGETDURATION:6\n") {
			t.Errorf("expected ceil of longest segment:\n%s", out)
		}
	})

	t.Run("empty_snapshot_minimal_playlist", func(t *testing.T) {
		out := BuildPlaylist(&Snapshot{})
		if !strings.Contains(out, "#EXT-X-TARGETDURATION:1\n") {
			t.Errorf("expected minimum target duration 1:\n%s", out)
		}
		if !strings.Contains(out, "#EXT-X-MEDIA-SEQUENCE:0\n") {
			t.Errorf("expected media sequence 0:\n%s", out)
		}
	})
}

func TestWritePlaylist(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out", "s1")
	snap := &Snapshot{
		TargetDuration: 4,
		Segments:       []SegmentRef{{URI: "a.ts", Duration: 4}},
	}

	if err := WritePlaylist(snap, dir); err != nil {
		t.Fatalf("WritePlaylist: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, PlaylistFilename))
	if err != nil {
		t.Fatalf("reading written playlist: %v", err)
	}
	if string(data) != BuildPlaylist(snap) {
		t.Errorf("written playlist differs from serialization:\n%s", data)
	}

	// Overwrite is atomic replace, not append.
	snap.Segments[0].URI = "b.ts"
	if err := WritePlaylist(snap, dir); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	data, _ = os.ReadFile(filepath.Join(dir, PlaylistFilename))
	if strings.Contains(string(data), "a.ts") {
		t.Errorf("stale content survived rewrite:\n%s", data)
	}
}

func TestSegmentFilename(t *testing.T) {
	cases := []struct {
		uri  string
		want string
	}{
		{"seg.ts", "seg.ts"},
		{"media/seg.ts", "seg.ts"},
		{"http://host/a/b/seg.ts", "seg.ts"},
		{"http://host/seg.ts?token=abc", "seg.ts"},
		{"seg.ts#frag", "seg.ts"},
	}
	for _, c := range cases {
		if got := SegmentFilename(c.uri); got != c.want {
			t.Errorf("SegmentFilename(%q) = %q, want %q", c.uri, got, c.want)
		}
	}
}
