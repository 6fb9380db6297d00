package inserter

import (
	"fmt"
	"time"

	"github.com/Comcast/scte35-go/pkg/scte35"
)

// CueKind selects which side of an ad break a cue marks.
type CueKind int

const (
	CueBreakStart CueKind = iota
	CueBreakEnd
)

// CueEncoder produces the opaque base64 payload embedded in SCTE-35 marker
// tags. The binary splice format is fully delegated to the implementation.
type CueEncoder interface {
	Encode(kind CueKind, pts time.Time, duration time.Duration, eventID uint32) (string, error)
}

// SpliceEncoder encodes cues as SCTE-35 time_signal splice sections carrying a
// single segmentation descriptor (Provider Placement Opportunity Start/End).
type SpliceEncoder struct{}

// ptsTicks converts wall-clock time to a 33-bit 90kHz PTS value.
func ptsTicks(t time.Time) uint64 {
	return uint64(t.Unix()) * scte35.TicksPerSecond % (1 << 33)
}

// Encode implements CueEncoder.
func (SpliceEncoder) Encode(kind CueKind, pts time.Time, duration time.Duration, eventID uint32) (string, error) {
	var typeID uint32
	switch kind {
	case CueBreakStart:
		typeID = scte35.SegmentationTypeProviderPOStart
	case CueBreakEnd:
		typeID = scte35.SegmentationTypeProviderPOEnd
	default:
		return "", fmt.Errorf("unknown cue kind %d", kind)
	}

	ticks := ptsTicks(pts)
	durTicks := uint64(duration.Seconds()) * scte35.TicksPerSecond

	sis := scte35.SpliceInfoSection{
		SpliceCommand: &scte35.TimeSignal{
			SpliceTime: scte35.SpliceTime{PTSTime: &ticks},
		},
		SpliceDescriptors: []scte35.SpliceDescriptor{
			&scte35.SegmentationDescriptor{
				SegmentationEventID:  eventID,
				SegmentationTypeID:   typeID,
				SegmentationDuration: &durTicks,
				SegmentNum:           0,
				SegmentsExpected:     0,
			},
		},
		Tier:    4095, // tier not used
		SAPType: 3,    // SAP not specified
	}

	return sis.Base64(), nil
}

// scte35Tag renders the playlist tag line carrying an encoded cue.
func scte35Tag(payload string) string {
	return fmt.Sprintf("#EXT-X-SCTE35:CUE=%q", payload)
}
