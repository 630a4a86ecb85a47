package asrengine

import (
	"context"
	"time"

	"github.com/ssotoa70/mediasearch/ports"
)

// Fake is a deterministic in-memory ports.ASREngine for tests and local
// development without a real ASR backend wired up.
type Fake struct {
	Segments []ports.RawSegment
	Caps     ports.Capabilities
	Err      error
}

// NewFake builds a Fake engine that returns segs for every Transcribe call.
func NewFake(segs []ports.RawSegment) *Fake {
	return &Fake{
		Segments: segs,
		Caps: ports.Capabilities{
			Formats:            []string{"audio/wav", "audio/mpeg", "video/mp4"},
			DiarizationSupport: true,
			MaxDuration:        4 * time.Hour,
			Languages:          []string{"en"},
		},
	}
}

func (f *Fake) Transcribe(_ context.Context, _ []byte, opts ports.TranscribeOptions) (ports.TranscribeResult, error) {
	if f.Err != nil {
		return ports.TranscribeResult{}, f.Err
	}
	var dur time.Duration
	for _, s := range f.Segments {
		if end := time.Duration(s.EndMs) * time.Millisecond; end > dur {
			dur = end
		}
	}
	return ports.TranscribeResult{Segments: f.Segments, Duration: dur, Engine: opts.Engine}, nil
}

func (f *Fake) Capabilities(_ context.Context) (ports.Capabilities, error) {
	if f.Err != nil {
		return ports.Capabilities{}, f.Err
	}
	return f.Caps, nil
}
