package ports

import (
	"context"
	"time"

	"github.com/ssotoa70/mediasearch/engine/domain"
)

// RawSegment is a single timed text span as produced by the ASR engine,
// before §4.2 phase 3 re-segmentation.
type RawSegment struct {
	StartMs    int64
	EndMs      int64
	Text       string
	Speaker    string
	Confidence float64
}

// TranscribeOptions carries the job's engine policy plus content hints.
type TranscribeOptions struct {
	Engine             string
	DiarizationEnabled bool
	ExecutionMode      domain.ExecutionMode
	LanguageHint       string
	ContentType        string
	DurationHint       time.Duration
}

// TranscribeResult is the raw ASR output.
type TranscribeResult struct {
	Segments []RawSegment
	Duration time.Duration
	Engine   string
}

// Capabilities describes what an ASR engine supports.
type Capabilities struct {
	Formats             []string
	DiarizationSupport  bool
	MaxDuration         time.Duration
	Languages           []string
}

// ASREngine transcribes object bytes into timed text (§4.6). Errors are
// classified error kinds (domain.ErrorKind) so the retry/quarantine
// manager can decide retryable vs terminal without engine-specific logic.
type ASREngine interface {
	Transcribe(ctx context.Context, audio []byte, opts TranscribeOptions) (TranscribeResult, error)
	Capabilities(ctx context.Context) (Capabilities, error)
}
