package chunking

import (
	"fmt"

	"github.com/ssotoa70/mediasearch/engine/domain"
	"github.com/ssotoa70/mediasearch/ports"
)

// DefaultWindowMs is the fixed-window duration W of §4.2 phase 3.
const DefaultWindowMs int64 = 5000

// FixedWindow groups raw ASR segments into W-millisecond windows, used when
// media duration exceeds the engine policy's compute threshold. Speaker is
// the majority speaker of contributing ASR segments; confidence is their
// mean.
func FixedWindow(versionID domain.VersionID, raw []ports.RawSegment, windowMs int64) []domain.Segment {
	if len(raw) == 0 {
		return nil
	}
	if windowMs <= 0 {
		windowMs = DefaultWindowMs
	}

	spanStart := raw[0].StartMs
	spanEnd := raw[len(raw)-1].EndMs

	var segments []domain.Segment
	idx := 0
	for winStart := spanStart; winStart < spanEnd; winStart += windowMs {
		winEnd := winStart + windowMs
		if winEnd > spanEnd {
			winEnd = spanEnd
		}

		var texts []string
		var speakers []string
		var confSum float64
		var confN int

		for _, r := range raw {
			mid := (r.StartMs + r.EndMs) / 2
			if mid >= winStart && mid < winEnd {
				texts = append(texts, r.Text)
				if r.Speaker != "" {
					speakers = append(speakers, r.Speaker)
				}
				confSum += r.Confidence
				confN++
			}
		}
		if len(texts) == 0 {
			continue
		}

		text := texts[0]
		for _, t := range texts[1:] {
			text += " " + t
		}

		conf := 0.0
		if confN > 0 {
			conf = confSum / float64(confN)
		}

		var speaker *string
		if ranked := sortBySpeakerFrequency(speakers); len(ranked) > 0 {
			s := ranked[0]
			speaker = &s
		}

		segments = append(segments, domain.Segment{
			SegmentID:        domain.SegmentID(fmt.Sprintf("%s_seg_%d", versionID, idx)),
			VersionID:        versionID,
			StartMs:          winStart,
			EndMs:            winEnd,
			Text:             text,
			Speaker:          speaker,
			Confidence:       conf,
			Visibility:       domain.VisibilityStaging,
			ChunkingStrategy: domain.ChunkingFixedWindow,
		})
		idx++
	}
	return segments
}

// Select picks the chunking strategy per §4.2 phase 3: sentence by
// default, fixed-window when duration strictly exceeds computeThresholdSec,
// and the forced strategy when the engine policy names one explicitly.
func Select(durationSec, computeThresholdSec float64, forced domain.ChunkingStrategy) domain.ChunkingStrategy {
	if forced != "" {
		return forced
	}
	if durationSec > computeThresholdSec {
		return domain.ChunkingFixedWindow
	}
	return domain.ChunkingSentence
}

// Segment runs the selected strategy.
func Segment(versionID domain.VersionID, raw []ports.RawSegment, strategy domain.ChunkingStrategy) []domain.Segment {
	switch strategy {
	case domain.ChunkingFixedWindow:
		return FixedWindow(versionID, raw, DefaultWindowMs)
	default:
		return Sentence(versionID, raw)
	}
}
