// Package chunking implements the two segmentation strategies of §4.2
// phase 3: sentence re-splitting and fixed-window grouping. Both operate
// on the raw timed spans an ASR engine returns and emit domain.Segment
// values at visibility STAGING.
package chunking

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/ssotoa70/mediasearch/engine/domain"
	"github.com/ssotoa70/mediasearch/ports"
)

// splitSentences splits text into sentences on '.', '!', '?', and newlines,
// returning each sentence alongside its [start, end) byte offset in text.
// Adapted from the sentence-splitting approach used for whole-document
// chunking elsewhere in this codebase, generalized to report offsets so
// callers can map sentences back onto a time axis.
func splitSentences(text string) []sentenceSpan {
	var spans []sentenceSpan
	start := 0

	for i, r := range text {
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			boundary := r == '\n' || i == len(text)-1 || (i+1 < len(text) && unicode.IsSpace(rune(text[i+1])))
			if boundary {
				raw := text[start : i+1]
				trimmed := strings.TrimSpace(raw)
				if trimmed != "" {
					leading := len(raw) - len(strings.TrimLeft(raw, " \t\n"))
					spans = append(spans, sentenceSpan{
						Text:  trimmed,
						Start: start + leading,
						End:   start + leading + len(trimmed),
					})
				}
				start = i + 1
			}
		}
	}
	if start < len(text) {
		raw := text[start:]
		trimmed := strings.TrimSpace(raw)
		if trimmed != "" {
			leading := len(raw) - len(strings.TrimLeft(raw, " \t\n"))
			spans = append(spans, sentenceSpan{
				Text:  trimmed,
				Start: start + leading,
				End:   start + leading + len(trimmed),
			})
		}
	}
	return spans
}

type sentenceSpan struct {
	Text  string
	Start int
	End   int
}

// window is one ASR raw segment laid out along the concatenated text axis.
type window struct {
	ports.RawSegment
	textStart int
	textEnd   int
}

// Sentence re-splits raw ASR segments by sentence terminator (§4.2 phase 3).
// Start and end times are interpolated linearly by character offset across
// the whole span from the first raw segment's start to the last raw
// segment's end; the boundaries of the individual raw ASR segments, and any
// gaps between them, are not taken into account.
func Sentence(versionID domain.VersionID, raw []ports.RawSegment) []domain.Segment {
	if len(raw) == 0 {
		return nil
	}

	windows := make([]window, len(raw))
	var sb strings.Builder
	for i, r := range raw {
		start := sb.Len()
		if i > 0 {
			sb.WriteByte(' ')
			start = sb.Len()
		}
		sb.WriteString(r.Text)
		windows[i] = window{RawSegment: r, textStart: start, textEnd: sb.Len()}
	}
	full := sb.String()

	spans := splitSentences(full)
	if len(spans) == 0 {
		return nil
	}

	spanStartMs := raw[0].StartMs
	spanEndMs := raw[len(raw)-1].EndMs
	spanDur := float64(spanEndMs - spanStartMs)
	totalChars := float64(len(full))
	if totalChars == 0 {
		totalChars = 1
	}

	segments := make([]domain.Segment, 0, len(spans))
	for i, s := range spans {
		startMs := spanStartMs
		endMs := spanEndMs
		if spanDur > 0 {
			startMs = spanStartMs + int64(float64(s.Start)/totalChars*spanDur)
			endMs = spanStartMs + int64(float64(s.End)/totalChars*spanDur)
		}
		if endMs < startMs {
			endMs = startMs
		}

		w := windowContaining(windows, s.Start)
		var speaker *string
		if w.Speaker != "" {
			sp := w.Speaker
			speaker = &sp
		}

		segments = append(segments, domain.Segment{
			SegmentID:        domain.SegmentID(fmt.Sprintf("%s_seg_%d", versionID, i)),
			VersionID:        versionID,
			StartMs:          startMs,
			EndMs:            endMs,
			Text:             s.Text,
			Speaker:          speaker,
			Confidence:       w.Confidence,
			Visibility:       domain.VisibilityStaging,
			ChunkingStrategy: domain.ChunkingSentence,
		})
	}
	return segments
}

func windowContaining(windows []window, textOffset int) ports.RawSegment {
	for _, w := range windows {
		if textOffset >= w.textStart && textOffset < w.textEnd {
			return w.RawSegment
		}
	}
	if len(windows) > 0 {
		return windows[len(windows)-1].RawSegment
	}
	return ports.RawSegment{}
}

// sortBySpeakerFrequency is used by the fixed-window strategy to pick the
// majority speaker among contributing ASR segments.
func sortBySpeakerFrequency(speakers []string) []string {
	counts := make(map[string]int, len(speakers))
	for _, s := range speakers {
		if s != "" {
			counts[s]++
		}
	}
	out := make([]string, 0, len(counts))
	for s := range counts {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if counts[out[i]] != counts[out[j]] {
			return counts[out[i]] > counts[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}
