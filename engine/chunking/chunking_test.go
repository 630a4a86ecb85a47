package chunking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssotoa70/mediasearch/engine/domain"
	"github.com/ssotoa70/mediasearch/ports"
)

func TestSentenceBasic(t *testing.T) {
	raw := []ports.RawSegment{
		{StartMs: 0, EndMs: 1000, Text: "hello world", Confidence: 0.95},
	}
	segs := Sentence("v1", raw)
	require.Len(t, segs, 1)
	assert.Equal(t, "hello world", segs[0].Text)
	assert.Equal(t, int64(0), segs[0].StartMs)
}

func TestSentenceSplitsOnTerminators(t *testing.T) {
	raw := []ports.RawSegment{
		{StartMs: 0, EndMs: 2000, Text: "Hello there. How are you?", Confidence: 0.9, Speaker: "spk1"},
	}
	segs := Sentence("v1", raw)
	require.Len(t, segs, 2)
	assert.Equal(t, "Hello there.", segs[0].Text)
	assert.Equal(t, "How are you?", segs[1].Text)
	assert.True(t, segs[0].StartMs <= segs[0].EndMs)
	assert.True(t, segs[1].StartMs >= segs[0].EndMs)
	require.NotNil(t, segs[0].Speaker)
	assert.Equal(t, "spk1", *segs[0].Speaker)
}

func TestFixedWindowGroupsByWindow(t *testing.T) {
	raw := []ports.RawSegment{
		{StartMs: 0, EndMs: 1000, Text: "a", Confidence: 1.0, Speaker: "spk1"},
		{StartMs: 1000, EndMs: 2000, Text: "b", Confidence: 0.8, Speaker: "spk1"},
		{StartMs: 6000, EndMs: 7000, Text: "c", Confidence: 0.5, Speaker: "spk2"},
	}
	segs := FixedWindow("v1", raw, 5000)
	require.Len(t, segs, 2)
	assert.Equal(t, "a b", segs[0].Text)
	assert.InDelta(t, 0.9, segs[0].Confidence, 0.001)
	require.NotNil(t, segs[0].Speaker)
	assert.Equal(t, "spk1", *segs[0].Speaker)
}

func TestSelectBoundary(t *testing.T) {
	assert.Equal(t, domain.ChunkingSentence, Select(900, 900, ""))
	assert.Equal(t, domain.ChunkingFixedWindow, Select(901, 900, ""))
	assert.Equal(t, domain.ChunkingFixedWindow, Select(100, 900, domain.ChunkingFixedWindow))
}
