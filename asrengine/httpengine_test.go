package asrengine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssotoa70/mediasearch/pkg/resilience"
	"github.com/ssotoa70/mediasearch/ports"
)

func newBreaker() *resilience.Breaker {
	return resilience.NewBreaker(resilience.BreakerOpts{FailThreshold: 3})
}

func TestRemoteEngineTranscribeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/transcribe", r.URL.Path)
		_ = json.NewEncoder(w).Encode(transcribeResp{
			Segments: []transcribeSegment{
				{StartMs: 0, EndMs: 1000, Text: "hello [Music] world", Confidence: 0.9},
			},
			DurationMs: 1000,
			Engine:     "whisper-large",
		})
	}))
	defer srv.Close()

	e := NewRemoteEngine(srv.URL, newBreaker())
	out, err := e.Transcribe(context.Background(), []byte("audio"), ports.TranscribeOptions{Engine: "whisper-large"})
	require.NoError(t, err)
	require.Len(t, out.Segments, 1)
	assert.Equal(t, "hello world", out.Segments[0].Text)
	assert.Equal(t, "whisper-large", out.Engine)
}

func TestRemoteEngineTranscribeNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := NewRemoteEngine(srv.URL, newBreaker())
	_, err := e.Transcribe(context.Background(), []byte("audio"), ports.TranscribeOptions{})
	assert.Error(t, err)
}

func TestRemoteEngineCapabilities(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/capabilities", r.URL.Path)
		_ = json.NewEncoder(w).Encode(ports.Capabilities{
			Formats:            []string{"audio/wav"},
			DiarizationSupport: true,
			Languages:          []string{"en"},
		})
	}))
	defer srv.Close()

	e := NewRemoteEngine(srv.URL, newBreaker())
	caps, err := e.Capabilities(context.Background())
	require.NoError(t, err)
	assert.True(t, caps.DiarizationSupport)
	assert.Equal(t, []string{"audio/wav"}, caps.Formats)
}

func TestCleanTranscriptRemovesNoiseAndEntities(t *testing.T) {
	got := CleanTranscript("Hello [Music]  world &amp; friends &#39;quoted&#39;  ")
	assert.Equal(t, "Hello world & friends 'quoted'", got)
}

func TestFakeEngineReturnsConfiguredSegments(t *testing.T) {
	segs := []ports.RawSegment{{StartMs: 0, EndMs: 500, Text: "hi"}}
	f := NewFake(segs)
	out, err := f.Transcribe(context.Background(), nil, ports.TranscribeOptions{Engine: "fake"})
	require.NoError(t, err)
	assert.Equal(t, segs, out.Segments)
	assert.Equal(t, "fake", out.Engine)

	caps, err := f.Capabilities(context.Background())
	require.NoError(t, err)
	assert.True(t, caps.DiarizationSupport)
}
