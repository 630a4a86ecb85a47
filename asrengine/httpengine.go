// Package asrengine provides HTTP-backed implementations of
// ports.ASREngine (§4.6). RemoteEngine submits audio bytes to a remote
// transcription service over plain HTTP, since no ASR service proto was
// retrieved for this module (see DESIGN.md's dropped-dependency note).
package asrengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ssotoa70/mediasearch/engine/domain"
	"github.com/ssotoa70/mediasearch/pkg/logging"
	"github.com/ssotoa70/mediasearch/pkg/resilience"
	"github.com/ssotoa70/mediasearch/ports"
)

// RemoteEngine calls a remote ASR HTTP endpoint: a small JSON request
// struct, a plain *http.Client, and a breaker-wrapped call.
type RemoteEngine struct {
	baseURL string
	client  *http.Client
	breaker *resilience.Breaker
	log     zerolog.Logger
}

// NewRemoteEngine builds an ASR engine pointed at baseURL, guarded by a
// circuit breaker so a failing ASR backend doesn't starve the worker
// pool with retries (§4.6's "engine-specific failures must not wedge
// the pipeline").
func NewRemoteEngine(baseURL string, breaker *resilience.Breaker) *RemoteEngine {
	return &RemoteEngine{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Minute},
		breaker: breaker,
		log:     logging.For("asrengine.remote"),
	}
}

type transcribeReq struct {
	Audio              []byte `json:"audio"`
	Engine             string `json:"engine"`
	DiarizationEnabled bool   `json:"diarization_enabled"`
	LanguageHint       string `json:"language_hint,omitempty"`
	ContentType        string `json:"content_type,omitempty"`
}

type transcribeSegment struct {
	StartMs    int64   `json:"start_ms"`
	EndMs      int64   `json:"end_ms"`
	Text       string  `json:"text"`
	Speaker    string  `json:"speaker,omitempty"`
	Confidence float64 `json:"confidence"`
}

type transcribeResp struct {
	Segments   []transcribeSegment `json:"segments"`
	DurationMs int64               `json:"duration_ms"`
	Engine     string              `json:"engine"`
}

// Transcribe implements ports.ASREngine.
func (e *RemoteEngine) Transcribe(ctx context.Context, audio []byte, opts ports.TranscribeOptions) (ports.TranscribeResult, error) {
	var out ports.TranscribeResult
	err := e.breaker.Call(ctx, func(ctx context.Context) error {
		resp, err := e.doTranscribe(ctx, audio, opts)
		if err != nil {
			return err
		}
		out = resp
		return nil
	})
	if err != nil {
		return ports.TranscribeResult{}, classifyErr("asrengine.Transcribe", err)
	}
	return out, nil
}

func (e *RemoteEngine) doTranscribe(ctx context.Context, audio []byte, opts ports.TranscribeOptions) (ports.TranscribeResult, error) {
	body, err := json.Marshal(transcribeReq{
		Audio:              audio,
		Engine:             opts.Engine,
		DiarizationEnabled: opts.DiarizationEnabled,
		LanguageHint:       opts.LanguageHint,
		ContentType:        opts.ContentType,
	})
	if err != nil {
		return ports.TranscribeResult{}, fmt.Errorf("marshal transcribe request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/transcribe", bytes.NewReader(body))
	if err != nil {
		return ports.TranscribeResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return ports.TranscribeResult{}, fmt.Errorf("asr transcribe: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ports.TranscribeResult{}, fmt.Errorf("asr transcribe: status %d", resp.StatusCode)
	}

	var tr transcribeResp
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return ports.TranscribeResult{}, fmt.Errorf("asr transcribe decode: %w", err)
	}

	segs := make([]ports.RawSegment, len(tr.Segments))
	for i, s := range tr.Segments {
		segs[i] = ports.RawSegment{
			StartMs:    s.StartMs,
			EndMs:      s.EndMs,
			Text:       CleanTranscript(s.Text),
			Speaker:    s.Speaker,
			Confidence: s.Confidence,
		}
	}
	return ports.TranscribeResult{
		Segments: segs,
		Duration: time.Duration(tr.DurationMs) * time.Millisecond,
		Engine:   tr.Engine,
	}, nil
}

// Capabilities implements ports.ASREngine.
func (e *RemoteEngine) Capabilities(ctx context.Context) (ports.Capabilities, error) {
	var out ports.Capabilities
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/v1/capabilities", nil)
	if err != nil {
		return out, err
	}

	err = e.breaker.Call(ctx, func(ctx context.Context) error {
		resp, err := e.client.Do(req.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("asr capabilities: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("asr capabilities: status %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&out)
	})
	if err != nil {
		return ports.Capabilities{}, classifyErr("asrengine.Capabilities", err)
	}
	return out, nil
}

// classifyErr marks every error surfaced here as transient network
// failure: the breaker itself absorbs permanent backend outages into
// ErrCircuitOpen, and a non-200/decode failure from a reachable ASR
// backend is assumed recoverable on retry per §4.6.
func classifyErr(op string, err error) error {
	return domain.NewError(op, domain.KindTransientNetwork, err)
}
