package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/MrWong99/intervox/internal/remote"
	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/provider/stt"
)

// HTTPProvider implements [stt.Provider] against the interview backend's
// transcription endpoint: a multipart POST with an "audio" WAV file and a
// "sessionId" field, answered by {"text": "..."}.
type HTTPProvider struct {
	endpoint string
	client   *http.Client
}

var _ stt.Provider = (*HTTPProvider)(nil)

// NewHTTP returns a provider posting to endpoint
// (e.g. "http://localhost:8000/api/interview/stt/"). A nil client uses a
// client with a 60 s timeout.
func NewHTTP(endpoint string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPProvider{endpoint: endpoint, client: client}
}

type sttResponse struct {
	Text *string `json:"text"`
}

// Transcribe uploads the segment as 16 kHz mono WAV.
func (p *HTTPProvider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	if req.Audio.Empty() {
		return stt.Transcript{}, stt.ErrNoAudio
	}
	pcm := audio.ConvertPCM(req.Audio.PCM, req.Audio.Format, audio.SpeechFormat)
	wav := audio.EncodeWAV(pcm, audio.SpeechFormat)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("audio", "recording.wav")
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("transcribe: build form: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return stt.Transcript{}, fmt.Errorf("transcribe: build form: %w", err)
	}
	if err := mw.WriteField("sessionId", req.SessionID); err != nil {
		return stt.Transcript{}, fmt.Errorf("transcribe: build form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return stt.Transcript{}, fmt.Errorf("transcribe: build form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, &body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("transcribe: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	raw, err := remote.Do(p.client, op, httpReq)
	if err != nil {
		return stt.Transcript{}, err
	}

	var resp sttResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return stt.Transcript{}, &remote.ServerError{Op: op, Body: "invalid JSON: " + err.Error()}
	}
	if resp.Text == nil {
		return stt.Transcript{}, &remote.ServerError{Op: op, Body: "response has no text field"}
	}
	return stt.Transcript{Text: *resp.Text, Elapsed: time.Since(start)}, nil
}
