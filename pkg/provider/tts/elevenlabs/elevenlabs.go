// Package elevenlabs provides an ElevenLabs-backed TTS provider. It implements
// the tts.Provider interface over one of two transports:
//
//   - TransportHTTP (default): POST /v1/text-to-speech/{voice}/stream. The
//     response body is yielded chunk by chunk as it arrives.
//   - TransportWebSocket: the stream-input WebSocket API. Base64 audio frames
//     are decoded and yielded as they arrive.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/vaani/pkg/provider/tts"
)

const (
	defaultBaseURL   = "https://api.elevenlabs.io"
	defaultModel     = "eleven_multilingual_v2"
	defaultOutputFmt = "mp3_44100_128"

	// chunkSize is the read buffer size for the HTTP transport.
	chunkSize = 4096
)

// Transport selects the wire protocol used for synthesis.
type Transport string

const (
	// TransportHTTP uses the REST streaming endpoint.
	TransportHTTP Transport = "http"

	// TransportWebSocket uses the stream-input WebSocket endpoint.
	TransportWebSocket Transport = "websocket"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the default ElevenLabs model ID (e.g., "eleven_multilingual_v2").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the default audio output format (e.g.,
// "mp3_44100_128", "pcm_16000").
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithVoice sets the voice used when a request carries no VoiceID.
func WithVoice(voiceID string) Option {
	return func(p *Provider) {
		p.voiceID = voiceID
	}
}

// WithBaseURL overrides the API base URL. The WebSocket endpoint is derived
// from it by switching the scheme to ws/wss.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(u, "/")
	}
}

// WithTransport selects the synthesis transport. Defaults to TransportHTTP.
func WithTransport(t Transport) Option {
	return func(p *Provider) {
		p.transport = t
	}
}

// WithHTTPClient replaces the HTTP client used for REST calls.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements tts.Provider backed by the ElevenLabs API.
type Provider struct {
	apiKey       string
	baseURL      string
	model        string
	outputFormat string
	voiceID      string
	transport    Transport
	httpClient   *http.Client
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		transport:    TransportHTTP,
		httpClient:   &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	switch p.transport {
	case TransportHTTP, TransportWebSocket:
	default:
		return nil, fmt.Errorf("elevenlabs: unknown transport %q", p.transport)
	}
	return p, nil
}

// resolved fills request defaults from the provider configuration.
func (p *Provider) resolved(req tts.Request) (tts.Request, error) {
	if strings.TrimSpace(req.Text) == "" {
		return req, errors.New("elevenlabs: text must not be empty")
	}
	if req.VoiceID == "" {
		req.VoiceID = p.voiceID
	}
	if req.VoiceID == "" {
		return req, errors.New("elevenlabs: voice ID must not be empty")
	}
	if req.Model == "" {
		req.Model = p.model
	}
	if req.OutputFormat == "" {
		req.OutputFormat = p.outputFormat
	}
	return req, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (iter.Seq2[[]byte, error], error) {
	req, err := p.resolved(req)
	if err != nil {
		return nil, err
	}
	if p.transport == TransportWebSocket {
		return p.synthesizeWS(ctx, req)
	}
	return p.synthesizeHTTP(ctx, req)
}

// ---- HTTP transport ----

// streamRequest is the JSON body of POST /v1/text-to-speech/{voice}/stream.
type streamRequest struct {
	Text         string `json:"text"`
	ModelID      string `json:"model_id"`
	LanguageCode string `json:"language_code,omitempty"`
}

func (p *Provider) synthesizeHTTP(ctx context.Context, req tts.Request) (iter.Seq2[[]byte, error], error) {
	body, err := json.Marshal(streamRequest{
		Text:         req.Text,
		ModelID:      req.Model,
		LanguageCode: req.LanguageCode,
	})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s/stream?output_format=%s",
		p.baseURL, url.PathEscape(req.VoiceID), url.QueryEscape(req.OutputFormat))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: create request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: synthesize HTTP: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, fmt.Errorf("elevenlabs: synthesize: %w", apiError(resp))
	}

	return func(yield func([]byte, error) bool) {
		defer resp.Body.Close()
		buf := make([]byte, chunkSize)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				if !yield(chunk, nil) {
					return
				}
			}
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, fmt.Errorf("elevenlabs: read audio stream: %w", err))
				return
			}
		}
	}, nil
}

// apiError turns a non-200 response into an error carrying the API detail.
func apiError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var detail struct {
		Detail struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"detail"`
	}
	if json.Unmarshal(data, &detail) == nil && detail.Detail.Message != "" {
		return fmt.Errorf("status %d: %s: %s", resp.StatusCode, detail.Detail.Status, detail.Detail.Message)
	}
	if msg := strings.TrimSpace(string(data)); msg != "" {
		return fmt.Errorf("status %d: %s", resp.StatusCode, msg)
	}
	return fmt.Errorf("unexpected status %d", resp.StatusCode)
}

// ---- WebSocket transport ----

// textMessage is the JSON payload sent to ElevenLabs for each text fragment.
type textMessage struct {
	Text                 string         `json:"text"`
	TryTriggerGeneration bool           `json:"try_trigger_generation,omitempty"`
	VoiceSettings        *voiceSettings `json:"voice_settings,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// audioResponse is the JSON message received from ElevenLabs over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded audio
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"` // error or info
	Error   string `json:"error,omitempty"`
}

// boiMessage is used for the initial "begin of input" handshake.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
}

func (p *Provider) synthesizeWS(ctx context.Context, req tts.Request) (iter.Seq2[[]byte, error], error) {
	wsURL, err := p.wsURL(req)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}

	// ElevenLabs requires a non-empty first text value; the single space
	// authenticates and configures the stream.
	msgs := []any{
		boiMessage{
			Text:          " ",
			VoiceSettings: &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
			XiAPIKey:      p.apiKey,
		},
		textMessage{Text: strings.TrimSpace(req.Text) + " ", TryTriggerGeneration: true},
		// Empty text flushes and closes the input.
		textMessage{Text: ""},
	}
	for _, m := range msgs {
		data, _ := json.Marshal(m)
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			conn.Close(websocket.StatusInternalError, "write failed")
			return nil, fmt.Errorf("elevenlabs: send text: %w", err)
		}
	}

	return func(yield func([]byte, error) bool) {
		defer conn.Close(websocket.StatusNormalClosure, "done")
		for {
			_, msg, err := conn.Read(ctx)
			if err != nil {
				if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
					return
				}
				yield(nil, fmt.Errorf("elevenlabs: read: %w", err))
				return
			}
			var resp audioResponse
			if err := json.Unmarshal(msg, &resp); err != nil {
				yield(nil, fmt.Errorf("elevenlabs: decode message: %w", err))
				return
			}
			if resp.Error != "" {
				yield(nil, fmt.Errorf("elevenlabs: %s: %s", resp.Error, resp.Message))
				return
			}
			if resp.Audio != "" {
				chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
				if err != nil {
					yield(nil, fmt.Errorf("elevenlabs: decode audio: %w", err))
					return
				}
				if !yield(chunk, nil) {
					return
				}
			}
			if resp.IsFinal {
				return
			}
		}
	}, nil
}

// wsURL constructs the stream-input WebSocket URL for a request.
func (p *Provider) wsURL(req tts.Request) (string, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return "", fmt.Errorf("elevenlabs: parse base URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = "/v1/text-to-speech/" + req.VoiceID + "/stream-input"
	u.RawPath = "/v1/text-to-speech/" + url.PathEscape(req.VoiceID) + "/stream-input"
	q := url.Values{}
	q.Set("model_id", req.Model)
	q.Set("output_format", req.OutputFormat)
	if req.LanguageCode != "" {
		q.Set("language_code", req.LanguageCode)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- ListVoices ----

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

// elevenLabsVoice is a single voice entry from the ElevenLabs API.
type elevenLabsVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// ListVoices returns all voices available from ElevenLabs for the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", apiError(resp))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices read: %w", err)
	}
	profiles, err := parseVoicesResponse(data)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}
	return profiles, nil
}

// parseVoicesResponse parses a raw JSON byte slice (matching the ElevenLabs
// /v1/voices response) into a slice of VoiceProfile values.
func parseVoicesResponse(data []byte) ([]tts.VoiceProfile, error) {
	var vr voicesResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		return nil, err
	}
	profiles := make([]tts.VoiceProfile, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		profiles = append(profiles, tts.VoiceProfile{
			ID:       v.VoiceID,
			Name:     v.Name,
			Provider: "elevenlabs",
			Metadata: meta,
		})
	}
	return profiles, nil
}
