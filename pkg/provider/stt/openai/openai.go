// Package openai provides a speech-translation provider backed by the OpenAI
// audio translations endpoint.
//
// Any OpenAI-compatible server works. Groq is the usual choice and is reached
// by pointing the provider at [GroqBaseURL]:
//
//	p, err := openai.New(apiKey, "whisper-large-v3",
//	    openai.WithBaseURL(openai.GroqBaseURL),
//	)
//	res, err := p.Translate(ctx, stt.Request{Audio: wav, Filename: "capture.wav"})
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/vaani/pkg/provider/stt"
)

// GroqBaseURL is the OpenAI-compatible endpoint of the Groq API.
const GroqBaseURL = "https://api.groq.com/openai/v1/"

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using the audio translations API.
type Provider struct {
	client oai.Client
	model  string
}

type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a Provider for the given translation model
// (e.g. "whisper-large-v3" on Groq, "whisper-1" on OpenAI).
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai stt: apiKey must not be empty")
	}
	if model == "" {
		return nil, errors.New("openai stt: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// Retries would re-submit a capture the user already considers failed.
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Provider{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Model returns the configured model name.
func (p *Provider) Model() string { return p.model }

// Translate implements stt.Provider. The whole recording is uploaded in one
// request and the returned text is passed through unchanged, including an
// empty string for silent input.
func (p *Provider) Translate(ctx context.Context, req stt.Request) (*stt.Result, error) {
	if len(req.Audio) == 0 {
		return nil, errors.New("openai stt: audio must not be empty")
	}

	filename := req.Filename
	if filename == "" {
		filename = "capture.wav"
	}

	params := oai.AudioTranslationNewParams{
		File:        oai.File(bytes.NewReader(req.Audio), filename, contentType(filename)),
		Model:       oai.AudioModel(p.model),
		Temperature: param.NewOpt(req.Temperature),
	}
	if req.Prompt != "" {
		params.Prompt = param.NewOpt(req.Prompt)
	}
	if req.ResponseFormat != "" {
		params.ResponseFormat = oai.AudioTranslationNewParamsResponseFormat(req.ResponseFormat)
	}

	start := time.Now()
	resp, err := p.client.Audio.Translations.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai stt: translate: %w", err)
	}

	return &stt.Result{
		Text:     resp.Text,
		Language: "en",
		Duration: time.Since(start),
	}, nil
}

func contentType(filename string) string {
	if ct := mime.TypeByExtension(filepath.Ext(filename)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
