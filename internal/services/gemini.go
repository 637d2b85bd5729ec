package services

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"google.golang.org/genai"

	"github.com/desertthunder/spotchat/internal/shared"
)

const geminiService = "gemini"

const (
	// DefaultGeminiModel is used when no model is configured.
	DefaultGeminiModel = "gemini-2.0-flash"

	// NotConfiguredReply is returned instead of calling Gemini when no API key is set.
	NotConfiguredReply = "Gemini is not configured. Set gemini.api_key (or SPOTCHAT_GEMINI_API_KEY) to enable free-form answers."
	// EmptyReply is returned when Gemini answers without any text.
	EmptyReply = "Gemini returned an empty response."
)

const assistantPreamble = "You are the assistant of a Spotify web app. " +
	"You cannot see the user's live player or listening history unless the app shows it to you. " +
	"When asked what they just listened to or what is playing now, say you cannot see it " +
	"and point them to the 'recently played' or 'currently playing' commands. " +
	"Do not make up placeholder names such as [Song Title] or [Artist Name]. " +
	"Keep answers short and honest.\n\n" +
	"User message: "

// GeminiService answers free-form messages with a Gemini model.
type GeminiService struct {
	client *genai.Client
	model  string
	logger *log.Logger
}

// GeminiOpts configures a [GeminiService].
type GeminiOpts struct {
	Config     shared.GeminiConfig
	HTTPClient *http.Client
	Logger     *log.Logger
}

// NewGeminiService creates a [GeminiService]. Without an API key no client is created
// and [GeminiService.Generate] returns [NotConfiguredReply].
func NewGeminiService(ctx context.Context, opts GeminiOpts) (*GeminiService, error) {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	svc := &GeminiService{
		model:  opts.Config.Model,
		logger: shared.WithLogger(opts.Logger, "component", "gemini"),
	}
	if svc.model == "" {
		svc.model = DefaultGeminiModel
	}
	if strings.TrimSpace(opts.Config.APIKey) == "" {
		svc.logger.Warn("gemini api key not set, free-form chat is disabled")
		return svc, nil
	}

	cfg := &genai.ClientConfig{
		APIKey:     opts.Config.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if opts.Config.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.Config.BaseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, &shared.UpstreamError{Service: geminiService, Err: err}
	}
	svc.client = client
	return svc, nil
}

// Configured reports whether an API key was provided.
func (g *GeminiService) Configured() bool {
	return g.client != nil
}

// Generate sends message, prefixed with the assistant instructions, to the model and
// returns its text.
func (g *GeminiService) Generate(ctx context.Context, message string) (string, error) {
	if g.client == nil {
		return NotConfiguredReply, nil
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(assistantPreamble+message), nil)
	if err != nil {
		g.logger.Error("gemini request failed", "model", g.model, "error", err)
		return "", wrapGeminiErr(err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return EmptyReply, nil
	}
	return text, nil
}

// wrapGeminiErr converts genai errors into [shared.UpstreamError], keeping the HTTP status when the API reported one.
func wrapGeminiErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &shared.UpstreamError{Service: geminiService, Status: apiErr.Code, Message: apiErr.Message, Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &shared.UpstreamError{Service: geminiService, Status: apiErrPtr.Code, Message: apiErrPtr.Message, Err: err}
	}
	return &shared.UpstreamError{Service: geminiService, Err: err}
}
