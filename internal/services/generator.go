package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"

	"github.com/Nexgear75/MacScribe/internal/shared"
	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
)

// Provider names with built-in endpoints.
const (
	ProviderDeepSeek = "deepseek"
	ProviderOpenAI   = "openai"
	ProviderOllama   = "ollama"
)

var defaultBaseURLs = map[string]string{
	ProviderDeepSeek: "https://api.deepseek.com",
	ProviderOpenAI:   "https://api.openai.com/v1",
	ProviderOllama:   "http://localhost:11434",
}

// streamMode is how a provider returns tokens.
type streamMode int

const (
	modeSSE    streamMode = iota // OpenAI-compatible server-sent events
	modeNDJSON                   // Ollama newline-delimited JSON
	modeSingle                   // one non-streaming completion
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// chatChunk covers both streamed deltas and complete responses of the
// chat completions API.
type chatChunk struct {
	Choices []struct {
		Delta   chatMessage `json:"delta"`
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type ollamaChunk struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error,omitempty"`
}

// ChatGenerator streams chat completions from an LLM provider over HTTP.
type ChatGenerator struct {
	provider   string
	model      string
	baseURL    string
	mode       streamMode
	httpClient *http.Client
	logger     *log.Logger
}

// NewChatGenerator creates a generator for the [shared.LLMConfig] section.
//
// When the provider needs an API key, requests are authorized with a static bearer token
// read from the configured environment variable. A nil client uses [http.DefaultClient].
func NewChatGenerator(ctx context.Context, cfg shared.LLMConfig, client *http.Client, logger *log.Logger) (*ChatGenerator, error) {
	if cfg.Provider == "" || cfg.Model == "" {
		return nil, fmt.Errorf("%w: llm provider and model are required", shared.ErrInvalidConfig)
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	provider := strings.ToLower(cfg.Provider)
	g := &ChatGenerator{
		provider: provider,
		model:    cfg.Model,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		logger:   logger,
	}

	switch provider {
	case ProviderOllama:
		g.mode = modeNDJSON
	case ProviderDeepSeek, ProviderOpenAI:
		g.mode = modeSSE
	default:
		g.mode = modeSingle
	}

	if g.baseURL == "" {
		g.baseURL = defaultBaseURLs[provider]
	}
	if g.baseURL == "" {
		return nil, fmt.Errorf("%w: base_url is required for provider %q", shared.ErrMissingConfig, cfg.Provider)
	}

	if client == nil {
		client = http.DefaultClient
	}
	if provider != ProviderOllama {
		key := cfg.APIKey()
		if key == "" {
			return nil, fmt.Errorf("%w: set %s", shared.ErrMissingAPIKey, apiKeyEnv(cfg))
		}
		ctx = context.WithValue(ctx, oauth2.HTTPClient, client)
		client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: key, TokenType: "Bearer"}))
	}
	g.httpClient = client

	return g, nil
}

func apiKeyEnv(cfg shared.LLMConfig) string {
	if cfg.APIKeyEnv != "" {
		return cfg.APIKeyEnv
	}
	return strings.ToUpper(cfg.Provider) + "_API_KEY"
}

// Describe returns provider/model.
func (g *ChatGenerator) Describe() string {
	return g.provider + "/" + g.model
}

// Stream sends prompt as a single user message and yields the response tokens.
//
// A transport or provider error ends the sequence with a non-nil error.
func (g *ChatGenerator) Stream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		resp, err := g.post(ctx, prompt)
		if err != nil {
			yield("", err)
			return
		}
		defer resp.Body.Close()

		switch g.mode {
		case modeNDJSON:
			g.readNDJSON(resp.Body, yield)
		case modeSSE:
			g.readSSE(resp.Body, yield)
		default:
			g.readSingle(resp.Body, yield)
		}
	}
}

func (g *ChatGenerator) endpoint() string {
	if g.mode == modeNDJSON {
		return g.baseURL + "/api/chat"
	}
	return g.baseURL + "/chat/completions"
}

func (g *ChatGenerator) post(ctx context.Context, prompt string) (*http.Response, error) {
	body, err := json.Marshal(chatRequest{
		Model:    g.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Stream:   g.mode != modeSingle,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.mode == modeSSE {
		req.Header.Set("Accept", "text/event-stream")
	}

	g.logger.Debug("sending generation request", "provider", g.provider, "model", g.model, "url", req.URL.String())
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", shared.ErrAPIRequest, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}

// readSSE yields delta contents from "data:" lines until "[DONE]".
func (g *ChatGenerator) readSSE(r io.Reader, yield func(string, error) bool) {
	scanner := newLineScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			return
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			yield("", fmt.Errorf("%w: bad stream chunk: %v", shared.ErrAPIRequest, err))
			return
		}
		if chunk.Error != nil {
			yield("", fmt.Errorf("%w: %s", shared.ErrAPIRequest, chunk.Error.Message))
			return
		}
		for _, c := range chunk.Choices {
			if c.Delta.Content == "" {
				continue
			}
			if !yield(c.Delta.Content, nil) {
				return
			}
		}
	}
	if err := scanner.Err(); err != nil {
		yield("", fmt.Errorf("%w: stream interrupted: %v", shared.ErrAPIRequest, err))
	}
}

// readNDJSON yields message contents from one JSON object per line until done.
func (g *ChatGenerator) readNDJSON(r io.Reader, yield func(string, error) bool) {
	scanner := newLineScanner(r)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk ollamaChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			yield("", fmt.Errorf("%w: bad stream chunk: %v", shared.ErrAPIRequest, err))
			return
		}
		if chunk.Error != "" {
			yield("", fmt.Errorf("%w: %s", shared.ErrAPIRequest, chunk.Error))
			return
		}
		if chunk.Message.Content != "" {
			if !yield(chunk.Message.Content, nil) {
				return
			}
		}
		if chunk.Done {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		yield("", fmt.Errorf("%w: stream interrupted: %v", shared.ErrAPIRequest, err))
	}
}

// readSingle yields the whole completion as one token.
func (g *ChatGenerator) readSingle(r io.Reader, yield func(string, error) bool) {
	var resp chatChunk
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		yield("", fmt.Errorf("%w: failed to decode response: %v", shared.ErrAPIRequest, err))
		return
	}
	if resp.Error != nil {
		yield("", fmt.Errorf("%w: %s", shared.ErrAPIRequest, resp.Error.Message))
		return
	}
	if len(resp.Choices) == 0 {
		yield("", fmt.Errorf("%w: response has no choices", shared.ErrAPIRequest))
		return
	}
	yield(resp.Choices[0].Message.Content, nil)
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return scanner
}
