package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"insightd/internal/provider"
)

// OpenAIConfig configures an OpenAI-compatible chat backend. The same wire
// format is served by OpenAI, Groq, LM Studio and Ollama's /v1 endpoint.
type OpenAIConfig struct {
	Name    string
	BaseURL string
	Model   string
	// Credential is a reference such as "env:GROQ_API_KEY"; it is resolved on
	// each call and never stored resolved.
	Credential     string
	Stream         bool
	SkipProbe      bool
	MaxTokens      int
	Temperature    float32
	ConnectTimeout time.Duration
}

// OpenAI implements provider.Generator over HTTP.
type OpenAI struct {
	cfg        OpenAIConfig
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

var _ provider.Generator = (*OpenAI)(nil)

// NewOpenAI constructs the backend. No network I/O happens until Connect.
func NewOpenAI(cfg OpenAIConfig, log zerolog.Logger) *OpenAI {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	// Timeout=0: every request carries a context deadline from the dispatcher.
	cli := &http.Client{Transport: tr, Timeout: 0}
	return &OpenAI{
		cfg:        cfg,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: cli,
		log:        log.With().Str("provider", cfg.Name).Logger(),
	}
}

func (o *OpenAI) fail(kind provider.FailureKind, status int, err error) error {
	return &provider.Error{Kind: kind, Provider: o.cfg.Name, Status: status, Err: err}
}

// transportErr turns a failed round trip into a typed failure, keeping
// context errors recognizable.
func (o *OpenAI) transportErr(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return o.fail(provider.FailureTimeout, 0, ctx.Err())
	case ctx.Err() != nil:
		return o.fail(provider.FailureCanceled, 0, ctx.Err())
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return o.fail(provider.FailureTimeout, 0, err)
	}
	return o.fail(provider.FailureTransport, 0, err)
}

func (o *OpenAI) authorize(req *http.Request) error {
	if o.cfg.Credential == "" {
		return nil
	}
	key, err := ResolveCredential(o.cfg.Credential)
	if err != nil {
		return o.fail(provider.FailureAuth, 0, err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	return nil
}

func (o *OpenAI) statusErr(resp *http.Response) error {
	kind := provider.KindForStatus(resp.StatusCode)
	if kind == "" {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return o.fail(kind, resp.StatusCode, fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(b))))
}

// Connect probes GET /models so that bad endpoints and credentials are
// reported at registration rather than on the first request.
func (o *OpenAI) Connect(ctx context.Context) error {
	if o.baseURL == "" {
		return o.fail(provider.FailureTransport, 0, errors.New("endpoint is empty"))
	}
	if o.cfg.SkipProbe {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/models", nil)
	if err != nil {
		return o.fail(provider.FailureTransport, 0, err)
	}
	if err := o.authorize(req); err != nil {
		return err
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return o.transportErr(ctx, err)
	}
	defer resp.Body.Close()
	if err := o.statusErr(resp); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	o.log.Debug().Str("endpoint", o.baseURL).Msg("probe ok")
	return nil
}

// Close drops idle connections.
func (o *OpenAI) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type chatStreamChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Generate posts one chat completion.
func (o *OpenAI) Generate(ctx context.Context, p provider.Payload) (provider.Response, error) {
	user := p.Rendered
	if user == "" {
		user = p.Prompt
	}
	msgs := make([]chatMessage, 0, 2)
	if p.SystemPrompt != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: p.SystemPrompt})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: user})
	body, err := json.Marshal(chatRequest{
		Model:       o.cfg.Model,
		Messages:    msgs,
		MaxTokens:   o.cfg.MaxTokens,
		Temperature: o.cfg.Temperature,
		Stream:      o.cfg.Stream,
	})
	if err != nil {
		return provider.Response{}, o.fail(provider.FailureInvalidResponse, 0, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return provider.Response{}, o.fail(provider.FailureTransport, 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := o.authorize(req); err != nil {
		return provider.Response{}, err
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return provider.Response{}, o.transportErr(ctx, err)
	}
	defer resp.Body.Close()
	if err := o.statusErr(resp); err != nil {
		return provider.Response{}, err
	}
	if o.cfg.Stream || strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		return o.readStream(ctx, resp.Body)
	}
	return o.readJSON(ctx, resp.Body)
}

func (o *OpenAI) readJSON(ctx context.Context, r io.Reader) (provider.Response, error) {
	raw, err := io.ReadAll(io.LimitReader(r, 4<<20))
	if err != nil {
		return provider.Response{}, o.transportErr(ctx, err)
	}
	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return provider.Response{}, o.fail(provider.FailureInvalidResponse, 0, err)
	}
	if len(cr.Choices) == 0 || strings.TrimSpace(cr.Choices[0].Message.Content) == "" {
		return provider.Response{}, o.fail(provider.FailureInvalidResponse, 0, errors.New("no content in response"))
	}
	return provider.Response{
		Text:         cr.Choices[0].Message.Content,
		Raw:          raw,
		Model:        cr.Model,
		FinishReason: cr.Choices[0].FinishReason,
	}, nil
}

// readStream parses Server-Sent Events with "data: " lines up to [DONE].
func (o *OpenAI) readStream(ctx context.Context, r io.Reader) (provider.Response, error) {
	br := bufio.NewReader(r)
	var (
		out  provider.Response
		text strings.Builder
	)
	for {
		line, err := br.ReadString('\n')
		line = strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToLower(line), "data:") {
			data := strings.TrimSpace(line[len("data:"):])
			if data == "[DONE]" {
				break
			}
			var chunk chatStreamChunk
			if jerr := json.Unmarshal([]byte(data), &chunk); jerr == nil && len(chunk.Choices) > 0 {
				text.WriteString(chunk.Choices[0].Delta.Content)
				if fr := chunk.Choices[0].FinishReason; fr != "" {
					out.FinishReason = fr
				}
				if chunk.Model != "" {
					out.Model = chunk.Model
				}
			} else {
				o.log.Debug().Str("line", line).Msg("unknown stream line")
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return provider.Response{}, o.transportErr(ctx, err)
		}
	}
	out.Text = text.String()
	if strings.TrimSpace(out.Text) == "" {
		return provider.Response{}, o.fail(provider.FailureInvalidResponse, 0, errors.New("empty stream"))
	}
	return out, nil
}
