package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/semaphore"

	"github.com/tbourn/go-campustrace-backend/internal/observability"
)

var errNotConfigured = errors.New("embedding: base URL or API key not configured")

// OpenAIProvider calls an OpenAI-compatible /embeddings endpoint.
//
// The underlying client is built on first use under a mutex. A failed build
// is not cached, so the next call tries again.
type OpenAIProvider struct {
	cfg Config
	log zerolog.Logger
	sem *semaphore.Weighted

	mu     sync.Mutex
	client *openai.Client

	// overridable in tests
	httpClient *http.Client
}

// NewOpenAIProvider returns a provider for cfg. No network calls are made
// until the first Embed.
func NewOpenAIProvider(cfg Config, log zerolog.Logger) *OpenAIProvider {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = cfg.TextModel
	}
	return &OpenAIProvider{
		cfg: cfg,
		log: log.With().Str("component", "embedding").Logger(),
		sem: semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
	}
}

func (p *OpenAIProvider) getClient() (*openai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	if strings.TrimSpace(p.cfg.BaseURL) == "" && strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, errNotConfigured
	}
	cc := openai.DefaultConfig(p.cfg.APIKey)
	if p.cfg.BaseURL != "" {
		cc.BaseURL = strings.TrimRight(p.cfg.BaseURL, "/")
	}
	if p.httpClient != nil {
		cc.HTTPClient = p.httpClient
	} else if p.cfg.Timeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: p.cfg.Timeout}
	}
	p.client = openai.NewClientWithConfig(cc)
	return p.client, nil
}

// Embed implements Provider.
func (p *OpenAIProvider) Embed(ctx context.Context, in Input) []float32 {
	if in.Empty() {
		return nil
	}
	ch := in.channel()
	vec, err := p.embed(ctx, in)
	if err != nil {
		observability.EmbeddingFailures.WithLabelValues(ch).Inc()
		p.log.Warn().Err(err).Str("channel", ch).Msg("embedding unavailable")
		return nil
	}
	return vec
}

func (p *OpenAIProvider) embed(ctx context.Context, in Input) ([]float32, error) {
	client, err := p.getClient()
	if err != nil {
		return nil, err
	}

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire slot: %w", err)
	}
	defer p.sem.Release(1)

	req, err := p.request(in)
	if err != nil {
		return nil, err
	}
	resp, err := client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("empty embedding response")
	}
	out := make([]float32, len(resp.Data[0].Embedding))
	copy(out, resp.Data[0].Embedding)
	return out, nil
}

// request builds the wire request. Text-only inputs use the plain string
// form; anything with an image uses the object form accepted by multimodal
// providers: [{"image": "data:..."}] or [{"text": "...", "image": "data:..."}].
func (p *OpenAIProvider) request(in Input) (openai.EmbeddingRequest, error) {
	if len(in.Image) == 0 {
		return openai.EmbeddingRequest{
			Input: []string{in.Text},
			Model: openai.EmbeddingModel(p.cfg.TextModel),
		}, nil
	}
	uri, err := imageDataURI(in.Image, p.cfg.ImageMaxSide)
	if err != nil {
		return openai.EmbeddingRequest{}, err
	}
	obj := map[string]string{"image": uri}
	if in.Text != "" {
		obj["text"] = in.Text
	}
	return openai.EmbeddingRequest{
		Input: []map[string]string{obj},
		Model: openai.EmbeddingModel(p.cfg.ImageModel),
	}, nil
}
