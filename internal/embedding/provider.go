// Package embedding turns item text and photos into vectors through an
// OpenAI-compatible embeddings API.
//
// Callers never see provider errors: a failed call yields a nil vector, which
// the scoring code treats as an absent channel.
package embedding

import (
	"context"
	"time"
)

// Input is one embedding request. Empty fields are absent. Text and Image
// are normally sent alone; setting both asks a multimodal model for a
// single joint vector.
type Input struct {
	Text  string
	Image []byte
}

// Empty reports whether neither channel is set.
func (in Input) Empty() bool { return in.Text == "" && len(in.Image) == 0 }

func (in Input) channel() string {
	switch {
	case in.Text != "" && len(in.Image) > 0:
		return "multimodal"
	case len(in.Image) > 0:
		return "image"
	default:
		return "text"
	}
}

// Provider produces embeddings. Embed returns nil when no vector could be
// produced for any reason.
type Provider interface {
	Embed(ctx context.Context, in Input) []float32
}

// Config configures the OpenAI-compatible provider.
type Config struct {
	BaseURL        string
	APIKey         string
	TextModel      string
	ImageModel     string
	Timeout        time.Duration
	MaxConcurrency int
	ImageMaxSide   int
}

// Nop is a Provider that never produces a vector. It is used when no
// embedding backend is configured.
type Nop struct{}

// Embed implements Provider.
func (Nop) Embed(context.Context, Input) []float32 { return nil }

// Func adapts a function to the Provider interface.
type Func func(ctx context.Context, in Input) []float32

// Embed implements Provider.
func (f Func) Embed(ctx context.Context, in Input) []float32 { return f(ctx, in) }
