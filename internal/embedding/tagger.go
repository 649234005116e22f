package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/tbourn/go-campustrace-backend/internal/similarity"
)

// MaxTags is the most keywords kept for one item.
const MaxTags = 7

// Tagger derives keyword tags for an item from its title and description.
// It always returns a usable (possibly empty) list.
type Tagger interface {
	Tags(ctx context.Context, title, description string) []string
}

// KeywordTagger extracts tags locally without a model.
type KeywordTagger struct{}

// Tags implements Tagger.
func (KeywordTagger) Tags(_ context.Context, title, description string) []string {
	return similarity.ExtractKeywords(title+" "+description, MaxTags)
}

const tagPrompt = "Generate 5-7 relevant, single-word or two-word keywords for a lost-and-found item. " +
	"Focus on specific nouns, brands, colors, and materials. " +
	"Output them as a single, comma-separated string. Example: 'iphone, smartphone, apple, black case'.\n\n" +
	"Title: %s\nDescription: %s"

// ChatTagger asks a chat model for keywords and falls back to KeywordTagger
// on any failure. It reuses the provider's lazily built client.
type ChatTagger struct {
	Provider *OpenAIProvider
	Model    string
	Log      zerolog.Logger
	Fallback Tagger
}

// Tags implements Tagger.
func (t *ChatTagger) Tags(ctx context.Context, title, description string) []string {
	fallback := t.Fallback
	if fallback == nil {
		fallback = KeywordTagger{}
	}
	if t.Provider == nil || t.Model == "" {
		return fallback.Tags(ctx, title, description)
	}

	client, err := t.Provider.getClient()
	if err != nil {
		return fallback.Tags(ctx, title, description)
	}
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: t.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(tagPrompt, title, description)},
		},
		Temperature: 0.2,
	})
	if err != nil || len(resp.Choices) == 0 {
		t.Log.Warn().Err(err).Msg("tagger: model unavailable, using keyword extraction")
		return fallback.Tags(ctx, title, description)
	}

	tags := ParseTagList(resp.Choices[0].Message.Content)
	if len(tags) == 0 {
		return fallback.Tags(ctx, title, description)
	}
	return tags
}

// ParseTagList splits a comma-separated model reply into normalized tags.
func ParseTagList(s string) []string {
	s = strings.Trim(strings.TrimSpace(s), `'"`)
	return similarity.NormalizeTags(strings.Split(s, ","), MaxTags)
}
