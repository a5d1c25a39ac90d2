package openai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/bioscope-cloud/bioscope/internal/domain"
	"github.com/bioscope-cloud/bioscope/pkg/stream"
)

const summarySystemPrompt = "You are a biomedical literature assistant. " +
	"Summarize how the retrieved papers relate to the user's query in a few " +
	"sentences. Mention concrete findings, do not invent citations."

// Summarizer generates a short answer for direct-mode searches from the top
// retrieved papers, so the generate stage produces content even without the
// orchestration backend.
type Summarizer struct {
	client *openai.Client
	model  string
}

// NewSummarizer creates a chat-completion summarizer.
func NewSummarizer(apiKey, baseURL, model string) *Summarizer {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Summarizer{client: openai.NewClientWithConfig(cfg), model: model}
}

// Summarize produces a summary of the hits for the query. Returns "" with no
// error when there is nothing to summarize.
func (s *Summarizer) Summarize(ctx context.Context, query string, hits []stream.Hit) (string, error) {
	if len(hits) == 0 {
		return "", nil
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summarySystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildSummaryPrompt(query, hits)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w: %w", err, domain.ErrSummaryProvider)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response: %w", domain.ErrSummaryProvider)
	}
	return resp.Choices[0].Message.Content, nil
}

// buildSummaryPrompt lists the top papers as titled abstract snippets.
func buildSummaryPrompt(query string, hits []stream.Hit) string {
	const maxPapers = 5
	const maxAbstract = 600

	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\nRetrieved papers:\n", query)
	for i, hit := range hits {
		if i >= maxPapers {
			break
		}
		paper := domain.Paper(hit.Payload)
		title := domain.PaperTitle(paper)
		abstract := domain.PaperAbstract(paper)
		if len(abstract) > maxAbstract {
			abstract = abstract[:maxAbstract]
		}
		fmt.Fprintf(&b, "%d. %s\n%s\n\n", i+1, title, abstract)
	}
	return b.String()
}
