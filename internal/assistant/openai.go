package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
)

const (
	baseMaxOutputTokens  int64 = 1024
	limitMaxOutputTokens int64 = 4096

	// articleContextMaxRunes caps the article text sent with a question.
	articleContextMaxRunes = 12000

	systemPrompt = `You are a reading assistant inside a feed reader.
Answer the user's question about the article below.

Rules:
- Base the answer on the article; say so when it does not cover the question.
- Be concise, at most a few short paragraphs.
- Markdown is allowed.
- Answer in the language of the question.`
)

// OpenAI answers with OpenAI's Responses API.
type OpenAI struct {
	client openai.Client
}

func NewOpenAI(apiKey string) *OpenAI {
	return &OpenAI{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
	}
}

func (a *OpenAI) Reply(ctx context.Context, req Request) (string, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return "", errors.New("message is empty")
	}

	input := buildInput(message, req.ArticleContext)

	maxOutputTokens := baseMaxOutputTokens
	for {
		resp, err := a.client.Responses.New(ctx, responses.ResponseNewParams{
			Model:           openai.ChatModelGPT5Mini2025_08_07,
			MaxOutputTokens: openai.Int(maxOutputTokens),
			Reasoning: responses.ReasoningParam{
				Effort: openai.ReasoningEffortLow,
			},
			Instructions: openai.String(systemPrompt),
			Input: responses.ResponseNewParamsInputUnion{
				OfString: openai.String(input),
			},
		})
		if err != nil {
			return "", fmt.Errorf("do request: %w", err)
		}

		if resp.Status == "incomplete" {
			if resp.IncompleteDetails.Reason == "max_output_tokens" && maxOutputTokens < limitMaxOutputTokens {
				maxOutputTokens = min(maxOutputTokens*2, limitMaxOutputTokens)
				continue
			}
			return "", fmt.Errorf(
				"response is incomplete (reason = %s, maxOutputTokens = %d)",
				resp.IncompleteDetails.Reason,
				maxOutputTokens,
			)
		}

		reply := strings.TrimSpace(resp.OutputText())
		if reply == "" {
			return "", fmt.Errorf("output text is missing (status = %s)", resp.Status)
		}
		return reply, nil
	}
}

func buildInput(message, articleContext string) string {
	var b strings.Builder

	if articleContext = strings.TrimSpace(articleContext); articleContext != "" {
		runes := []rune(articleContext)
		if len(runes) > articleContextMaxRunes {
			articleContext = string(runes[:articleContextMaxRunes])
		}

		b.WriteString("Article:\n")
		b.WriteString(articleContext)
		b.WriteString("\n\n")
	}

	b.WriteString("Question:\n")
	b.WriteString(message)

	return b.String()
}
