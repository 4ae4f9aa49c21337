// Package classify delegates mail labelling to an external model.
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/joshsymonds/mailtriage/internal/gmail"
)

const maxBodyChars = 2000

// OpenAI classifies messages with a chat-completion model. The model picks
// labels from the candidate catalog only; anything else it replies with is
// discarded.
type OpenAI struct {
	client *openai.Client
	model  string
	log    *slog.Logger
}

func NewOpenAI(apiKey, model string, log *slog.Logger) *OpenAI {
	if model == "" {
		model = openai.GPT4oMini
	}
	if log == nil {
		log = slog.Default()
	}
	return &OpenAI{client: openai.NewClient(apiKey), model: model, log: log}
}

const systemPrompt = "You label emails. Given an email and a list of allowed labels, " +
	"reply with the labels that apply, comma separated. Reply NONE if no label applies. " +
	"Never invent labels outside the allowed list."

// Classify asks the model to pick labels for msg out of candidates and
// returns the picks together with the model name used.
func (o *OpenAI) Classify(ctx context.Context, msg gmail.Message, candidates []string) ([]string, string, error) {
	if len(candidates) == 0 {
		return nil, o.model, nil
	}

	body := msg.Text
	if body == "" {
		body = msg.Snippet
	}
	if len(body) > maxBodyChars {
		body = body[:maxBodyChars]
	}

	prompt := fmt.Sprintf(
		"Allowed labels: %s\n\nFrom: %s\nSubject: %s\n\n%s",
		strings.Join(candidates, ", "), msg.Sender, msg.Subject, body,
	)

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, "", fmt.Errorf("classify via %s: %w", o.model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, "", fmt.Errorf("classify via %s: empty response", o.model)
	}

	picks := filterSuggestions(resp.Choices[0].Message.Content, candidates)
	o.log.Debug("classified message", "message", msg.ID, "labels", picks)
	return picks, o.model, nil
}

// filterSuggestions keeps only raw picks present in the candidate catalog,
// case-insensitively, returning the catalog's canonical casing.
func filterSuggestions(raw string, candidates []string) []string {
	canonical := make(map[string]string, len(candidates))
	for _, c := range candidates {
		canonical[strings.ToLower(strings.TrimSpace(c))] = c
	}

	var picks []string
	seen := map[string]struct{}{}
	for _, field := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == '\n' }) {
		key := strings.ToLower(strings.TrimSpace(field))
		if key == "" || key == "none" {
			continue
		}
		label, ok := canonical[key]
		if !ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		picks = append(picks, label)
	}
	return picks
}
