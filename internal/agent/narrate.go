package agent

import (
	"context"
	"time"

	"github.com/plutus-ai/plutus/internal/llm"
)

const (
	narrativeMaxTokens = 400
	narrativeTimeout   = 15 * time.Second
)

// narrate asks the completion service to phrase an agent's findings for the
// user. Without a client, or when the call fails, the template fallback is
// used so a turn never depends on the service being up.
func narrate(ctx context.Context, client llm.Client, system, prompt, fallback string) string {
	if client == nil || prompt == "" {
		return fallback
	}

	nctx, cancel := context.WithTimeout(ctx, narrativeTimeout)
	defer cancel()

	resp, err := client.Complete(nctx, &llm.CompletionRequest{
		Messages: []llm.ChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   narrativeMaxTokens,
		Temperature: 0.4,
	})
	if err != nil || resp.Content == "" {
		return fallback
	}
	return resp.Content
}
