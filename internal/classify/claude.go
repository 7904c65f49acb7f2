package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/glowstack/ingredient-cli/internal/cost"
	"github.com/glowstack/ingredient-cli/internal/retry"
	"github.com/glowstack/ingredient-cli/pkg/anthropic"
)

const classifySystemPrompt = `You are a cosmetic chemistry reference. Given one ingredient name from a skincare product label, respond with a valid JSON object:
{"display_name": "<common name>", "inci_name": "<INCI name>", "functions": ["<function>", ...], "safety_rating": <1-5>, "comedogenic_rating": <0-5>}
Functions are lowercase tags such as humectant, emollient, antioxidant, exfoliant, uv filter, preservative, fragrance, solvent, surfactant, emulsifier. safety_rating 5 means benign, 1 means concerning. Respond with JSON only.`

const classifyUserPrompt = `Ingredient name as printed on the label: %s`

// ClaudeClassifier implements Classifier on the Anthropic API. Calls are
// rate-limited so a large unlinked backlog cannot burst the provider, and
// transient API failures retry with backoff before the item is failed.
type ClaudeClassifier struct {
	client   anthropic.Client
	calc     *cost.Calculator
	limiter  *rate.Limiter
	model    string
	retryCfg retry.Config
}

// NewClaudeClassifier builds a classifier for the given model. ratePerSec
// bounds outbound calls; values <= 0 fall back to 5/s.
func NewClaudeClassifier(client anthropic.Client, calc *cost.Calculator, model string, ratePerSec float64) *ClaudeClassifier {
	if ratePerSec <= 0 {
		ratePerSec = 5
	}
	return &ClaudeClassifier{
		client:   client,
		calc:     calc,
		limiter:  rate.NewLimiter(rate.Limit(ratePerSec), 1),
		model:    model,
		retryCfg: retry.DefaultConfig(),
	}
}

// WithMaxRetries overrides the transient-failure attempt budget.
func (c *ClaudeClassifier) WithMaxRetries(attempts int) *ClaudeClassifier {
	if attempts > 0 {
		c.retryCfg.MaxAttempts = attempts
	}
	return c
}

// Classify asks the model for a draft record and validates it.
func (c *ClaudeClassifier) Classify(ctx context.Context, name string) (*Draft, error) {
	if strings.TrimSpace(name) == "" {
		return nil, eris.New("classify: empty ingredient name")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "classify: rate limit wait")
	}

	var resp *anthropic.MessageResponse
	err := retry.Do(ctx, c.retryCfg, func(ctx context.Context) error {
		var callErr error
		resp, callErr = c.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     c.model,
			MaxTokens: 256,
			System:    anthropic.BuildCachedSystemBlocks(classifySystemPrompt),
			Messages: []anthropic.Message{
				{Role: "user", Content: fmt.Sprintf(classifyUserPrompt, name)},
			},
		})
		return callErr
	})
	if err != nil {
		return nil, eris.Wrapf(err, "classify: %s", name)
	}

	draft, err := parseDraft(anthropic.ExtractText(resp))
	if err != nil {
		return nil, eris.Wrapf(err, "classify: %s", name)
	}

	draft.EstimatedCostUSD = c.calc.Claude(c.model,
		resp.Usage.InputTokens, resp.Usage.OutputTokens,
		resp.Usage.CacheCreationInputTokens, resp.Usage.CacheReadInputTokens,
	)
	resp.Usage.LogCost(c.model, "classify_ingredient", draft.EstimatedCostUSD)

	zap.L().Debug("classified ingredient",
		zap.String("name", name),
		zap.String("inci_name", draft.INCIName),
		zap.Strings("functions", draft.Functions),
	)

	return draft, nil
}

// parseDraft decodes and sanity-checks the model's JSON. Ratings are clamped
// into range; a missing display name falls back to the INCI name.
func parseDraft(text string) (*Draft, error) {
	text = cleanJSON(text)

	var draft Draft
	if err := json.Unmarshal([]byte(text), &draft); err != nil {
		return nil, eris.Wrap(err, "unparseable draft")
	}

	draft.DisplayName = strings.TrimSpace(draft.DisplayName)
	draft.INCIName = strings.TrimSpace(draft.INCIName)
	if draft.DisplayName == "" {
		draft.DisplayName = draft.INCIName
	}
	if draft.INCIName == "" {
		draft.INCIName = draft.DisplayName
	}
	if draft.DisplayName == "" {
		return nil, eris.New("draft has no name")
	}

	draft.SafetyRating = clamp(draft.SafetyRating, 1, 5)
	draft.ComedogenicRating = clamp(draft.ComedogenicRating, 0, 5)

	return &draft, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// cleanJSON strips markdown fences and surrounding prose from a model reply,
// leaving the outermost JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
