package classify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/glowstack/ingredient-cli/internal/cost"
	"github.com/glowstack/ingredient-cli/internal/retry"
	"github.com/glowstack/ingredient-cli/pkg/anthropic"
)

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

const testModel = "claude-haiku-4-5-20251001"

func newTestClassifier(client anthropic.Client) *ClaudeClassifier {
	return NewClaudeClassifier(client, cost.NewCalculator(cost.DefaultRates()), testModel, 100)
}

func TestClassify_ValidDraft(t *testing.T) {
	ctx := context.Background()
	client := &mockAnthropicClient{}
	client.On("CreateMessage", ctx, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(&anthropic.MessageResponse{
			Content: []anthropic.ContentBlock{{Type: "text", Text: `{"display_name": "Niacinamide", "inci_name": "Niacinamide", "functions": ["brightening", "barrier repair"], "safety_rating": 5, "comedogenic_rating": 0}`}},
			Usage:   anthropic.TokenUsage{InputTokens: 500, OutputTokens: 60},
		}, nil).Once()

	draft, err := newTestClassifier(client).Classify(ctx, "Niacinamide")

	require.NoError(t, err)
	assert.Equal(t, "Niacinamide", draft.DisplayName)
	assert.Equal(t, []string{"brightening", "barrier repair"}, draft.Functions)
	assert.Equal(t, 5, draft.SafetyRating)
	assert.Greater(t, draft.EstimatedCostUSD, 0.0)
	client.AssertExpectations(t)
}

func TestClassify_APIFailure(t *testing.T) {
	ctx := context.Background()
	client := &mockAnthropicClient{}
	client.On("CreateMessage", ctx, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(nil, assert.AnError).Once()

	draft, err := newTestClassifier(client).Classify(ctx, "Mystery Extract")

	assert.Error(t, err)
	assert.Nil(t, draft)
}

func TestClassify_RetriesTransientFailure(t *testing.T) {
	ctx := context.Background()
	client := &mockAnthropicClient{}
	client.On("CreateMessage", ctx, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(nil, retry.NewTransientError(assert.AnError, 529)).Once()
	client.On("CreateMessage", ctx, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(&anthropic.MessageResponse{
			Content: []anthropic.ContentBlock{{Type: "text", Text: `{"display_name": "Squalane", "inci_name": "Squalane", "safety_rating": 5, "comedogenic_rating": 1}`}},
			Usage:   anthropic.TokenUsage{InputTokens: 400, OutputTokens: 40},
		}, nil).Once()

	c := newTestClassifier(client)
	c.retryCfg.InitialBackoff = time.Millisecond

	draft, err := c.Classify(ctx, "Squalane")
	require.NoError(t, err)
	assert.Equal(t, "Squalane", draft.DisplayName)
	client.AssertExpectations(t)
}

func TestClassify_EmptyName(t *testing.T) {
	_, err := newTestClassifier(&mockAnthropicClient{}).Classify(context.Background(), "  ")
	assert.Error(t, err)
}

func TestParseDraft_MarkdownFence(t *testing.T) {
	draft, err := parseDraft("```json\n{\"display_name\": \"Squalane\", \"inci_name\": \"Squalane\", \"functions\": [\"emollient\"], \"safety_rating\": 5, \"comedogenic_rating\": 1}\n```")

	require.NoError(t, err)
	assert.Equal(t, "Squalane", draft.DisplayName)
}

func TestParseDraft_RatingsClamped(t *testing.T) {
	draft, err := parseDraft(`{"display_name": "X", "inci_name": "X", "safety_rating": 9, "comedogenic_rating": -2}`)

	require.NoError(t, err)
	assert.Equal(t, 5, draft.SafetyRating)
	assert.Equal(t, 0, draft.ComedogenicRating)
}

func TestParseDraft_FallbackNames(t *testing.T) {
	draft, err := parseDraft(`{"inci_name": "Aqua", "safety_rating": 5, "comedogenic_rating": 0}`)
	require.NoError(t, err)
	assert.Equal(t, "Aqua", draft.DisplayName)

	_, err = parseDraft(`{"safety_rating": 5}`)
	assert.Error(t, err)
}

func TestParseDraft_NotJSON(t *testing.T) {
	_, err := parseDraft("I cannot classify that ingredient.")
	assert.Error(t, err)
}
