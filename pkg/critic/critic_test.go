package critic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"mcp-agent/agent_go/pkg/logger"
	"mcp-agent/agent_go/pkg/types"
)

type fixedModel struct{ response string }

func (m *fixedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.response}}}, nil
}

func (m *fixedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return m.response, nil
}

func TestIsTechnicalGate(t *testing.T) {
	assert.True(t, IsTechnical("implement the login form"))
	assert.True(t, IsTechnical("Create a script to build the bundle"))
	assert.False(t, IsTechnical("write a one-paragraph summary"))
}

func TestReviewAutoApprovesNonTechnical(t *testing.T) {
	c := New(&fixedModel{response: "should never be called"}, logger.CreateTestLogger("", "info"))
	out, err := c.Review(context.Background(), "summarize the findings", types.CriticInput{StepID: "s1"})
	require.NoError(t, err)
	assert.True(t, out.Approved)
}

func TestReviewParsesApprovedAndRejected(t *testing.T) {
	c := New(&fixedModel{response: "[APPROVED] looks solid"}, logger.CreateTestLogger("", "info"))
	out, err := c.Review(context.Background(), "implement the API", types.CriticInput{StepID: "s1"})
	require.NoError(t, err)
	assert.True(t, out.Approved)

	c2 := New(&fixedModel{response: "[REJECTED] missing error handling"}, logger.CreateTestLogger("", "info"))
	out2, err := c2.Review(context.Background(), "implement the API", types.CriticInput{StepID: "s1"})
	require.NoError(t, err)
	assert.False(t, out2.Approved)
	assert.Contains(t, out2.Feedback, "missing error handling")
}

func TestRejectionStreakStopsAtApproval(t *testing.T) {
	history := []types.FeedbackEntry{
		{StepID: "s1", Approved: false},
		{StepID: "s1", Approved: true},
		{StepID: "s1", Approved: false},
		{StepID: "s1", Approved: false},
	}
	assert.Equal(t, 2, RejectionStreak(history, "s1"))
}
