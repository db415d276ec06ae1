//go:build bedrock

package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talentscan/internal/domain"
)

// converseFunc adapts a function to the converser interface.
type converseFunc func(context.Context, *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error)

func (f converseFunc) Converse(ctx context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	return f(ctx, in)
}

func converseReply(blocks ...types.ContentBlock) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role:    types.ConversationRoleAssistant,
			Content: blocks,
		}},
		Usage: &types.TokenUsage{InputTokens: aws.Int32(40), OutputTokens: aws.Int32(12)},
	}
}

func TestBedrockChat(t *testing.T) {
	var got *bedrockruntime.ConverseInput
	client := converseFunc(func(_ context.Context, in *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error) {
		got = in
		return converseReply(
			&types.ContentBlockMemberText{Value: `{"headline": `},
			&types.ContentBlockMemberText{Value: `"Go developer"}`},
		), nil
	})

	p := newBedrockProviderWithClient("bedrock", "anthropic.claude-3-haiku", client, newTestLogger())
	resp, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "Answer in JSON."},
			{Role: domain.RoleUser, Content: "Summarize octocat"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, `{"headline": "Go developer"}`, resp.Message.Content)
	assert.Equal(t, 52, resp.Usage.TotalTokens)
	assert.Equal(t, "anthropic.claude-3-haiku", resp.Model)
	assert.Equal(t, "anthropic.claude-3-haiku", aws.ToString(got.ModelId))
	assert.EqualValues(t, defaultBedrockMaxTokens, aws.ToInt32(got.InferenceConfig.MaxTokens))
	assert.Nil(t, got.InferenceConfig.Temperature)
	assert.Len(t, got.System, 1)
}

func TestToBedrockConverseInput(t *testing.T) {
	in := toBedrockConverseInput(domain.ChatRequest{
		Model: "meta.llama3",
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "Be terse"},
			{Role: domain.RoleUser, Content: "Hello"},
			{Role: domain.RoleAssistant, Content: "Hi"},
		},
		MaxTokens:   1024,
		Temperature: 0.5,
	})

	require.Len(t, in.System, 1)
	require.Len(t, in.Messages, 2)
	assert.Equal(t, types.ConversationRoleUser, in.Messages[0].Role)
	assert.Equal(t, types.ConversationRoleAssistant, in.Messages[1].Role)
	assert.EqualValues(t, 1024, aws.ToInt32(in.InferenceConfig.MaxTokens))
	assert.InDelta(t, 0.5, aws.ToFloat32(in.InferenceConfig.Temperature), 1e-6)
}

type apiError struct {
	code  string
	fault smithy.ErrorFault
}

func (e *apiError) Error() string                 { return e.code + ": " + e.ErrorMessage() }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return "input is too long for model" }
func (e *apiError) ErrorFault() smithy.ErrorFault { return e.fault }

func TestBedrockErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{&apiError{code: "ThrottlingException"}, domain.ErrRateLimit},
		{&apiError{code: "ServiceQuotaExceededException"}, domain.ErrRateLimit},
		{&apiError{code: "AccessDeniedException"}, domain.ErrAuthInvalid},
		{&apiError{code: "ValidationException", fault: smithy.FaultClient}, domain.ErrContextLength},
		{&apiError{code: "InternalServerException", fault: smithy.FaultServer}, domain.ErrProviderServer},
		{&apiError{code: "ModelTimeoutException"}, domain.ErrProviderServer},
		{&apiError{code: "BrandNewException", fault: smithy.FaultServer}, domain.ErrProviderServer},
		{&apiError{code: "ResourceNotFoundException"}, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.err.(*apiError).code, func(t *testing.T) {
			client := converseFunc(func(context.Context, *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error) {
				return nil, tt.err
			})
			p := newBedrockProviderWithClient("bedrock", "m", client, newTestLogger())
			_, err := p.Chat(context.Background(), domain.ChatRequest{Messages: domain.UserPrompt("x")})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBedrockUnclassifiedError(t *testing.T) {
	err := mapBedrockError(errors.New("dial tcp: no route to host"))
	assert.ErrorContains(t, err, "bedrock: dial tcp")
	assert.NotErrorIs(t, err, domain.ErrProviderServer)
}
