//go:build bedrock

package llm

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"talentscan/internal/domain"
	"talentscan/internal/infra/config"
	"talentscan/internal/infra/tracer"
)

const (
	defaultBedrockMaxTokens = 4096
	defaultBedrockRegion    = "us-east-1"
)

// bedrockErrorCodes maps Bedrock exception codes to domain sentinels.
var bedrockErrorCodes = map[string]error{
	"ThrottlingException":           domain.ErrRateLimit,
	"TooManyRequestsException":      domain.ErrRateLimit,
	"ServiceQuotaExceededException": domain.ErrRateLimit,
	"AccessDeniedException":         domain.ErrAuthInvalid,
	"UnrecognizedClientException":   domain.ErrAuthInvalid,
	"ExpiredTokenException":         domain.ErrAuthInvalid,
	"ResourceNotFoundException":     domain.ErrNotFound,
	"ModelNotReadyException":        domain.ErrProviderServer,
	"ModelTimeoutException":         domain.ErrProviderServer,
	"ServiceUnavailableException":   domain.ErrProviderServer,
	"InternalServerException":       domain.ErrProviderServer,
}

// converser is the slice of the Bedrock runtime client the adapter uses.
type converser interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockProvider calls a model through the Bedrock Converse API. Credentials
// come from the AWS default chain, not from api_key.
type BedrockProvider struct {
	name   string
	model  string
	client converser
	logger *slog.Logger
}

// NewBedrockProvider loads AWS credentials from the default chain and builds
// a Converse client for cfg.Region.
func NewBedrockProvider(ctx context.Context, cfg config.ProviderConfig, logger *slog.Logger) (*BedrockProvider, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cmp.Or(cfg.Region, defaultBedrockRegion)),
		awsconfig.WithHTTPClient(NewHTTPClient(cfg)),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newBedrockProviderWithClient(cfg.Name, cfg.Model, bedrockruntime.NewFromConfig(awsCfg), logger), nil
}

func newBedrockProviderWithClient(name, model string, client converser, logger *slog.Logger) *BedrockProvider {
	return &BedrockProvider{name: name, model: model, client: client, logger: logger}
}

// Chat implements domain.LLMProvider.
func (p *BedrockProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	req.Model = cmp.Or(req.Model, p.model)

	ctx, span := chatSpan(ctx, p.name, req.Model)
	defer span.End()

	out, err := p.client.Converse(ctx, toBedrockConverseInput(req))
	if err != nil {
		err = mapBedrockError(err)
		tracer.RecordError(span, err)
		return nil, err
	}

	resp := fromBedrockConverseOutput(out, req.Model)
	setUsageAttrs(span, resp.Usage)
	tracer.SetOK(span)
	logChatCompleted(p.logger, p.name, resp)
	return resp, nil
}

// Name implements domain.LLMProvider.
func (p *BedrockProvider) Name() string { return p.name }

func toBedrockConverseInput(req domain.ChatRequest) *bedrockruntime.ConverseInput {
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(req.Model),
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens: aws.Int32(int32(cmp.Or(max(req.MaxTokens, 0), defaultBedrockMaxTokens))),
		},
	}
	if req.Temperature > 0 {
		input.InferenceConfig.Temperature = aws.Float32(float32(req.Temperature))
	}

	for _, m := range req.Messages {
		if m.Role == domain.RoleSystem {
			input.System = append(input.System, &types.SystemContentBlockMemberText{Value: m.Content})
			continue
		}
		role := types.ConversationRoleUser
		if m.Role == domain.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		input.Messages = append(input.Messages, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
		})
	}
	return input
}

func fromBedrockConverseOutput(out *bedrockruntime.ConverseOutput, model string) *domain.ChatResponse {
	resp := &domain.ChatResponse{
		Model:     model,
		Message:   domain.Message{Role: domain.RoleAssistant},
		CreatedAt: time.Now(),
	}
	if u := out.Usage; u != nil {
		in, gen := int(aws.ToInt32(u.InputTokens)), int(aws.ToInt32(u.OutputTokens))
		resp.Usage = domain.Usage{PromptTokens: in, CompletionTokens: gen, TotalTokens: in + gen}
	}
	if msg, ok := out.Output.(*types.ConverseOutputMemberMessage); ok {
		var text strings.Builder
		for _, block := range msg.Value.Content {
			if t, ok := block.(*types.ContentBlockMemberText); ok {
				text.WriteString(t.Value)
			}
		}
		resp.Message.Content = text.String()
	}
	return resp
}

// mapBedrockError classifies SDK errors. Unknown server faults still count
// as provider outages so the breaker sees them.
func mapBedrockError(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return domain.WrapOp("bedrock", err)
	}

	code := apiErr.ErrorCode()
	if code == "ValidationException" && strings.Contains(err.Error(), "too long") {
		return fmt.Errorf("%w: %v", domain.ErrContextLength, err)
	}
	if sentinel, ok := bedrockErrorCodes[code]; ok {
		return fmt.Errorf("%w: %v", sentinel, err)
	}
	if apiErr.ErrorFault() == smithy.FaultServer {
		return fmt.Errorf("%w: %v", domain.ErrProviderServer, err)
	}
	return domain.WrapOp("bedrock", err)
}

func newBedrock(ctx context.Context, cfg config.ProviderConfig, logger *slog.Logger) (domain.LLMProvider, error) {
	p, err := NewBedrockProvider(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return p, nil
}
