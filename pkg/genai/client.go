package genai

import (
	"context"
	"encoding/json"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client generates structured objects from research prompts.
type Client interface {
	// GenerateObject runs a single generation and decodes the model's
	// structured output into out. The schema constrains the output shape.
	GenerateObject(ctx context.Context, req Request, out any) (*Result, error)
}

// Request describes one structured generation.
type Request struct {
	// Instructions is the system prompt for this stage.
	Instructions string
	// Input is the user-visible task, usually naming the company under research.
	Input string
	// Schema constrains the output object.
	Schema Schema
	// WebSearch allows the model to consult the public web before answering.
	WebSearch bool
	// MaxTokens overrides the client default when > 0.
	MaxTokens int64
	Temperature *float64
}

// Schema is a JSON schema for the expected output object.
type Schema struct {
	Name        string
	Description string
	Properties  map[string]any
	Required    []string
}

// Result carries generation metadata back to the caller.
type Result struct {
	Model string
	Usage TokenUsage
}

// TokenUsage tracks token consumption for cost attribution.
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
}

// modelPricing holds per-million-token pricing for known models.
var modelPricing = map[string][2]float64{
	// model → {input $/MTok, output $/MTok}
	"claude-haiku-4-5-20251001":  {0.80, 4.00},
	"claude-sonnet-4-5-20250929": {3.00, 15.00},
}

// EstimateCost computes an estimated cost in USD for a model ID.
// Returns 0 for unknown models.
func (u TokenUsage) EstimateCost(model string) float64 {
	pricing, ok := modelPricing[model]
	if !ok {
		return 0
	}
	return (float64(u.InputTokens)/1e6)*pricing[0] + (float64(u.OutputTokens)/1e6)*pricing[1]
}

// LogCost logs token usage and estimated cost with structured zap fields.
func (u TokenUsage) LogCost(model, phase string) {
	zap.L().Info("cost attribution",
		zap.String("model", model),
		zap.String("phase", phase),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Float64("estimated_cost_usd", u.EstimateCost(model)),
	)
}

// Options configures the SDK-backed client.
type Options struct {
	APIKey    string
	Model     string
	MaxTokens int64
	// RequestsPerMinute throttles outbound calls. 0 disables throttling.
	RequestsPerMinute int
}

// sdkClient implements Client using the official anthropic-sdk-go.
type sdkClient struct {
	client    sdk.Client
	model     string
	maxTokens int64
	limiter   *rate.Limiter
}

// NewClient creates a generation client backed by the SDK.
func NewClient(opts Options) Client {
	if opts.Model == "" {
		opts.Model = "claude-sonnet-4-5-20250929"
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 8192
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60.0), 1)
	}
	return &sdkClient{
		client: sdk.NewClient(
			option.WithAPIKey(opts.APIKey),
		),
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		limiter:   limiter,
	}
}

func (c *sdkClient) GenerateObject(ctx context.Context, req Request, out any) (*Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "genai: rate limit wait")
	}

	maxTokens := c.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	emit := sdk.ToolParam{
		Name:        req.Schema.Name,
		Description: sdk.String(req.Schema.Description),
		InputSchema: sdk.ToolInputSchemaParam{
			Properties: req.Schema.Properties,
			Required:   req.Schema.Required,
		},
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: maxTokens,
		System: []sdk.TextBlockParam{
			{Text: req.Instructions},
		},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.Input)),
		},
		Tools: []sdk.ToolUnionParam{
			{OfTool: &emit},
		},
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	if req.WebSearch {
		// Forced tool choice and server tools are mutually exclusive, so
		// searching requests leave the choice to the model and the emit tool
		// is mandated through the system prompt instead.
		params.Tools = append(params.Tools, sdk.ToolUnionParam{
			OfWebSearchTool20250305: &sdk.WebSearchTool20250305Param{},
		})
	} else {
		params.ToolChoice = sdk.ToolChoiceUnionParam{
			OfTool: &sdk.ToolChoiceToolParam{Name: req.Schema.Name},
		}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "genai: create message")
	}

	var payload json.RawMessage
	for _, block := range msg.Content {
		if block.Type == "tool_use" && block.Name == req.Schema.Name {
			payload = block.Input
		}
	}
	if payload == nil {
		return nil, eris.Errorf("genai: model returned no %s output (stop reason %s)",
			req.Schema.Name, msg.StopReason)
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return nil, eris.Wrap(err, "genai: decode structured output")
	}

	return &Result{
		Model: string(msg.Model),
		Usage: TokenUsage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}, nil
}
