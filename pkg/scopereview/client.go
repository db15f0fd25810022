// Package scopereview delegates line-item scope comparison to an external
// text model. The engine owns the contract — structured payload in,
// structured verdict out — not the semantic comparison itself.
package scopereview

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
)

const defaultModel = "claude-haiku-4-5-20251001"

// Client compares a bill's line items against the vendor's recent history.
type Client interface {
	Compare(ctx context.Context, payload Payload) (*Verdict, error)
}

// Payload is the comparison context assembled by the engine.
type Payload struct {
	VendorName string           `json:"vendor_name"`
	Current    []Line           `json:"current"`
	History    []HistoricalBill `json:"history"`
}

// Line is a single line item in wire form.
type Line struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Amount      float64 `json:"amount"`
}

// HistoricalBill is one prior bill's line items.
type HistoricalBill struct {
	BillDate string  `json:"bill_date"`
	Total    float64 `json:"total"`
	Lines    []Line  `json:"lines"`
}

// Verdict is the structured judgment returned by the model.
type Verdict struct {
	Flagged         bool     `json:"flagged"`
	Rationale       string   `json:"rationale"`
	SuggestedImpact *float64 `json:"suggested_impact"`
}

const systemPrompt = `You audit vendor bills for scope drift: line items that describe
work or goods meaningfully different from what this vendor historically invoiced.
Compare the current bill's line items against the historical bills provided.
Respond with ONLY a JSON object: {"flagged": bool, "rationale": string,
"suggested_impact": number or null}. Set suggested_impact to the dollar amount
of the out-of-scope portion when you can estimate it, otherwise null.
Flag only clear semantic departures; price changes alone are handled elsewhere.`

// Option configures the client.
type Option func(*sdkClient)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *sdkClient) {
		c.model = model
	}
}

// WithSDKOptions appends raw SDK request options (test servers, retries).
func WithSDKOptions(opts ...option.RequestOption) Option {
	return func(c *sdkClient) {
		c.sdkOpts = append(c.sdkOpts, opts...)
	}
}

type sdkClient struct {
	client  sdk.Client
	model   string
	sdkOpts []option.RequestOption
}

// NewClient creates a scope-review client backed by the Anthropic SDK.
func NewClient(apiKey string, opts ...Option) Client {
	c := &sdkClient{model: defaultModel}
	for _, o := range opts {
		o(c)
	}
	c.client = sdk.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, c.sdkOpts...)...)
	return c
}

func (c *sdkClient) Compare(ctx context.Context, payload Payload) (*Verdict, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "scopereview: marshal payload")
	}

	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: 512,
		System:    []sdk.TextBlockParam{{Text: systemPrompt}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(string(body))),
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "scopereview: compare")
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return ParseVerdict(text.String())
}

// ParseVerdict extracts the verdict JSON from a model response, tolerating
// prose or fencing around the object.
func ParseVerdict(text string) (*Verdict, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, eris.Errorf("scopereview: no JSON object in response: %q", truncate(text, 120))
	}

	var v Verdict
	if err := json.Unmarshal([]byte(text[start:end+1]), &v); err != nil {
		return nil, eris.Wrap(err, "scopereview: unmarshal verdict")
	}
	return &v, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s…", s[:n])
}

// BuildPayload converts engine-side types into the wire payload, keeping at
// most maxHistory historical bills (most recent first).
func BuildPayload(vendorName string, current []Line, history []HistoricalBill, maxHistory int) Payload {
	if maxHistory > 0 && len(history) > maxHistory {
		history = history[:maxHistory]
	}
	return Payload{VendorName: vendorName, Current: current, History: history}
}
