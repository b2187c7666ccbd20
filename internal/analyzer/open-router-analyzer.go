package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/leaseledger/lease-ledger-api/internal/models"
	"github.com/leaseledger/lease-ledger-api/internal/utils"
)

// ErrExtraction marks a response in which no structured field set could be
// located. It must surface as a failed intake, never as a partial record.
var ErrExtraction = errors.New("field extraction produced no usable result")

// Longer documents are truncated, not rejected. Known precision/recall
// tradeoff on very long leases.
const maxTextLength = 60000

const openRouterURL = "https://openrouter.ai/api/v1/chat/completions"

// FieldExtractor extracts structured lease fields from document text. The
// known completed location names let the model normalize a new document's
// location reference to an existing name or abbreviation.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, text string, knownLocations []string) (*models.FieldSet, error)
}

type openRouterAnalyzer struct {
	apiKey  string
	model   string
	baseURL string
	logger  *utils.Logger
	client  *http.Client
}

type openRouterRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openRouterResponse struct {
	Choices []choice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

type choice struct {
	Message message `json:"message"`
}

func NewOpenRouterAnalyzer(apiKey, model string, logger *utils.Logger) FieldExtractor {
	return &openRouterAnalyzer{
		apiKey:  apiKey,
		model:   model,
		baseURL: openRouterURL,
		logger:  logger,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (a *openRouterAnalyzer) ExtractFields(ctx context.Context, text string, knownLocations []string) (*models.FieldSet, error) {
	if len(text) > maxTextLength {
		text = text[:maxTextLength]
	}

	prompt := fmt.Sprintf(`Extract the lease information below from the document and respond ONLY with a valid JSON object (no markdown, no code blocks):
{
  "location_name": "location name; map it exactly to a name or abbreviation from this list if possible: [%s]",
  "location_address": "full address as string",
  "start_date": "lease start date as YYYY-MM-DD or empty string",
  "end_date": "lease end date as YYYY-MM-DD or empty string",
  "cooperation_type": "fixed cost lease or revenue share",
  "payment_terms": "billing cadence: monthly, quarterly, yearly, etc",
  "monthly_cost_amount": "total amount or revenue share percentage as string",
  "security_deposit_amount": "as string",
  "last_invoice_due": "last invoice due date as YYYY-MM-DD or empty string",
  "last_invoice_amount": "as string",
  "document_date": "the date the document itself asserts, as YYYY-MM-DD",
  "document_type": "agreement or invoice",
  "additional_info": { "any other notable terms as a single-level JSON object": "..." }
}

Document text:
%s`, strings.Join(knownLocations, ", "), text)

	reqBody := openRouterRequest{
		Model: a.model,
		Messages: []message{
			{
				Role:    "user",
				Content: prompt,
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		a.logger.Error("OpenRouter API error", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("OpenRouter API returned status %d", resp.StatusCode)
	}

	var openRouterResp openRouterResponse
	if err := json.Unmarshal(body, &openRouterResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if openRouterResp.Error != nil {
		return nil, fmt.Errorf("OpenRouter API error: %s", openRouterResp.Error.Message)
	}

	if len(openRouterResp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", ErrExtraction)
	}

	content := openRouterResp.Choices[0].Message.Content

	var fields models.FieldSet
	if err := json.Unmarshal([]byte(content), &fields); err != nil {
		// Models often wrap the answer in a markdown code block
		content = extractJSON(content)
		if err := json.Unmarshal([]byte(content), &fields); err != nil {
			a.logger.Error("Failed to parse field extraction response", "content", content)
			return nil, fmt.Errorf("%w: response is not valid JSON", ErrExtraction)
		}
	}

	if strings.TrimSpace(fields.LocationName) == "" {
		return nil, fmt.Errorf("%w: no location name in response", ErrExtraction)
	}

	return &fields, nil
}

// extractJSON attempts to extract JSON from markdown code blocks
func extractJSON(content string) string {
	if len(content) > 7 && content[:3] == "```" {
		start := 0
		end := len(content)

		// Find first newline after opening ```
		for i := 3; i < len(content); i++ {
			if content[i] == '\n' {
				start = i + 1
				break
			}
		}

		// Find closing ```
		for i := len(content) - 1; i >= 0; i-- {
			if i >= 2 && content[i-2:i+1] == "```" {
				end = i - 2
				break
			}
		}

		if start < end {
			content = content[start:end]
		}
	}

	return content
}
