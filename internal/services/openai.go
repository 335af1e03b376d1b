package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/sashabaranov/go-openai"

	"race-crew-network/internal/models"
)

const (
	defaultModel = "gpt-4o-mini"

	extractMaxTokens  = 4096
	discoverMaxTokens = 1024

	// Raw model output is logged at most this long on parse failures.
	rawLogLimit = 500
)

const extractionPrompt = `You are a data extraction assistant. Extract regatta/sailing event information from the provided text and return a JSON array.

Each object in the array must have these fields:
- "name": string (event name)
- "boat_class": string or null (the one-design or racing class, e.g. "Thistle", "J/24")
- "location": string (city, yacht club, or venue)
- "location_url": string or null (URL for the venue if mentioned)
- "start_date": string in "YYYY-MM-DD" format
- "end_date": string in "YYYY-MM-DD" format or null (if single-day event)
- "notes": string or null (any extra details like contacts, etc.)
- "detail_url": string or null (URL to the regatta's own detail/information page, NOT the venue link)

Rules:
- The year is %d unless the text explicitly states otherwise.
- If a date says only "Mar 15", interpret as %d-03-15.
- If a date range says "Mar 15-16", set start_date to the 15th and end_date to the 16th.
- If only one date is given, set end_date to null.
- If the boat class is not mentioned, set boat_class to null.
- If the text contains a link to an individual regatta's event page or information page, include it as detail_url. This is NOT the venue/location URL.
- Return ONLY the JSON array, no markdown fences, no explanation.
- If no events are found, return an empty array: []

Text to extract from:
%s`

const documentDiscoveryPrompt = `You are a document link extraction assistant for sailing regattas. Given the content of a regatta detail page, find links to official documents.

Look for these document types:
- "NOR": Notice of Race - usually a PDF link (.pdf)
- "SI": Sailing Instructions - usually a PDF link (.pdf)
- "WWW": The regatta's own website or event page. This includes:
  - Registration/entry portals on known regatta platforms (theclubspot.com, regattanetwork.com, yachtscoring.com)
  - Links labeled "Register", "Registration", "Entry", "Sign up", or "Event page"
  - Bare URLs to regatta management platforms
  - Any link that leads to a page specifically about THIS regatta (not the hosting club's general site)

Return a JSON array of objects with these fields:
- "doc_type": one of "NOR", "SI", "WWW"
- "url": the full URL to the document or website
- "label": a short descriptive label (e.g. "Notice of Race", "Sailing Instructions", "Regatta website")

Rules:
- If the page links to theclubspot.com/regatta/*, regattanetwork.com/event/*, or yachtscoring.com - that is a WWW link.
- NOR and SI are typically PDF files (.pdf) but may be other document formats.
- Do NOT include: the source page URL itself, calendar export links (.ics), social media links, or the hosting club's general website.
- Return ONLY the JSON array, no markdown fences, no explanation.
- If no documents are found, return an empty array: []

Regatta name: %s
Source page URL: %s

Page content:
%s`

const documentDeepDiscoveryPrompt = `You are a document link extraction assistant for sailing regattas. Given the content of a regatta website or event page, find links to official documents.

Look for these document types ONLY:
- "NOR": Notice of Race - usually a PDF link (.pdf)
- "SI": Sailing Instructions - usually a PDF link (.pdf)

Return a JSON array of objects with these fields:
- "doc_type": one of "NOR", "SI"
- "url": the full URL to the document
- "label": a short descriptive label (e.g. "Notice of Race", "Sailing Instructions")

Rules:
- NOR and SI are typically PDF files (.pdf) but may be other document formats.
- Only include links you are confident are NOR or SI.
- Do NOT include website links, registration links, or other document types.
- Return ONLY the JSON array, no markdown fences, no explanation.
- If no documents are found, return an empty array: []

Regatta name: %s
Source page URL: %s

Page content:
%s`

// ExtractionClient sends page content to the model provider and parses the
// structured JSON-array responses for event extraction and document
// discovery.
type ExtractionClient struct {
	client *openai.Client
	model  string
}

// NewExtractionClient creates a client for the given API key. An empty key
// is a configuration error, surfaced verbatim and never retried.
func NewExtractionClient(apiKey, model string) (*ExtractionClient, error) {
	if apiKey == "" {
		return nil, ErrAINotConfigured
	}
	if model == "" {
		model = defaultModel
	}
	return &ExtractionClient{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// NewExtractionClientWithBaseURL creates a client pointed at an alternate
// provider endpoint. Used by tests with a stub server.
func NewExtractionClientWithBaseURL(apiKey, model, baseURL string) (*ExtractionClient, error) {
	c, err := NewExtractionClient(apiKey, model)
	if err != nil {
		return nil, err
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	c.client = openai.NewClientWithConfig(cfg)
	return c, nil
}

// ExtractRegattas extracts candidate regattas from free text. Bare
// month/day dates are interpreted against the reference year per the prompt
// contract.
func (c *ExtractionClient) ExtractRegattas(ctx context.Context, content string, year int) ([]models.ExtractedEvent, error) {
	prompt := fmt.Sprintf(extractionPrompt, year, year, content)

	raw, err := c.complete(ctx, prompt, extractMaxTokens)
	if err != nil {
		return nil, err
	}

	var events []models.ExtractedEvent
	if err := parseJSONArray(raw, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// DiscoverDocuments finds NOR/SI/WWW links on a regatta detail page.
func (c *ExtractionClient) DiscoverDocuments(ctx context.Context, content, regattaName, sourceURL string) ([]models.DiscoveredDocument, error) {
	prompt := fmt.Sprintf(documentDiscoveryPrompt, regattaName, sourceURL, content)
	return c.discover(ctx, prompt, false)
}

// DiscoverDocumentsDeep finds NOR/SI links only, for the second-level crawl
// of a regatta's own website.
func (c *ExtractionClient) DiscoverDocumentsDeep(ctx context.Context, content, regattaName, sourceURL string) ([]models.DiscoveredDocument, error) {
	prompt := fmt.Sprintf(documentDeepDiscoveryPrompt, regattaName, sourceURL, content)
	return c.discover(ctx, prompt, true)
}

func (c *ExtractionClient) discover(ctx context.Context, prompt string, deepPass bool) ([]models.DiscoveredDocument, error) {
	raw, err := c.complete(ctx, prompt, discoverMaxTokens)
	if err != nil {
		return nil, err
	}

	var docs []models.DiscoveredDocument
	if err := parseJSONArray(raw, &docs); err != nil {
		return nil, err
	}

	// The model occasionally strays from the allowed type set; drop
	// anything out of contract rather than failing the pass.
	kept := docs[:0]
	for _, d := range docs {
		if d.URL == "" || !models.ValidateDocType(d.DocType) {
			continue
		}
		if deepPass && d.DocType == models.DocTypeWWW {
			continue
		}
		kept = append(kept, d)
	}
	return kept, nil
}

// complete performs one chat completion and returns the raw text block.
// All transport, rate-limit and provider-status failures map to the uniform
// connectivity category.
func (c *ExtractionClient) complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			if apiErr.HTTPStatusCode == 429 {
				return "", fmt.Errorf("%w: rate limit exceeded, try again shortly", ErrConnectivity)
			}
			return "", fmt.Errorf("%w: provider status %d", ErrConnectivity, apiErr.HTTPStatusCode)
		}
		return "", fmt.Errorf("%w: %v", ErrConnectivity, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrConnectivity)
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// parseJSONArray parses a model response expected to be a bare JSON array,
// tolerating a markdown code fence wrapper. Non-JSON fails with ErrParse
// (raw text logged truncated); valid JSON that is not an array fails with
// ErrBadFormat.
func parseJSONArray(raw string, out any) error {
	text := stripCodeFences(raw)

	var probe any
	if err := json.Unmarshal([]byte(text), &probe); err != nil {
		log.Printf("failed to parse AI response as JSON: %s", truncateText(text, rawLogLimit))
		return ErrParse
	}
	if _, ok := probe.([]any); !ok {
		return ErrBadFormat
	}

	// An array of the wrong element shape is still a format failure.
	if err := json.Unmarshal([]byte(text), out); err != nil {
		log.Printf("AI response array has unexpected shape: %s", truncateText(text, rawLogLimit))
		return fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	return nil
}

// stripCodeFences removes a leading triple-backtick line and any fence-only
// lines from a fenced response.
func stripCodeFences(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	lines := strings.Split(text, "\n")
	var kept []string
	for _, ln := range lines[1:] {
		if strings.TrimSpace(ln) == "```" {
			continue
		}
		kept = append(kept, ln)
	}
	return strings.Join(kept, "\n")
}
