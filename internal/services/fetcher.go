package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const (
	// DefaultContentBudget caps the flattened text handed to the model.
	DefaultContentBudget = 20000

	// DefaultFetchTimeout bounds every outbound page fetch.
	DefaultFetchTimeout = 15 * time.Second

	fetchUserAgent = "RaceCrewNetwork/1.0"
	maxBodyBytes   = 2 << 20
)

// Subtrees dropped before flattening a page to text.
var strippedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"nav":      true,
	"footer":   true,
	"header":   true,
}

// Attributes that mark framework hydration payloads worth surfacing to the
// model (Inertia-style data-page, generic data-props).
var hydrationMarkers = []string{"data-page", "data-props"}

// PageFetcher retrieves a URL and flattens it to plain text the extraction
// model can work with. HTML pages keep their link targets (anchors are
// rewritten to "text [absolute-url]") and any schema.org Event JSON-LD or
// JSON-bearing data attributes are summarized ahead of the body text.
type PageFetcher struct {
	httpClient      *http.Client
	guard           *SSRFGuard
	maxContentChars int
}

// NewPageFetcher creates a fetcher whose HTTP client re-validates every
// redirect hop against the SSRF guard.
func NewPageFetcher(guard *SSRFGuard, timeout time.Duration, maxContentChars int) *PageFetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	if maxContentChars <= 0 {
		maxContentChars = DefaultContentBudget
	}
	return &PageFetcher{
		httpClient: &http.Client{
			Timeout:       timeout,
			CheckRedirect: guard.CheckRedirect,
		},
		guard:           guard,
		maxContentChars: maxContentChars,
	}
}

// Fetch retrieves a URL and returns its plain-text content, truncated to the
// content budget. The URL must be http/https and pass the SSRF guard.
func (f *PageFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	parsed, err := f.guard.CheckURL(rawURL)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", fetchUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("could not fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("could not fetch URL: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	text := string(body)
	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		text = f.flattenHTML(text, parsed)
	}

	return truncateText(text, f.maxContentChars), nil
}

// flattenHTML converts an HTML document to plain text, prepending structured
// data summaries. A page that fails to parse is used as-is.
func (f *PageFetcher) flattenHTML(page string, base *url.URL) string {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return page
	}

	var summaries []string
	if s := extractJSONLDEvents(doc); s != "" {
		summaries = append(summaries, s)
	}
	summaries = append(summaries, extractEmbeddedData(doc)...)

	var sb strings.Builder
	flattenNode(doc, base, &sb)
	text := strings.TrimSpace(sb.String())

	if len(summaries) > 0 {
		return strings.Join(summaries, "\n") + "\n\n" + text
	}
	return text
}

// extractJSONLDEvents collects schema.org Event objects from JSON-LD script
// blocks, unwrapping one level of @graph. Malformed blocks are skipped.
func extractJSONLDEvents(doc *html.Node) string {
	var events []map[string]any

	walkNodes(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.Data != "script" {
			return true
		}
		if nodeAttr(n, "type") != "application/ld+json" {
			return true
		}

		var data any
		if err := json.Unmarshal([]byte(nodeText(n)), &data); err != nil {
			return true
		}

		items, ok := data.([]any)
		if !ok {
			items = []any{data}
		}
		for _, raw := range items {
			item, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if item["@type"] == "Event" {
				events = append(events, item)
			}
			if graph, ok := item["@graph"].([]any); ok {
				for _, g := range graph {
					if node, ok := g.(map[string]any); ok && node["@type"] == "Event" {
						events = append(events, node)
					}
				}
			}
		}
		return true
	})

	if len(events) == 0 {
		return ""
	}

	lines := []string{"Structured event data found on page:"}
	for _, ev := range events {
		locName := ""
		if loc, ok := ev["location"].(map[string]any); ok {
			locName, _ = loc["name"].(string)
		}
		name, _ := ev["name"].(string)
		if name == "" {
			name = "Unknown"
		}
		start, _ := ev["startDate"].(string)
		end, _ := ev["endDate"].(string)
		lines = append(lines, fmt.Sprintf("- %s | %s - %s | %s", name, start, end, locName))
	}
	return strings.Join(lines, "\n")
}

// extractEmbeddedData surfaces JSON-looking data-* attribute values found on
// the body element and on any element carrying a hydration marker attribute.
func extractEmbeddedData(doc *html.Node) []string {
	var lines []string
	seen := map[string]bool{}

	add := func(key, value string) {
		trimmed := strings.TrimSpace(value)
		if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
			return
		}
		if !json.Valid([]byte(trimmed)) {
			return
		}
		line := fmt.Sprintf("Embedded page data [%s]: %s", key, truncateText(trimmed, 2000))
		if !seen[line] {
			seen[line] = true
			lines = append(lines, line)
		}
	}

	walkNodes(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		if n.Data == "body" {
			for _, attr := range n.Attr {
				if strings.HasPrefix(attr.Key, "data-") {
					add(attr.Key, attr.Val)
				}
			}
			return true
		}
		for _, marker := range hydrationMarkers {
			if v := nodeAttr(n, marker); v != "" {
				add(marker, v)
			}
		}
		return true
	})

	return lines
}

// flattenNode writes the visible text of a subtree, one chunk per line.
// Anchors become "text [absolute-url]" so link targets survive flattening.
func flattenNode(n *html.Node, base *url.URL, sb *strings.Builder) {
	if n.Type == html.ElementNode && strippedTags[n.Data] {
		return
	}

	if n.Type == html.ElementNode && n.Data == "a" {
		text := strings.TrimSpace(nodeText(n))
		abs := resolveLink(base, nodeAttr(n, "href"))
		switch {
		case text != "" && abs != "":
			sb.WriteString(text + " [" + abs + "]\n")
		case text != "":
			sb.WriteString(text + "\n")
		case abs != "":
			sb.WriteString("[" + abs + "]\n")
		}
		return
	}

	if n.Type == html.TextNode {
		if trimmed := strings.TrimSpace(n.Data); trimmed != "" {
			sb.WriteString(trimmed + "\n")
		}
		return
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		flattenNode(c, base, sb)
	}
}

// resolveLink resolves a href against the page URL, returning "" for
// anything that is not an http/https target.
func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	return abs.String()
}

// walkNodes visits every node depth-first. The visitor returns false to
// stop descending into a subtree.
func walkNodes(n *html.Node, visit func(*html.Node) bool) {
	if !visit(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkNodes(c, visit)
	}
}

// nodeText returns the concatenated text content of a node's subtree.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	walkNodes(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
		return true
	})
	return sb.String()
}

// nodeAttr returns the value of a named attribute, or "".
func nodeAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// truncateText cuts a string to max bytes without splitting a UTF-8 rune at
// the cut point. Invalid bytes elsewhere in the text pass through untouched.
func truncateText(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for i := 0; i < utf8.UTFMax-1 && cut > 0 && s[cut]&0xC0 == 0x80; i++ {
		cut--
	}
	return s[:cut]
}
