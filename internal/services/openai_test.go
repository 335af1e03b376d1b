package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"race-crew-network/internal/models"
)

func TestStripCodeFences(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain JSON untouched",
			input:    `[{"name": "Test"}]`,
			expected: `[{"name": "Test"}]`,
		},
		{
			name:     "json fence",
			input:    "```json\n[{\"name\": \"Test\"}]\n```",
			expected: `[{"name": "Test"}]`,
		},
		{
			name:     "bare fence",
			input:    "```\n[{\"name\": \"Test\"}]\n```",
			expected: `[{"name": "Test"}]`,
		},
		{
			name:     "surrounding whitespace",
			input:    "  \n [{\"a\": 1}] \n  ",
			expected: `[{"a": 1}]`,
		},
		{
			name:     "multiline fenced array",
			input:    "```json\n[\n  {\"a\": 1}\n]\n```",
			expected: "[\n  {\"a\": 1}\n]",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := stripCodeFences(tc.input); got != tc.expected {
				t.Errorf("stripCodeFences() = %q, want %q", got, tc.expected)
			}
		})
	}
}

func TestParseJSONArray(t *testing.T) {
	t.Run("fenced and unfenced parse identically", func(t *testing.T) {
		var fenced, plain []models.ExtractedEvent
		if err := parseJSONArray("```json\n[{\"name\": \"Spring Regatta\"}]\n```", &fenced); err != nil {
			t.Fatalf("fenced parse failed: %v", err)
		}
		if err := parseJSONArray(`[{"name": "Spring Regatta"}]`, &plain); err != nil {
			t.Fatalf("plain parse failed: %v", err)
		}
		if !reflect.DeepEqual(fenced, plain) {
			t.Errorf("fenced %+v != plain %+v", fenced, plain)
		}
	})

	t.Run("empty array", func(t *testing.T) {
		var out []models.ExtractedEvent
		if err := parseJSONArray("[]", &out); err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		if len(out) != 0 {
			t.Errorf("expected empty slice, got %+v", out)
		}
	})

	t.Run("non-JSON fails with parse error", func(t *testing.T) {
		var out []models.ExtractedEvent
		err := parseJSONArray("not json at all", &out)
		if !errors.Is(err, ErrParse) {
			t.Errorf("expected ErrParse, got %v", err)
		}
	})

	t.Run("non-array JSON fails with format error", func(t *testing.T) {
		var out []models.ExtractedEvent
		err := parseJSONArray(`{"a": 1}`, &out)
		if !errors.Is(err, ErrBadFormat) {
			t.Errorf("expected ErrBadFormat, got %v", err)
		}
	})

	t.Run("array of wrong element shape fails with format error", func(t *testing.T) {
		var out []models.ExtractedEvent
		err := parseJSONArray(`["foo", "bar"]`, &out)
		if !errors.Is(err, ErrBadFormat) {
			t.Errorf("expected ErrBadFormat, got %v", err)
		}
	})
}

func TestNewExtractionClientRequiresKey(t *testing.T) {
	if _, err := NewExtractionClient("", ""); !errors.Is(err, ErrAINotConfigured) {
		t.Errorf("expected ErrAINotConfigured, got %v", err)
	}
}

// stubProvider serves a canned chat-completion response.
func stubProvider(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			fmt.Fprintf(w, `{"error": {"message": "provider error", "type": "server_error"}}`)
			return
		}
		resp := map[string]any{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"choices": []map[string]any{
				{
					"index":         0,
					"message":       map[string]string{"role": "assistant", "content": content},
					"finish_reason": "stop",
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func newStubbedClient(t *testing.T, srv *httptest.Server) *ExtractionClient {
	t.Helper()
	client, err := NewExtractionClientWithBaseURL("test-key", "gpt-4o-mini", srv.URL+"/v1")
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client
}

func TestExtractRegattas(t *testing.T) {
	srv := stubProvider(t, http.StatusOK,
		`[{"name": "Spring Regatta", "boat_class": "Thistle", "location": "Port YC", "start_date": "2026-03-15", "end_date": "2026-03-16"}]`)
	defer srv.Close()

	events, err := newStubbedClient(t, srv).ExtractRegattas(context.Background(), "Spring Regatta, March 15-16, Port YC", 2026)
	if err != nil {
		t.Fatalf("ExtractRegattas() error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Name != "Spring Regatta" || ev.StartDate != "2026-03-15" || ev.EndDate != "2026-03-16" {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.BoatClass != "Thistle" || ev.Location != "Port YC" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestExtractRegattasFencedResponse(t *testing.T) {
	srv := stubProvider(t, http.StatusOK, "```json\n[{\"name\": \"Fenced Cup\", \"start_date\": \"2026-05-01\"}]\n```")
	defer srv.Close()

	events, err := newStubbedClient(t, srv).ExtractRegattas(context.Background(), "content", 2026)
	if err != nil {
		t.Fatalf("ExtractRegattas() error: %v", err)
	}
	if len(events) != 1 || events[0].Name != "Fenced Cup" {
		t.Errorf("unexpected events: %+v", events)
	}
}

func TestExtractRegattasErrorCategories(t *testing.T) {
	testCases := []struct {
		name    string
		status  int
		content string
		wantErr error
	}{
		{"rate limit is connectivity", http.StatusTooManyRequests, "", ErrConnectivity},
		{"server error is connectivity", http.StatusInternalServerError, "", ErrConnectivity},
		{"prose response is parse error", http.StatusOK, "I could not find any regattas.", ErrParse},
		{"object response is format error", http.StatusOK, `{"events": []}`, ErrBadFormat},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := stubProvider(t, tc.status, tc.content)
			defer srv.Close()

			_, err := newStubbedClient(t, srv).ExtractRegattas(context.Background(), "content", 2026)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestExtractRegattasConnectionRefused(t *testing.T) {
	srv := stubProvider(t, http.StatusOK, "[]")
	srv.Close() // refuse connections

	_, err := newStubbedClient(t, srv).ExtractRegattas(context.Background(), "content", 2026)
	if !errors.Is(err, ErrConnectivity) {
		t.Errorf("expected ErrConnectivity, got %v", err)
	}
}

func TestDiscoverDocuments(t *testing.T) {
	srv := stubProvider(t, http.StatusOK,
		`[{"doc_type": "NOR", "url": "https://docs.example/nor.pdf", "label": "Notice of Race"},
		  {"doc_type": "WWW", "url": "https://theclubspot.com/regatta/AbC123", "label": "Regatta website"},
		  {"doc_type": "ICS", "url": "https://docs.example/cal.ics", "label": "Calendar"},
		  {"doc_type": "SI", "url": "", "label": "Sailing Instructions"}]`)
	defer srv.Close()

	docs, err := newStubbedClient(t, srv).DiscoverDocuments(context.Background(), "page content", "Spring Regatta", "https://club.example/regatta/42")
	if err != nil {
		t.Fatalf("DiscoverDocuments() error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected invalid entries dropped, got %+v", docs)
	}
	if docs[0].DocType != models.DocTypeNOR || docs[1].DocType != models.DocTypeWWW {
		t.Errorf("unexpected documents: %+v", docs)
	}
}

func TestDiscoverDocumentsDeepDropsWWW(t *testing.T) {
	srv := stubProvider(t, http.StatusOK,
		`[{"doc_type": "SI", "url": "https://docs.example/si.pdf", "label": "Sailing Instructions"},
		  {"doc_type": "WWW", "url": "https://elsewhere.example", "label": "Website"}]`)
	defer srv.Close()

	docs, err := newStubbedClient(t, srv).DiscoverDocumentsDeep(context.Background(), "page content", "Spring Regatta", "https://club.example")
	if err != nil {
		t.Fatalf("DiscoverDocumentsDeep() error: %v", err)
	}
	if len(docs) != 1 || docs[0].DocType != models.DocTypeSI {
		t.Errorf("expected only NOR/SI kept, got %+v", docs)
	}
}

func TestPromptsRequestBareArrays(t *testing.T) {
	for name, prompt := range map[string]string{
		"extraction":     extractionPrompt,
		"discovery":      documentDiscoveryPrompt,
		"deep discovery": documentDeepDiscoveryPrompt,
	} {
		if !strings.Contains(prompt, "Return ONLY the JSON array") {
			t.Errorf("%s prompt does not pin the bare-array contract", name)
		}
	}
}
