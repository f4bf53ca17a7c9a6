// ABOUTME: Web-search answer generator, the last real backend in the chain
// ABOUTME: Queries DuckDuckGo's instant-answer API, then scrapes HTML results

package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	instantAnswerURL = "https://api.duckduckgo.com/"
	htmlSearchURL    = "https://html.duckduckgo.com/html/"
	maxScrapeResults = 3
)

// ApologyText is the fixed reply sent when every backend has failed.
// The chain tags it with source "error".
const ApologyText = "I'm sorry, I couldn't find an answer for you right now. Please try again in a moment."

// WebSearch answers questions from public search results when no language
// model is reachable. It needs no credentials, so it is always configured.
type WebSearch struct {
	client     *http.Client
	instantURL string
	htmlURL    string
	logger     *slog.Logger
}

// NewWebSearch builds the search generator with a dedicated HTTP client.
func NewWebSearch(timeout time.Duration) *WebSearch {
	return &WebSearch{
		client:     &http.Client{Timeout: timeout},
		instantURL: instantAnswerURL,
		htmlURL:    htmlSearchURL,
		logger:     slog.Default().With("component", "provider-websearch"),
	}
}

func (w *WebSearch) Name() string { return "web" }

func (w *WebSearch) Configured() bool { return true }

func (w *WebSearch) Generate(ctx context.Context, req Request) (*Reply, error) {
	start := time.Now()

	if answer, err := w.instantAnswer(ctx, req.Message); err == nil && answer != "" {
		return &Reply{Text: answer, Elapsed: time.Since(start)}, nil
	} else if err != nil {
		w.logger.Debug("instant answer lookup failed", "error", err)
	}

	answer, err := w.scrapeResults(ctx, req.Message)
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}
	if answer == "" {
		return nil, fmt.Errorf("web search: no results for query")
	}
	return &Reply{Text: answer, Elapsed: time.Since(start)}, nil
}

// GenerateStream delivers the whole search answer as a single chunk;
// search has no incremental output.
func (w *WebSearch) GenerateStream(ctx context.Context, req Request, fn StreamFunc) (*Reply, error) {
	reply, err := w.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if fn != nil {
		if err := fn(reply.Text); err != nil {
			return nil, err
		}
	}
	return reply, nil
}

// instantAnswerResponse is the subset of DuckDuckGo's instant-answer JSON
// we read.
type instantAnswerResponse struct {
	AbstractText  string `json:"AbstractText"`
	Answer        string `json:"Answer"`
	Definition    string `json:"Definition"`
	RelatedTopics []struct {
		Text string `json:"Text"`
	} `json:"RelatedTopics"`
}

// instantAnswer tries the JSON instant-answer endpoint first; it covers
// facts, definitions and conversions without any scraping.
func (w *WebSearch) instantAnswer(ctx context.Context, query string) (string, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")
	q.Set("skip_disambig", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.instantURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("instant answer status %d", resp.StatusCode)
	}

	var ia instantAnswerResponse
	if err := json.NewDecoder(resp.Body).Decode(&ia); err != nil {
		return "", err
	}

	switch {
	case ia.Answer != "":
		return ia.Answer, nil
	case ia.AbstractText != "":
		return ia.AbstractText, nil
	case ia.Definition != "":
		return ia.Definition, nil
	case len(ia.RelatedTopics) > 0 && ia.RelatedTopics[0].Text != "":
		return ia.RelatedTopics[0].Text, nil
	}
	return "", nil
}

// scrapeResults falls back to the HTML search page and pulls the first
// few result snippets.
func (w *WebSearch) scrapeResults(ctx context.Context, query string) (string, error) {
	form := url.Values{}
	form.Set("q", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.htmlURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "yatri-gateway/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("html search status %d", resp.StatusCode)
	}

	snippets, err := extractSnippets(resp.Body, maxScrapeResults)
	if err != nil {
		return "", err
	}
	return strings.Join(snippets, "\n\n"), nil
}

// extractSnippets walks the result page and collects the text of elements
// whose class marks them as result snippets.
func extractSnippets(r io.Reader, limit int) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var snippets []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(snippets) >= limit {
			return
		}
		if n.Type == html.ElementNode && hasClass(n, "result__snippet") {
			if text := strings.TrimSpace(nodeText(n)); text != "" {
				snippets = append(snippets, text)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return snippets, nil
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(attr.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

// nodeText concatenates all text nodes beneath n.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
