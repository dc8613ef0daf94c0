package brain

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html"
)

const (
	pageTextLimit  = 3000
	pageTextMinLen = 50
)

// SummarizeLink fetches the linked page, strips it to plain text, and asks
// the backend for a short neutral summary.
func (c *GeminiClient) SummarizeLink(ctx context.Context, url string) (string, error) {
	text, err := c.fetchPageText(ctx, url)
	if err != nil {
		return "", err
	}
	if len(text) < pageTextMinLen {
		return "Could not extract meaningful content from the link.", nil
	}

	prompt := fmt.Sprintf("Please provide a concise, neutral summary of the key points from this content. Focus on the main arguments and conclusions. The summary should be no more than 150 words.\n\nContent:\n%s", text)
	return c.callText(ctx, prompt, 200)
}

func (c *GeminiClient) fetchPageText(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.pageClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch link: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("link returned %d", resp.StatusCode)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", fmt.Errorf("parse link content: %w", err)
	}
	text := strings.Join(strings.Fields(visibleText(doc)), " ")
	if len(text) > pageTextLimit {
		text = text[:pageTextLimit]
	}
	return text, nil
}

// visibleText collects text content, skipping script and style subtrees.
func visibleText(n *html.Node) string {
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
		return ""
	}
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(visibleText(c))
		b.WriteByte(' ')
	}
	return b.String()
}
