package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"xagent/internal/config"
	"xagent/internal/genqueue"
	"xagent/internal/logging"
)

// GeminiClient implements Client against the generateContent REST endpoint.
// Every backend call is dispatched through the shared generation queue so
// context lookups (sentiment, summaries) and reply generation share one
// pacing budget.
type GeminiClient struct {
	conf  func() *config.Config
	queue *genqueue.Queue

	httpClient *http.Client
	pageClient *http.Client // plain page/price fetches, not rate limited
}

// NewGeminiClient builds a client reading live configuration through conf.
func NewGeminiClient(conf func() *config.Config, queue *genqueue.Queue) *GeminiClient {
	cfg := conf()
	return &GeminiClient{
		conf:       conf,
		queue:      queue,
		httpClient: &http.Client{Timeout: cfg.GetLLMTimeout()},
		pageClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type geminiPart struct {
	Text             string                  `json:"text,omitempty"`
	FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
}

type geminiFunctionCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args,omitempty"`
}

type geminiFunctionResponse struct {
	Name     string      `json:"name"`
	Response interface{} `json:"response"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	TopP            float64 `json:"topP,omitempty"`
	TopK            int     `json:"topK,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiFunctionDecl struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDecl `json:"functionDeclarations"`
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	Tools            []geminiTool            `json:"tools,omitempty"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
	Error      *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// call sends one generateContent request through the pacing queue and
// validates the response shape.
func (c *GeminiClient) call(ctx context.Context, req geminiRequest) (*geminiResponse, error) {
	cfg := c.conf()
	if cfg.LLM.APIKey == "" {
		return nil, fmt.Errorf("API key not configured")
	}
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.APIKey)

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	raw, err := c.queue.Do(ctx, func(ctx context.Context) (string, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return "", err
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return "", fmt.Errorf("backend request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return "", fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("backend returned %d: %s", resp.StatusCode, truncate(string(body), 200))
		}
		return string(body), nil
	})
	if err != nil {
		return nil, err
	}

	var parsed geminiResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("backend error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no candidates in response")
	}
	return &parsed, nil
}

func (c *GeminiClient) callText(ctx context.Context, prompt string, maxTokens int) (string, error) {
	req := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
	}
	if maxTokens > 0 {
		req.GenerationConfig = &geminiGenerationConfig{MaxOutputTokens: maxTokens}
	}
	resp, err := c.call(ctx, req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Candidates[0].Content.Parts[0].Text), nil
}

// GenerateReply gathers best-effort context, builds the persona prompt, and
// asks the backend for reply text. A context-lookup failure degrades the
// prompt, never the whole call.
func (c *GeminiClient) GenerateReply(ctx context.Context, r ReplyRequest) (string, error) {
	cfg := c.conf()
	log := logging.Get(logging.CategoryBrain)

	sentiment, err := c.Sentiment(ctx, r.BodyText)
	if err != nil {
		log.Debugw("sentiment lookup failed", "error", err)
		sentiment = "Neutral"
	}

	var linkSummary string
	if r.LinkURL != "" {
		if linkSummary, err = c.SummarizeLink(ctx, r.LinkURL); err != nil {
			log.Debugw("link summary failed", "url", r.LinkURL, "error", err)
			linkSummary = ""
		}
	}

	var authorStyle string
	if len(r.RecentTexts) > 0 {
		if authorStyle, err = c.AnalyzeAuthorStyle(ctx, r.RecentTexts, r.AuthorBio); err != nil {
			log.Debugw("style analysis failed", "error", err)
			authorStyle = ""
		}
	}

	language := cfg.Automation.Language
	if language == "" || language == "Auto" {
		if language, err = c.DetectLanguage(ctx, r.BodyText); err != nil {
			log.Debugw("language detection failed", "error", err)
			language = "English"
		}
	}

	system := BuildSystemPrompt(PromptOptions{
		Persona:       cfg.Automation.Persona,
		CustomPersona: cfg.Automation.CustomPersonaPrompt,
		UserMemory:    cfg.Automation.UserMemory,
		WritingStyle:  cfg.Automation.WritingStyle,
		Niche:         cfg.Targeting.NicheKeywords,
		ReplyLength:   cfg.Automation.ReplyLength,
		ToneIntent:    r.ToneIntent,
		Language:      language,
		AuthorBio:     r.AuthorBio,
		AuthorStyle:   authorStyle,
		Sentiment:     sentiment,
		LinkSummary:   linkSummary,
	})

	contents := []geminiContent{{
		Role:  "user",
		Parts: []geminiPart{{Text: fmt.Sprintf("%s\n\nTweet: %q", system, r.BodyText)}},
	}}
	req := geminiRequest{
		Contents: contents,
		Tools:    []geminiTool{{FunctionDeclarations: []geminiFunctionDecl{cryptoPriceDecl}}},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:     0.9,
			TopP:            0.95,
			TopK:            40,
			MaxOutputTokens: 80,
		},
	}

	resp, err := c.call(ctx, req)
	if err != nil {
		return "", err
	}
	part := resp.Candidates[0].Content.Parts[0]

	// One tool round trip: look up the price, then re-ask with the result.
	if part.FunctionCall != nil && part.FunctionCall.Name == cryptoPriceDecl.Name {
		result := c.lookupCryptoPrice(ctx, part.FunctionCall.Args)
		req.Contents = append(req.Contents,
			geminiContent{Role: "model", Parts: []geminiPart{{FunctionCall: part.FunctionCall}}},
			geminiContent{Role: "function", Parts: []geminiPart{{FunctionResponse: &geminiFunctionResponse{
				Name:     cryptoPriceDecl.Name,
				Response: map[string]interface{}{"content": result},
			}}}},
		)
		if resp, err = c.call(ctx, req); err != nil {
			return "", fmt.Errorf("after tool call: %w", err)
		}
		part = resp.Candidates[0].Content.Parts[0]
	}

	text := strings.TrimSpace(part.Text)
	if text == "" {
		return "", fmt.Errorf("empty reply from backend")
	}
	if cfg.Automation.IncludeMention && r.AuthorHandle != "" {
		text = "@" + r.AuthorHandle + " " + text
	}
	return text, nil
}

// Sentiment classifies the body text as Positive, Negative, or Neutral.
func (c *GeminiClient) Sentiment(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf("Analyze the sentiment of the following tweet. Respond with only one word: Positive, Negative, or Neutral.\n\nTweet: %q", text)
	word, err := c.callText(ctx, prompt, 10)
	if err != nil {
		return "", err
	}
	return word, nil
}

// DetectLanguage returns the English name of the language the text is
// written in, defaulting to English when the answer is unusable.
func (c *GeminiClient) DetectLanguage(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf("What language is this text written in? Reply with ONLY ONE WORD - the language name in English (Turkish, English, German, French, Spanish, etc). Nothing else.\n\nText: %q", text)
	answer, err := c.callText(ctx, prompt, 10)
	if err != nil {
		return "", err
	}
	if lang := firstWordLetters(answer); lang != "" {
		return lang, nil
	}
	return "English", nil
}

// AnalyzeAuthorStyle summarizes how the author writes, from their bio and
// other visible posts.
func (c *GeminiClient) AnalyzeAuthorStyle(ctx context.Context, recentTexts []string, bio string) (string, error) {
	var b strings.Builder
	b.WriteString("Analyze this Twitter user's writing style based on their bio and recent tweets.\n\n")
	if bio != "" {
		fmt.Fprintf(&b, "Bio: %q\n\n", bio)
	}
	b.WriteString("Recent tweets:\n")
	for i, t := range recentTexts {
		fmt.Fprintf(&b, "%d. %q\n", i+1, t)
	}
	b.WriteString(`
Briefly describe:
1. Their tone (formal/casual, serious/humorous, etc.)
2. Topics they care about
3. Writing style (short/long, emoji usage, slang, etc.)

Keep it under 100 words.`)
	return c.callText(ctx, b.String(), 150)
}

// firstWordLetters reduces a model answer to the letters of its first word.
func firstWordLetters(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}
	var b strings.Builder
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
