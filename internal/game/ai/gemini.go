package ai

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"gopkg.in/yaml.v3"

	"sudooom.im.werewolf/internal/game/core"
)

//go:embed prompts/action.txt
var actionPrompt string

//go:embed prompts/speech.txt
var speechPrompt string

var (
	actionTmpl = template.Must(template.New("action").Parse(actionPrompt))
	speechTmpl = template.Must(template.New("speech").Parse(speechPrompt))
)

// GeminiAgent 基于 Gemini 的 AI
type GeminiAgent struct {
	client   *genai.Client
	model    *genai.GenerativeModel
	maxWords int
}

// NewGeminiAgent 创建 Gemini AI
func NewGeminiAgent(ctx context.Context, apiKey, modelName string, maxWords int) (*GeminiAgent, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is empty")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}
	if maxWords <= 0 {
		maxWords = 80
	}
	return &GeminiAgent{
		client:   client,
		model:    client.GenerativeModel(modelName),
		maxWords: maxWords,
	}, nil
}

// Name 实现名称
func (g *GeminiAgent) Name() string { return "gemini" }

// Close 关闭客户端
func (g *GeminiAgent) Close() error {
	return g.client.Close()
}

type promptData struct {
	DecisionContext
	Tone     string
	Targets  map[core.ActionType][]int
	MaxWords int
}

func (g *GeminiAgent) render(tmpl *template.Template, dc DecisionContext) (string, error) {
	var buf bytes.Buffer
	err := tmpl.Execute(&buf, promptData{
		DecisionContext: dc,
		Tone:            StrategyFor(dc.Persona).Tone,
		Targets:         dc.LegalTargets,
		MaxWords:        g.maxWords,
	})
	return buf.String(), err
}

// RequestAction 离散决策，模型以 YAML 回复
func (g *GeminiAgent) RequestAction(ctx context.Context, dc DecisionContext) (Decision, error) {
	prompt, err := g.render(actionTmpl, dc)
	if err != nil {
		return Decision{}, err
	}

	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return Decision{}, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return Decision{}, fmt.Errorf("no content returned from Gemini")
	}
	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return Decision{}, fmt.Errorf("unexpected response type from Gemini")
	}
	return ParseDecision(string(text))
}

// RequestSpeech 流式发言
func (g *GeminiAgent) RequestSpeech(ctx context.Context, dc DecisionContext) (<-chan Chunk, error) {
	prompt, err := g.render(speechTmpl, dc)
	if err != nil {
		return nil, err
	}

	iter := g.model.GenerateContentStream(ctx, genai.Text(prompt))
	ch := make(chan Chunk)
	go func() {
		defer close(ch)
		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				select {
				case ch <- Chunk{Err: err}:
				case <-ctx.Done():
				}
				return
			}
			for _, cand := range resp.Candidates {
				if cand.Content == nil {
					continue
				}
				for _, part := range cand.Content.Parts {
					text, ok := part.(genai.Text)
					if !ok || text == "" {
						continue
					}
					select {
					case ch <- Chunk{Text: string(text)}:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return ch, nil
}

// ParseDecision 解析 YAML 决策，容忍代码块包裹
func ParseDecision(text string) (Decision, error) {
	clean := strings.TrimSpace(text)
	clean = strings.TrimPrefix(clean, "```yaml")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")

	var d Decision
	if err := yaml.Unmarshal([]byte(clean), &d); err != nil {
		return Decision{}, fmt.Errorf("failed to parse decision: %w", err)
	}
	if d.Type == "" {
		return Decision{}, fmt.Errorf("decision has no action: %q", clean)
	}
	return d, nil
}
