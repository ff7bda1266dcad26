package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/regcheck/internal/domain"
	"github.com/kailas-cloud/regcheck/internal/domain/document"
	"github.com/kailas-cloud/regcheck/internal/domain/registry"
	"github.com/kailas-cloud/regcheck/internal/domain/search/result"
	"github.com/kailas-cloud/regcheck/internal/resilience"
)

const defaultSystemPrompt = `Ты эксперт по реестру запрещённых (экстремистских) материалов.
Определи, ищет ли пользователь именно материал из приведённых записей реестра.
Совпадение отдельных слов не означает, что это тот же материал.
Ответь одной строкой: "Да, материал включен в реестр" или "Нет, материал не найден", затем краткое объяснение.`

// evidenceRunes bounds each registry entry quoted in the prompt.
const evidenceRunes = 600

// GeneratorConfig holds chat completion settings.
type GeneratorConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int
	Temperature  float32
	SystemPrompt string
	Executor     *resilience.Executor
	Logger       *zap.Logger
}

// Generator asks a chat model whether the query names one of the evidence entries.
// The reply is untrusted free text; callers only scan it for markers.
type Generator struct {
	client       *openai.Client
	model        string
	maxTokens    int
	temperature  float32
	systemPrompt string
	exec         executor
	logger       *zap.Logger
}

// NewGenerator creates a chat completion generator.
func NewGenerator(cfg *GeneratorConfig) *Generator {
	g := &Generator{
		client:       newClient(&Config{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL}),
		model:        cfg.Model,
		maxTokens:    cfg.MaxTokens,
		temperature:  cfg.Temperature,
		systemPrompt: cfg.SystemPrompt,
		logger:       cfg.Logger,
	}
	if g.systemPrompt == "" {
		g.systemPrompt = defaultSystemPrompt
	}
	if cfg.Executor != nil {
		g.exec = cfg.Executor
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	return g
}

// Generate returns the model's judgment for query against evidence.
func (g *Generator) Generate(ctx context.Context, query string, evidence []result.Result) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: g.systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(query, evidence)},
		},
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	}

	start := time.Now()
	var resp openai.ChatCompletionResponse
	call := func(ctx context.Context) error {
		r, err := g.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	}
	var err error
	if g.exec != nil {
		err = g.exec.Execute(ctx, "generation", call, classifyAPIError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("generation request: %w: %w", domain.ErrGenerationUnavailable, domain.ContextError(ctxErr))
		}
		return "", parseAPIError(err, domain.ErrGenerationUnavailable)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion: %w", domain.ErrGenerationUnavailable)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	g.logger.Debug("Generation completed",
		zap.String("model", g.model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)
	return text, nil
}

// HealthCheck verifies API availability via ListModels.
func (g *Generator) HealthCheck(ctx context.Context) error {
	if _, err := g.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// BuildPrompt renders the user message: the query followed by numbered registry entries.
func BuildPrompt(query string, evidence []result.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Запрос: %q\n\n", query)
	if len(evidence) == 0 {
		b.WriteString("Подходящих записей реестра не найдено.\n")
		return b.String()
	}
	b.WriteString("Записи реестра:\n")
	for _, r := range evidence {
		md := r.Metadata()
		fmt.Fprintf(&b, "%d. %s", r.Rank(), registry.Truncate(r.Content(), evidenceRunes))
		if md.RegistryNumber != "" {
			fmt.Fprintf(&b, " [№ %s]", md.RegistryNumber)
		}
		if md.HasDecisionDate() {
			fmt.Fprintf(&b, " [решение от %s]", md.DecisionDate.Format(document.DateLayout))
		}
		fmt.Fprintf(&b, " (сходство %.2f)\n", r.Score())
	}
	return b.String()
}
