// Package assistant answers messages in assistant chats. A turn is classified
// into an intent, enriched with live data, sent to a completion backend and
// posted back to the chat by the bot user.
package assistant

import (
	"context"
	"strings"
)

// SystemPrompt frames every completion request
const SystemPrompt = "Ты — умный, дружелюбный и максимально полезный ассистент для образовательной платформы. " +
	"Отвечай на вопросы максимально подробно, понятно и корректно. " +
	"Если не знаешь точного ответа или информация может быть устаревшей — честно сообщи об этом. " +
	"Если вопрос касается погоды, новостей, курсов валют, транспорта, кино, расписания звонков и другой актуальной информации — используй встроенные сервисы. " +
	"Если в prompt есть свежая информация, используй её для ответа."

// Result is a generated reply
type Result struct {
	Text       string
	Intent     string
	Enrichment string
}

// Generator turns a user message into a reply
type Generator struct {
	intents     []Intent
	lookups     Lookups
	completer   Completer
	historySize int
}

// NewGenerator creates a Generator. historySize bounds the turns sent to the
// completer, the current one included.
func NewGenerator(intents []Intent, lookups Lookups, completer Completer, historySize int) *Generator {
	if historySize <= 0 {
		historySize = 10
	}
	return &Generator{
		intents:     intents,
		lookups:     lookups,
		completer:   completer,
		historySize: historySize,
	}
}

// Generate answers message given the earlier turns of the conversation
func (g *Generator) Generate(ctx context.Context, message string, history []ChatMessage) (Result, error) {
	return g.generate(ctx, nil, message, history)
}

func (g *Generator) generate(ctx context.Context, turn *Turn, message string, history []ChatMessage) (Result, error) {
	if err := turn.Advance(StateAnalyzing); err != nil {
		return Result{}, err
	}

	var result Result
	prompt := message
	if intent, ok := Classify(g.intents, message); ok {
		result.Intent = intent.Name
		result.Enrichment = intent.Enrich(ctx, g.lookups, message)
		prompt += "\n" + result.Enrichment
		turn.SetIntent(intent.Name)
	}
	if err := turn.Advance(StateEnriched); err != nil {
		return Result{}, err
	}

	messages := g.buildMessages(message, prompt, history)
	if err := turn.Advance(StateDispatched); err != nil {
		return Result{}, err
	}

	text, err := g.completer.Complete(ctx, messages)
	if err != nil {
		return result, err
	}
	if strings.TrimSpace(text) == "" {
		text = FallbackText
	}
	result.Text = text
	return result, nil
}

// buildMessages prepends the system prompt to the most recent turns. The
// current user turn carries the enriched prompt; a trailing copy of the raw
// message in history is replaced by it.
func (g *Generator) buildMessages(message, prompt string, history []ChatMessage) []ChatMessage {
	turns := make([]ChatMessage, 0, len(history)+1)
	for _, h := range history {
		if h.Content == "" {
			continue
		}
		turns = append(turns, h)
	}
	if n := len(turns); n > 0 && turns[n-1].Role == RoleUser && turns[n-1].Content == message {
		turns = turns[:n-1]
	}
	turns = append(turns, ChatMessage{Role: RoleUser, Content: prompt})
	if len(turns) > g.historySize {
		turns = turns[len(turns)-g.historySize:]
	}

	return append([]ChatMessage{{Role: RoleSystem, Content: SystemPrompt}}, turns...)
}
