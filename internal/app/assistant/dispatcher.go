package assistant

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/yigit/educhat/internal/app/models"
)

// Bot message texts
const (
	ReplyPrefix = "🤖 "
	FailureText = "Ошибка AI-бота"
)

// MessageAppender posts the bot's reply into a chat
type MessageAppender interface {
	Append(ctx context.Context, chatID string, draft models.MessageDraft) (*models.Message, error)
}

// DispatcherConfig configures a Dispatcher
type DispatcherConfig struct {
	AssistantChatID string
	BotUserID       string
	ReplyDelay      time.Duration
}

// Dispatcher runs one background turn per submitted user message
type Dispatcher struct {
	cfg        DispatcherConfig
	generator  *Generator
	transcript Transcript
	appender   MessageAppender

	listenersMu sync.RWMutex
	listeners   []Listener

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger
}

// NewDispatcher creates a Dispatcher
func NewDispatcher(
	cfg DispatcherConfig,
	generator *Generator,
	transcript Transcript,
	appender MessageAppender,
	logger zerolog.Logger,
) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		cfg:        cfg,
		generator:  generator,
		transcript: transcript,
		appender:   appender,
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger,
	}
}

// OnStateChange registers l for every turn transition
func (d *Dispatcher) OnStateChange(l Listener) {
	d.listenersMu.Lock()
	defer d.listenersMu.Unlock()
	d.listeners = append(d.listeners, l)
}

func (d *Dispatcher) emit(event TurnEvent) {
	d.listenersMu.RLock()
	defer d.listenersMu.RUnlock()
	for _, l := range d.listeners {
		l(event)
	}
}

// transcriptKey separates users sharing the reserved assistant chat
func (d *Dispatcher) transcriptKey(chatID, userID string) string {
	if chatID == d.cfg.AssistantChatID {
		return chatID + ":" + userID
	}
	return chatID
}

// Submit starts the turn answering userMessage and returns at once. The
// reply is posted after the configured delay. Submissions after Shutdown
// are dropped.
func (d *Dispatcher) Submit(chatID string, userMessage *models.Message) {
	d.mu.Lock()
	if d.closed.Load() {
		d.mu.Unlock()
		d.logger.Warn().Str("chatID", chatID).Str("messageID", userMessage.ID).Msg("Assistant is shutting down, message not answered")
		return
	}

	d.wg.Add(1)
	d.mu.Unlock()

	turn := NewTurn(chatID, userMessage.ID, userMessage.Sender, d.emit)
	d.emit(TurnEvent{
		ChatID:    chatID,
		MessageID: userMessage.ID,
		UserID:    userMessage.Sender,
		State:     StateSent,
	})

	go func() {
		defer d.wg.Done()
		d.run(turn, chatID, userMessage)
	}()
}

func (d *Dispatcher) run(turn *Turn, chatID string, userMessage *models.Message) {
	ctx := d.ctx
	log := d.logger.With().Str("chatID", chatID).Str("messageID", userMessage.ID).Logger()

	if d.cfg.ReplyDelay > 0 {
		timer := time.NewTimer(d.cfg.ReplyDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			turn.Fail()
			return
		}
	}

	key := d.transcriptKey(chatID, userMessage.Sender)
	history, err := d.transcript.Recent(ctx, key)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load assistant transcript")
		history = nil
	}

	result, err := d.generator.generate(ctx, turn, userMessage.Text, history)
	if err != nil {
		log.Error().Err(err).Str("state", string(turn.State())).Msg("Assistant generation failed")
		turn.Fail()
		d.post(ctx, chatID, userMessage.Sender, FailureText, log)
		return
	}

	if !d.post(ctx, chatID, userMessage.Sender, ReplyPrefix+result.Text, log) {
		turn.Fail()
		return
	}
	if err := turn.Advance(StateReplied); err != nil {
		log.Error().Err(err).Msg("Assistant turn out of order")
		return
	}

	if err := d.transcript.Append(ctx, key,
		ChatMessage{Role: RoleUser, Content: userMessage.Text},
		ChatMessage{Role: RoleAssistant, Content: result.Text},
	); err != nil {
		log.Warn().Err(err).Msg("Failed to save assistant transcript")
	}
	log.Debug().Str("intent", result.Intent).Msg("Assistant replied")
}

func (d *Dispatcher) post(ctx context.Context, chatID, audience, text string, log zerolog.Logger) bool {
	_, err := d.appender.Append(ctx, chatID, models.MessageDraft{
		Sender:   d.cfg.BotUserID,
		Text:     text,
		Type:     models.MessageTypeBot,
		Audience: audience,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to post assistant message")
		return false
	}
	return true
}

// Shutdown stops accepting messages and waits for in-flight turns. When ctx
// ends first, remaining turns are cancelled and ctx.Err is returned without
// waiting for them.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed.Store(true)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		return ctx.Err()
	}
}
