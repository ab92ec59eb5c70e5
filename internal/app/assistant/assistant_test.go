package assistant

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yigit/educhat/internal/app/models"
)

type stubLookups struct{}

func (stubLookups) Weather(_ context.Context, city string) string { return "weather:" + city }
func (stubLookups) News(_ context.Context, country string) string { return "news:" + country }
func (stubLookups) Exchange(_ context.Context, from, to string) string {
	return "rate:" + from + "/" + to
}
func (stubLookups) Transport(_ context.Context, route, city string) string {
	return "route:" + route + "@" + city
}
func (stubLookups) Cinema(_ context.Context, city string) string  { return "cinema:" + city }
func (stubLookups) Bells(_ context.Context, school string) string { return "bells:" + school }

type stubCompleter struct {
	mu       sync.Mutex
	text     string
	err      error
	received [][]ChatMessage
}

func (c *stubCompleter) Complete(_ context.Context, messages []ChatMessage) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = append(c.received, messages)
	return c.text, c.err
}

func (c *stubCompleter) last() []ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.received) == 0 {
		return nil
	}
	return c.received[len(c.received)-1]
}

func TestClassify(t *testing.T) {
	intents := DefaultIntents("Алматы")
	cases := []struct {
		text       string
		intent     string
		enrichment string
	}{
		{"Погода в Алматы", "weather", "weather:Алматы"},
		{"какая температура?", "weather", "weather:Алматы"},
		{"Новости в России", "news", "news:ро"},
		{"новости", "news", "news:ru"},
		{"курс USD к EUR", "exchange", "rate:USD/EUR"},
		{"евро к тенге", "exchange", "rate:EUR/KZT"},
		{"Курс валют", "exchange", "rate:USD/KZT"},
		{"когда автобус 12 в Астане", "transport", "route:12@Астане"},
		{"Что идет в кино", "cinema", "cinema:кино"},
		{"расписание звонков", "bell", "bells:школа"},
		// weather outranks cinema
		{"погода и кино", "weather", "weather:Алматы"},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			intent, ok := Classify(intents, tc.text)
			require.True(t, ok)
			assert.Equal(t, tc.intent, intent.Name)
			assert.Equal(t, tc.enrichment, intent.Enrich(context.Background(), stubLookups{}, tc.text))
		})
	}

	_, ok := Classify(intents, "автобус без номера")
	assert.False(t, ok, "transport needs a route number")
	_, ok = Classify(intents, "привет")
	assert.False(t, ok)
}

func TestStateTransitions(t *testing.T) {
	var seen []State
	turn := NewTurn("c", "m", "u", func(e TurnEvent) { seen = append(seen, e.State) })

	require.NoError(t, turn.Advance(StateAnalyzing))
	assert.ErrorIs(t, turn.Advance(StateReplied), ErrInvalidTransition)
	require.NoError(t, turn.Advance(StateEnriched))
	require.NoError(t, turn.Advance(StateDispatched))
	require.NoError(t, turn.Advance(StateReplied))
	assert.ErrorIs(t, turn.Advance(StateFailed), ErrInvalidTransition)

	turn.Fail()
	assert.Equal(t, StateReplied, turn.State())
	assert.Equal(t, []State{StateAnalyzing, StateEnriched, StateDispatched, StateReplied}, seen)
}

func TestGenerateEnrichesCurrentTurn(t *testing.T) {
	completer := &stubCompleter{text: "Солнечно"}
	g := NewGenerator(DefaultIntents("Алматы"), stubLookups{}, completer, 3)

	history := []ChatMessage{
		{Role: RoleUser, Content: "привет"},
		{Role: RoleAssistant, Content: "здравствуйте"},
		{Role: RoleUser, Content: "как дела"},
		{Role: RoleAssistant, Content: "хорошо"},
		{Role: RoleUser, Content: "Погода в Алматы"},
	}
	result, err := g.Generate(context.Background(), "Погода в Алматы", history)
	require.NoError(t, err)
	assert.Equal(t, "Солнечно", result.Text)
	assert.Equal(t, "weather", result.Intent)

	sent := completer.last()
	require.Len(t, sent, 4)
	assert.Equal(t, RoleSystem, sent[0].Role)
	assert.Equal(t, "как дела", sent[1].Content)
	assert.Equal(t, ChatMessage{Role: RoleUser, Content: "Погода в Алматы\nweather:Алматы"}, sent[3])
}

func TestGenerateEmptyCompletion(t *testing.T) {
	g := NewGenerator(nil, stubLookups{}, &stubCompleter{text: "  "}, 10)
	result, err := g.Generate(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, FallbackText, result.Text)
}

func TestOpenAIClient(t *testing.T) {
	var got completionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Ответ"}}]}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(NewHTTPClient(), OpenAIConfig{
		APIKey:      "sk-test",
		BaseURL:     srv.URL + "/v1/",
		Model:       "gpt-3.5-turbo",
		MaxTokens:   512,
		Temperature: 0.7,
	})
	text, err := client.Complete(context.Background(), []ChatMessage{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "Ответ", text)
	assert.Equal(t, "gpt-3.5-turbo", got.Model)
	assert.Equal(t, 512, got.MaxTokens)
	assert.InDelta(t, 0.7, got.Temperature, 1e-9)
}

func TestOpenAIClientErrors(t *testing.T) {
	_, err := NewOpenAIClient(NewHTTPClient(), OpenAIConfig{}).Complete(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoAPIKey)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota"}}`))
	}))
	defer srv.Close()
	text, err := NewOpenAIClient(NewHTTPClient(), OpenAIConfig{APIKey: "k", BaseURL: srv.URL}).Complete(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, FallbackText, text)
}

func TestHTTPLookups(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/weather":
			assert.Equal(t, "Алматы", r.URL.Query().Get("q"))
			assert.Equal(t, "metric", r.URL.Query().Get("units"))
			assert.Equal(t, "ru", r.URL.Query().Get("lang"))
			_, _ = w.Write([]byte(`{"name":"Алматы","weather":[{"description":"ясно"}],"main":{"temp":21.5}}`))
		case "/top-headlines":
			assert.Equal(t, "3", r.URL.Query().Get("pageSize"))
			_, _ = w.Write([]byte(`{"articles":[{"title":"A"},{"title":"B"}]}`))
		case "/convert":
			_, _ = w.Write([]byte(`{"result":470.25}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	l := NewHTTPLookups(NewHTTPClient(), LookupConfig{
		WeatherAPIKey:   "w",
		WeatherBaseURL:  srv.URL,
		NewsAPIKey:      "n",
		NewsBaseURL:     srv.URL,
		ExchangeBaseURL: srv.URL,
	}, zerolog.Nop())
	ctx := context.Background()

	assert.Equal(t, "Погода в городе Алматы: ясно, температура 21.5°C.", l.Weather(ctx, "Алматы"))
	assert.Equal(t, "Свежие новости: 1) A 2) B", l.News(ctx, "ru"))
	assert.Equal(t, "Курс USD к KZT: 470.25", l.Exchange(ctx, "usd", "kzt"))
}

func TestHTTPLookupsDegrade(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx := context.Background()
	l := NewHTTPLookups(NewHTTPClient(), LookupConfig{WeatherBaseURL: srv.URL, ExchangeBaseURL: srv.URL}, zerolog.Nop())
	assert.Equal(t, "API ключ OpenWeatherMap не найден.", l.Weather(ctx, "x"))
	assert.Equal(t, "API ключ NewsAPI не найден.", l.News(ctx, "ru"))
	assert.Equal(t, "Не удалось получить курс валют.", l.Exchange(ctx, "USD", "KZT"))

	srv.Close()
	assert.Equal(t, "Ошибка при получении курса валют.", l.Exchange(ctx, "USD", "KZT"))
}

func TestCannedLookups(t *testing.T) {
	ctx := context.Background()
	l := NewHTTPLookups(NewHTTPClient(), LookupConfig{}, zerolog.Nop())

	assert.Equal(t,
		"Расписание звонков для школы 12: 1 урок — 8:00-8:45, 2 урок — 8:55-9:40, 3 урок — 9:50-10:35, 4 урок — 10:45-11:30.",
		l.Bells(ctx, "школы 12"))
	assert.Equal(t,
		"Ближайший транспорт по маршруту 92 в городе Алматы отправляется через 15 минут.",
		l.Transport(ctx, "92", "Алматы"))
	assert.Contains(t, l.Cinema(ctx, "Астана"), `"Дюна 2"`)
}

type recordingAppender struct {
	mu     sync.Mutex
	drafts []models.MessageDraft
}

func (a *recordingAppender) Append(_ context.Context, chatID string, draft models.MessageDraft) (*models.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.drafts = append(a.drafts, draft)
	return &models.Message{ID: "bot-1", ChatID: chatID, Sender: draft.Sender, Text: draft.Text, Type: draft.Type}, nil
}

type stateLog struct {
	mu     sync.Mutex
	states []State
}

func (s *stateLog) listen(e TurnEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, e.State)
}

func (s *stateLog) all() []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]State(nil), s.states...)
}

func newTestDispatcher(completer Completer, appender MessageAppender, transcript Transcript) *Dispatcher {
	return NewDispatcher(DispatcherConfig{
		AssistantChatID: models.DefaultAssistantChatID,
		BotUserID:       models.DefaultBotUserID,
		ReplyDelay:      10 * time.Millisecond,
	}, NewGenerator(DefaultIntents("Алматы"), stubLookups{}, completer, 10), transcript, appender, zerolog.Nop())
}

func TestDispatcherReplies(t *testing.T) {
	completer := &stubCompleter{text: "Сейчас +20"}
	appender := &recordingAppender{}
	transcript := NewMemoryTranscript(10)
	d := newTestDispatcher(completer, appender, transcript)
	log := &stateLog{}
	d.OnStateChange(log.listen)

	start := time.Now()
	d.Submit(models.DefaultAssistantChatID, &models.Message{ID: "1", Sender: "alice", Text: "Погода в Алматы"})
	assert.Less(t, time.Since(start), 10*time.Millisecond, "Submit must not wait for the reply")
	require.NoError(t, d.Shutdown(context.Background()))

	require.Len(t, appender.drafts, 1)
	reply := appender.drafts[0]
	assert.True(t, strings.HasPrefix(reply.Text, "🤖 "))
	assert.Equal(t, "🤖 Сейчас +20", reply.Text)
	assert.Equal(t, models.DefaultBotUserID, reply.Sender)
	assert.Equal(t, "alice", reply.Audience)
	assert.Equal(t, models.MessageTypeBot, reply.Type)
	assert.Equal(t,
		[]State{StateSent, StateAnalyzing, StateEnriched, StateDispatched, StateReplied},
		log.all())

	turns, err := transcript.Recent(context.Background(), models.DefaultAssistantChatID+":alice")
	require.NoError(t, err)
	assert.Equal(t, []ChatMessage{
		{Role: RoleUser, Content: "Погода в Алматы"},
		{Role: RoleAssistant, Content: "Сейчас +20"},
	}, turns)
}

func TestDispatcherFailure(t *testing.T) {
	appender := &recordingAppender{}
	d := newTestDispatcher(&stubCompleter{err: errors.New("connection refused")}, appender, NewMemoryTranscript(10))
	log := &stateLog{}
	d.OnStateChange(log.listen)

	d.Submit("c1", &models.Message{ID: "1", Sender: "alice", Text: "привет"})
	require.NoError(t, d.Shutdown(context.Background()))

	require.Len(t, appender.drafts, 1)
	assert.Equal(t, "Ошибка AI-бота", appender.drafts[0].Text)
	states := log.all()
	assert.Equal(t, StateFailed, states[len(states)-1])
}

func TestDispatcherDropsAfterShutdown(t *testing.T) {
	appender := &recordingAppender{}
	d := newTestDispatcher(&stubCompleter{text: "x"}, appender, NewMemoryTranscript(10))
	require.NoError(t, d.Shutdown(context.Background()))

	d.Submit("c1", &models.Message{ID: "1", Sender: "alice", Text: "hi"})
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, appender.drafts)
}

func TestMemoryTranscriptCaps(t *testing.T) {
	tr := NewMemoryTranscript(3)
	ctx := context.Background()
	for _, c := range []string{"1", "2", "3", "4"} {
		require.NoError(t, tr.Append(ctx, "k", ChatMessage{Role: RoleUser, Content: c}))
	}
	turns, err := tr.Recent(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []ChatMessage{{RoleUser, "2"}, {RoleUser, "3"}, {RoleUser, "4"}}, turns)
}
