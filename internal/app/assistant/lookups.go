package assistant

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// Lookups fetch the live data that enriches a prompt. Every method returns
// display text; failures come back as an apology, never as an error.
type Lookups interface {
	Weather(ctx context.Context, city string) string
	News(ctx context.Context, country string) string
	Exchange(ctx context.Context, from, to string) string
	Transport(ctx context.Context, route, city string) string
	Cinema(ctx context.Context, city string) string
	Bells(ctx context.Context, school string) string
}

// LookupConfig configures HTTPLookups
type LookupConfig struct {
	WeatherAPIKey   string
	WeatherBaseURL  string
	NewsAPIKey      string
	NewsBaseURL     string
	ExchangeBaseURL string
}

var errUnexpectedStatus = errors.New("unexpected status")

// HTTPLookups calls OpenWeather, NewsAPI and exchangerate.host. Transport,
// cinema and bell schedules are canned.
type HTTPLookups struct {
	client *fasthttp.Client
	cfg    LookupConfig
	logger zerolog.Logger
}

// NewHTTPLookups creates lookups sharing one fasthttp client
func NewHTTPLookups(client *fasthttp.Client, cfg LookupConfig, logger zerolog.Logger) *HTTPLookups {
	cfg.WeatherBaseURL = strings.TrimRight(cfg.WeatherBaseURL, "/")
	cfg.NewsBaseURL = strings.TrimRight(cfg.NewsBaseURL, "/")
	cfg.ExchangeBaseURL = strings.TrimRight(cfg.ExchangeBaseURL, "/")
	return &HTTPLookups{client: client, cfg: cfg, logger: logger}
}

// NewHTTPClient returns the fasthttp client used for outbound assistant calls
func NewHTTPClient() *fasthttp.Client {
	return &fasthttp.Client{
		Name:                "educhat-assistant",
		ReadTimeout:         30 * time.Second,
		WriteTimeout:        10 * time.Second,
		MaxIdleConnDuration: time.Minute,
	}
}

func (l *HTTPLookups) getJSON(ctx context.Context, uri string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(uri)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")

	if err := l.client.Do(req, resp); err != nil {
		return err
	}
	if status := resp.StatusCode(); status < 200 || status >= 300 {
		return fmt.Errorf("%w %d", errUnexpectedStatus, status)
	}
	return json.Unmarshal(resp.Body(), out)
}

func (l *HTTPLookups) failed(err error, lookup, apology string) string {
	l.logger.Warn().Err(err).Str("lookup", lookup).Msg("Assistant lookup failed")
	return apology
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

type weatherResponse struct {
	Name    string `json:"name"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
}

// Weather returns the current conditions in city
func (l *HTTPLookups) Weather(ctx context.Context, city string) string {
	if l.cfg.WeatherAPIKey == "" {
		return "API ключ OpenWeatherMap не найден."
	}
	q := url.Values{}
	q.Set("q", city)
	q.Set("appid", l.cfg.WeatherAPIKey)
	q.Set("units", "metric")
	q.Set("lang", "ru")

	var data weatherResponse
	if err := l.getJSON(ctx, l.cfg.WeatherBaseURL+"/weather?"+q.Encode(), &data); err != nil {
		if errors.Is(err, errUnexpectedStatus) {
			return l.failed(err, "weather", "Не удалось получить погоду.")
		}
		return l.failed(err, "weather", "Ошибка при получении погоды.")
	}
	if len(data.Weather) == 0 {
		return l.failed(errors.New("empty weather list"), "weather", "Ошибка при получении погоды.")
	}
	return fmt.Sprintf("Погода в городе %s: %s, температура %s°C.",
		data.Name, data.Weather[0].Description, formatNumber(data.Main.Temp))
}

type newsResponse struct {
	Articles []struct {
		Title string `json:"title"`
	} `json:"articles"`
}

// News returns the top three headlines for country
func (l *HTTPLookups) News(ctx context.Context, country string) string {
	if l.cfg.NewsAPIKey == "" {
		return "API ключ NewsAPI не найден."
	}
	q := url.Values{}
	q.Set("country", country)
	q.Set("apiKey", l.cfg.NewsAPIKey)
	q.Set("pageSize", "3")

	var data newsResponse
	if err := l.getJSON(ctx, l.cfg.NewsBaseURL+"/top-headlines?"+q.Encode(), &data); err != nil {
		if errors.Is(err, errUnexpectedStatus) {
			return l.failed(err, "news", "Не удалось получить новости.")
		}
		return l.failed(err, "news", "Ошибка при получении новостей.")
	}
	if len(data.Articles) == 0 {
		return "Нет свежих новостей."
	}

	titles := make([]string, 0, 3)
	for i, a := range data.Articles {
		if i == 3 {
			break
		}
		titles = append(titles, fmt.Sprintf("%d) %s", i+1, a.Title))
	}
	return "Свежие новости: " + strings.Join(titles, " ")
}

type exchangeResponse struct {
	Result float64 `json:"result"`
}

// Exchange returns the rate of from in to
func (l *HTTPLookups) Exchange(ctx context.Context, from, to string) string {
	q := url.Values{}
	q.Set("from", from)
	q.Set("to", to)

	var data exchangeResponse
	if err := l.getJSON(ctx, l.cfg.ExchangeBaseURL+"/convert?"+q.Encode(), &data); err != nil {
		if errors.Is(err, errUnexpectedStatus) {
			return l.failed(err, "exchange", "Не удалось получить курс валют.")
		}
		return l.failed(err, "exchange", "Ошибка при получении курса валют.")
	}
	if data.Result == 0 {
		return "Нет данных по курсу валют."
	}
	return fmt.Sprintf("Курс %s к %s: %s", strings.ToUpper(from), strings.ToUpper(to), formatNumber(data.Result))
}

// Transport returns the next departure on route
func (l *HTTPLookups) Transport(_ context.Context, route, city string) string {
	return fmt.Sprintf("Ближайший транспорт по маршруту %s в городе %s отправляется через 15 минут.", route, city)
}

// Cinema returns today's films in city
func (l *HTTPLookups) Cinema(_ context.Context, city string) string {
	return fmt.Sprintf(`Сегодня в городе %s идут фильмы: "Дюна 2", "Человек-паук: Через вселенные", "Барби".`, city)
}

// Bells returns the bell schedule of school
func (l *HTTPLookups) Bells(_ context.Context, school string) string {
	return fmt.Sprintf("Расписание звонков для %s: 1 урок — 8:00-8:45, 2 урок — 8:55-9:40, 3 урок — 9:50-10:35, 4 урок — 10:45-11:30.", school)
}
