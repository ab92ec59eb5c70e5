package assistant

import (
	"context"
	"regexp"
	"strings"
)

// Intent is a recognizable request type with the lookup that enriches it
type Intent struct {
	Name   string
	Match  func(text string) bool
	Enrich func(ctx context.Context, lookups Lookups, text string) string
}

const defaultSchool = "школа"

var (
	placePattern     = regexp.MustCompile(`(?i)в ([А-Яа-яA-Za-z\- ]+)`)
	weatherPattern   = regexp.MustCompile(`(?i)погод[аеуыи]|weather|температур[аеуыи]`)
	newsPattern      = regexp.MustCompile(`(?i)новост[ьи]`)
	exchangePattern  = regexp.MustCompile(`(?i)курс|exchange|([A-Z]{3}) к ([A-Z]{3})|([а-яА-Я]{3,}) к ([а-яА-Я]{3,})`)
	codePairPattern  = regexp.MustCompile(`(?i)([A-Z]{3}) к ([A-Z]{3})`)
	namePairPattern  = regexp.MustCompile(`(?i)([а-яА-Я]{3,}) к ([а-яА-Я]{3,})`)
	transportPattern = regexp.MustCompile(`(?i)автобус|троллейбус|маршрутка|трамвай|поезд|train|bus|route|маршрут`)
	routePattern     = regexp.MustCompile(`(\d{1,3})`)
	cinemaPattern    = regexp.MustCompile(`(?i)кино|фильм|афиша|cinema|movie`)
	bellPattern      = regexp.MustCompile(`(?i)звонк|расписание звонков|bell|school schedule`)
)

var currencyNames = map[string]string{
	"доллар": "USD",
	"тенге":  "KZT",
	"евро":   "EUR",
	"рубль":  "RUB",
	"рублей": "RUB",
	"руб":    "RUB",
}

// place returns the text after the first "в ", or fallback
func place(text, fallback string) string {
	if m := placePattern.FindStringSubmatch(text); m != nil {
		if p := strings.TrimSpace(m[1]); p != "" {
			return p
		}
	}
	return fallback
}

// newsCountry is the first two letters of the place, lowercased
func newsCountry(text string) string {
	p := []rune(strings.ToLower(place(text, "")))
	if len(p) == 0 {
		return "ru"
	}
	if len(p) > 2 {
		p = p[:2]
	}
	return string(p)
}

// currencies picks the pair to convert, USD to KZT unless named
func currencies(text string) (string, string) {
	if m := codePairPattern.FindStringSubmatch(text); m != nil {
		return strings.ToUpper(m[1]), strings.ToUpper(m[2])
	}
	from, to := "USD", "KZT"
	if m := namePairPattern.FindStringSubmatch(text); m != nil {
		if code, ok := currencyNames[strings.ToLower(m[1])]; ok {
			from = code
		}
		if code, ok := currencyNames[strings.ToLower(m[2])]; ok {
			to = code
		}
	}
	return from, to
}

// DefaultIntents returns the recognized intents in priority order
func DefaultIntents(defaultCity string) []Intent {
	return []Intent{
		{
			Name:  "weather",
			Match: weatherPattern.MatchString,
			Enrich: func(ctx context.Context, l Lookups, text string) string {
				return l.Weather(ctx, place(text, defaultCity))
			},
		},
		{
			Name:  "news",
			Match: newsPattern.MatchString,
			Enrich: func(ctx context.Context, l Lookups, text string) string {
				return l.News(ctx, newsCountry(text))
			},
		},
		{
			Name:  "exchange",
			Match: exchangePattern.MatchString,
			Enrich: func(ctx context.Context, l Lookups, text string) string {
				from, to := currencies(text)
				return l.Exchange(ctx, from, to)
			},
		},
		{
			Name: "transport",
			Match: func(text string) bool {
				return transportPattern.MatchString(text) && routePattern.MatchString(text)
			},
			Enrich: func(ctx context.Context, l Lookups, text string) string {
				route := routePattern.FindStringSubmatch(text)[1]
				return l.Transport(ctx, route, place(text, defaultCity))
			},
		},
		{
			Name:  "cinema",
			Match: cinemaPattern.MatchString,
			Enrich: func(ctx context.Context, l Lookups, text string) string {
				return l.Cinema(ctx, place(text, defaultCity))
			},
		},
		{
			Name:  "bell",
			Match: bellPattern.MatchString,
			Enrich: func(ctx context.Context, l Lookups, text string) string {
				return l.Bells(ctx, place(text, defaultSchool))
			},
		},
	}
}

// Classify returns the first intent matching text
func Classify(intents []Intent, text string) (Intent, bool) {
	for _, intent := range intents {
		if intent.Match(text) {
			return intent, true
		}
	}
	return Intent{}, false
}
