package stealth

import (
	"context"
	_ "embed"
	"fmt"
	"math/rand"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

//go:embed evasions.js
var evasionsScript string

// Persona defines the browser identity a session presents to the target site.
type Persona struct {
	UserAgent string
	Languages []string
	Timezone  string
	Locale    string
	Width     int
	Height    int
	Latitude  float64
	Longitude float64
}

// userAgents is the rotation pool for session personas. One entry is picked
// per session so that concurrent accounts do not share a client signature.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
}

// NewPersona builds a persona with a rotated User-Agent and fixed viewport,
// locale, timezone, and geolocation attributes.
func NewPersona(width, height int, locale, timezone string) Persona {
	return Persona{
		UserAgent: userAgents[rand.Intn(len(userAgents))],
		Languages: []string{locale, "en"},
		Timezone:  timezone,
		Locale:    locale,
		Width:     width,
		Height:    height,
		// Kraków. Consistent with the Polish timezone the persona claims.
		Latitude:  50.0646501,
		Longitude: 19.9449799,
	}
}

// Apply constructs the sequence of Chrome DevTools Protocol actions that make
// the headless browser present the persona instead of its automation defaults.
func Apply(p Persona, logger *zap.Logger) chromedp.Tasks {
	logger.Debug("Applying browser stealth persona",
		zap.String("userAgent", p.UserAgent),
		zap.String("timezone", p.Timezone),
	)

	return chromedp.Tasks{
		emulation.SetUserAgentOverride(p.UserAgent),

		emulation.SetDeviceMetricsOverride(int64(p.Width), int64(p.Height), 1.0, false),

		// AddScriptToEvaluateOnNewDocument returns two values, so it needs an
		// ActionFunc wrapper to satisfy the chromedp.Action interface.
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(evasionsScript).Do(ctx)
			if err != nil {
				return fmt.Errorf("failed to inject evasions script: %w", err)
			}
			return nil
		}),

		emulation.SetTimezoneOverride(p.Timezone),

		emulation.SetLocaleOverride().WithLocale(p.Locale),

		emulation.SetGeolocationOverride().
			WithLatitude(p.Latitude).
			WithLongitude(p.Longitude).
			WithAccuracy(50),

		network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": fmt.Sprintf("%s,%s;q=0.9", p.Languages[0], p.Languages[1]),
		}),
	}
}
