package browser

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// typist paces keystrokes the way a person would instead of pasting whole
// strings into a field. Login pages score input cadence, so a uniform
// zero-delay burst is a detection signal.
type typist struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newTypist() *typist {
	return &typist{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// interKeyDelay samples a log-normal inter-key interval. The parameters land
// most delays in the 50-180ms band with an occasional longer hesitation.
func (t *typist) interKeyDelay() time.Duration {
	t.mu.Lock()
	sample := math.Exp(t.rng.NormFloat64()*0.45 + math.Log(90))
	t.mu.Unlock()
	if sample > 600 {
		sample = 600
	}
	return time.Duration(sample) * time.Millisecond
}

// planningPause is the short hesitation between focusing a field and the
// first keystroke.
func (t *typist) planningPause() time.Duration {
	t.mu.Lock()
	sample := 200 + t.rng.NormFloat64()*60
	t.mu.Unlock()
	if sample < 50 {
		sample = 50
	}
	return time.Duration(sample) * time.Millisecond
}

// typeText emits the text into the matched element one rune at a time with
// sampled delays. The surrounding action sequence is expected to have made
// the element visible and cleared already.
func (t *typist) typeText(query, text string, opt chromedp.QueryOption) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := sleep(ctx, t.planningPause()); err != nil {
			return err
		}
		for _, r := range text {
			if err := chromedp.SendKeys(query, string(r), opt).Do(ctx); err != nil {
				return err
			}
			if err := sleep(ctx, t.interKeyDelay()); err != nil {
				return err
			}
		}
		return nil
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
