package evidence

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-qualifier/pkg/jina"
)

const snippetLen = 500

// circuitBreaker tracks consecutive failures to skip a flaky upstream.
type circuitBreaker struct {
	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	openUntil   time.Time
	threshold   int
	window      time.Duration
	cooldown    time.Duration
	name        string
}

func newCircuitBreaker(name string, threshold int, window, cooldown time.Duration) *circuitBreaker {
	return &circuitBreaker{name: name, threshold: threshold, window: window, cooldown: cooldown}
}

func (cb *circuitBreaker) isOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return time.Now().Before(cb.openUntil)
}

func (cb *circuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	now := time.Now()
	if now.Sub(cb.lastFailure) > cb.window {
		cb.failures = 0
	}
	cb.failures++
	cb.lastFailure = now
	if cb.failures >= cb.threshold {
		cb.openUntil = now.Add(cb.cooldown)
		zap.L().Warn("evidence: circuit breaker opened",
			zap.String("provider", cb.name),
			zap.Int("failures", cb.failures),
			zap.Duration("cooldown", cb.cooldown),
		)
	}
}

func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
}

// JinaSearcher searches via Jina Search, biased to Norwegian results.
type JinaSearcher struct {
	client    jina.Client
	num       int
	country   string
	perSearch float64
	cost      CostRecorder
	breaker   *circuitBreaker
}

// NewJinaSearcher creates a JinaSearcher returning up to num results.
// perSearch is the flat cost of one call.
func NewJinaSearcher(client jina.Client, num int, perSearch float64, cost CostRecorder) *JinaSearcher {
	if cost == nil {
		cost = noCost{}
	}
	if num <= 0 {
		num = 3
	}
	return &JinaSearcher{
		client:    client,
		num:       num,
		country:   "no",
		perSearch: perSearch,
		cost:      cost,
		breaker:   newCircuitBreaker("jina", 3, 30*time.Second, 60*time.Second),
	}
}

func (j *JinaSearcher) Name() string { return "jina" }

func (j *JinaSearcher) Search(ctx context.Context, query string) ([]Snippet, error) {
	if j.breaker.isOpen() {
		return nil, eris.New("evidence: jina circuit breaker open")
	}
	resp, err := j.client.Search(ctx, query, jina.WithCountry(j.country), jina.WithNumResults(j.num))
	j.cost.AddCost(j.perSearch)
	if err != nil {
		j.breaker.recordFailure()
		return nil, err
	}
	j.breaker.recordSuccess()

	out := make([]Snippet, 0, len(resp.Data))
	for _, r := range resp.Data {
		text := r.Description
		if text == "" {
			text = r.Content
		}
		out = append(out, Snippet{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: truncate(strings.TrimSpace(text), snippetLen),
			Source:  "jina",
		})
	}
	return out, nil
}

// JinaReader reads pages via Jina Reader.
type JinaReader struct {
	client  jina.Client
	perRead float64
	cost    CostRecorder
	breaker *circuitBreaker
}

// NewJinaReader creates a JinaReader.
func NewJinaReader(client jina.Client, perRead float64, cost CostRecorder) *JinaReader {
	if cost == nil {
		cost = noCost{}
	}
	return &JinaReader{
		client:  client,
		perRead: perRead,
		cost:    cost,
		breaker: newCircuitBreaker("jina-reader", 3, 30*time.Second, 60*time.Second),
	}
}

func (j *JinaReader) Name() string { return "jina" }

// Read fetches a page and rejects blocked or near-empty responses so the
// next reader can try.
func (j *JinaReader) Read(ctx context.Context, url string) (string, error) {
	if j.breaker.isOpen() {
		return "", eris.New("evidence: jina reader circuit breaker open")
	}
	resp, err := j.client.Read(ctx, url)
	j.cost.AddCost(j.perRead)
	if err != nil {
		j.breaker.recordFailure()
		return "", err
	}
	if needsFallback(resp) {
		j.breaker.recordFailure()
		return "", eris.New("evidence: jina response needs fallback")
	}
	j.breaker.recordSuccess()
	return resp.Data.Content, nil
}

var challengeSignatures = []string{
	"checking your browser",
	"enable javascript",
	"please enable cookies",
	"access denied",
	"403 forbidden",
	"just a moment",
	"cloudflare",
	"attention required",
}

// needsFallback reports whether a Jina response is blocked, failed or too
// short to be useful.
func needsFallback(resp *jina.ReadResponse) bool {
	if resp == nil {
		return true
	}
	if resp.Code != 0 && resp.Code != 200 {
		return true
	}
	content := strings.TrimSpace(resp.Data.Content)
	if len(content) < 100 {
		return true
	}
	lower := strings.ToLower(content)
	for _, sig := range challengeSignatures {
		if strings.Contains(lower, sig) && len(content) < 1000 {
			return true
		}
	}
	return false
}
