package memory

import (
	"context"
	"strconv"
	"strings"
	"unicode"

	"github.com/charmbracelet/log"
)

// firstPersonTokens flags self-referential statements, which tend to
// carry biographical facts worth remembering. Covers Latin and
// Cyrillic pronouns since the companion speaks both.
var firstPersonTokens = map[string]struct{}{
	"i": {}, "me": {}, "my": {}, "mine": {}, "myself": {},
	"im": {}, "ive": {}, "we": {}, "our": {},
	"я": {}, "меня": {}, "мне": {}, "мной": {}, "мною": {},
	"мой": {}, "моя": {}, "моё": {}, "мое": {}, "мои": {},
	"нас": {}, "наш": {}, "наша": {},
}

// Classifier scores how much a single message deserves long-term
// retention. It is a pure scoring function with no side effects; the
// caller decides what to do with the score.
//
// Cheap structural heuristics run first. When they are inconclusive
// and a Completer is configured, a higher-cost semantic check runs on
// a bounded worker pool with a bounded timeout; on timeout, pool
// exhaustion or provider failure the heuristic score stands.
type Classifier struct {
	cfg       Config
	completer Completer
	slots     chan struct{}
	logger    *log.Logger
}

// NewClassifier builds a classifier. completer may be nil for
// heuristic-only operation.
func NewClassifier(cfg Config, completer Completer, logger *log.Logger) *Classifier {
	workers := cfg.ClassifierWorkers
	if workers <= 0 {
		workers = Default().ClassifierWorkers
	}
	return &Classifier{
		cfg:       cfg,
		completer: completer,
		slots:     make(chan struct{}, workers),
		logger:    logger,
	}
}

// Score rates msg in [0,1]. ordinal is the zero-based position of the
// message within its conversation.
func (c *Classifier) Score(ctx context.Context, msg Message, ordinal int) float64 {
	h := heuristicScore(msg, ordinal, c.cfg.FirstMessages)

	// Only borderline scores justify a provider round-trip.
	if c.completer == nil || h < 0.4 || h >= 0.6 {
		return h
	}

	s, ok := c.semanticScore(ctx, msg)
	if !ok {
		return h
	}
	// Blend rather than replace: the heuristics stay a floor so a
	// confused model cannot bury a structurally important message.
	if s > h {
		return s
	}
	return h
}

// ShouldPersist reports whether msg should be written to the long-term
// store immediately rather than waiting for eviction.
func (c *Classifier) ShouldPersist(ctx context.Context, msg Message, ordinal int) bool {
	return c.Score(ctx, msg, ordinal) >= c.cfg.PersistThreshold
}

// semanticScore asks the completion API to rate the message. Bounded
// by both the worker pool and the classify timeout so the hot path is
// never blocked for long.
func (c *Classifier) semanticScore(ctx context.Context, msg Message) (float64, bool) {
	select {
	case c.slots <- struct{}{}:
		defer func() { <-c.slots }()
	default:
		// Pool saturated; heuristics win.
		return 0, false
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.classifyTimeout())
	defer cancel()

	prompt := "Rate from 0 to 10 how important it is to remember this message " +
		"about the user long-term. Reply with a single number.\n\nMessage: " +
		truncate(msg.Content, 400)

	reply, err := c.completer.Complete(ctx, prompt)
	if err != nil {
		if c.logger != nil {
			c.logger.Debug("semantic importance check failed, using heuristics", "error", err)
		}
		return 0, false
	}

	n, err := parseLeadingNumber(reply)
	if err != nil {
		return 0, false
	}
	if n < 0 {
		n = 0
	}
	if n > 10 {
		n = 10
	}
	return n / 10, true
}

// heuristicScore is the structural ensemble. Each signal is cheap and
// independent; scores accumulate from a low base and cap at 1.
func heuristicScore(msg Message, ordinal, firstK int) float64 {
	content := msg.Content
	runes := []rune(content)

	score := 0.2
	if len(runes) >= 25 {
		score += 0.25
	}
	if len(runes) >= 120 {
		score += 0.1
	}
	if containsFirstPerson(content) {
		score += 0.25
	}
	if containsDigit(content) {
		score += 0.15
	}
	if msg.Role == RoleUser && strings.ContainsRune(content, '?') {
		score += 0.15
	}
	if ordinal < firstK {
		score += 0.2
	}
	if score > 1 {
		score = 1
	}
	return score
}

func containsFirstPerson(content string) bool {
	for _, tok := range tokenize(content) {
		if _, ok := firstPersonTokens[tok]; ok {
			return true
		}
	}
	return false
}

func containsDigit(content string) bool {
	for _, r := range content {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// parseLeadingNumber extracts the first integer or decimal in s.
func parseLeadingNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && (s[end] >= '0' && s[end] <= '9' || s[end] == '.') {
		end++
	}
	return strconv.ParseFloat(s[:end], 64)
}
