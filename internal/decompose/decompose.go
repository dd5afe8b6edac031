// Package decompose turns a free-form instruction into an ordered list of
// primitive browser actions. It is pure: no I/O, no shared state, and it never
// fails. Text it does not understand yields an empty plan.
package decompose

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/aiassistantthx/browser-ai-agent/internal/action"
)

// IntentUnknown is reported when no pattern matches the instruction
const IntentUnknown = "unknown"

// Defaults for the plan caps
const (
	DefaultMaxActions = 50
	DefaultMaxPhrases = 50
	DefaultMaxWait    = 10 * time.Minute
)

// Plan is the decomposition of one instruction
type Plan struct {
	ParsedIntent      string          `json:"parsed_intent"`
	Actions           []action.Action `json:"planned_actions"`
	EstimatedDuration string          `json:"estimated_time"`
	EstimatedSeconds  int             `json:"-"`
	Truncated         bool            `json:"truncated,omitempty"`
}

// Options bounds the size of a plan. MaxWait caps a single wait step and is
// rounded down to whole seconds.
type Options struct {
	MaxActions int
	MaxPhrases int
	MaxWait    time.Duration
}

// Decomposer applies the intent pattern table to instructions
type Decomposer struct {
	maxActions     int
	maxPhrases     int
	maxWaitSeconds int
}

// New creates a decomposer. Zero or negative caps fall back to the defaults.
func New(opts Options) *Decomposer {
	if opts.MaxActions <= 0 {
		opts.MaxActions = DefaultMaxActions
	}
	if opts.MaxPhrases <= 0 {
		opts.MaxPhrases = DefaultMaxPhrases
	}
	if opts.MaxWait < time.Second {
		opts.MaxWait = DefaultMaxWait
	}
	return &Decomposer{
		maxActions:     opts.MaxActions,
		maxPhrases:     opts.MaxPhrases,
		maxWaitSeconds: int(opts.MaxWait / time.Second),
	}
}

// connectors separate sequential sub-instructions. Longer alternatives come
// first so "and then" is consumed as a whole.
var connectors = regexp.MustCompile(`(?i)\b(?:and then|then|and|after that|next|finally)\b`)

// bareURL finds a host-like token when no pattern produced an action
var bareURL = regexp.MustCompile(`(?i)\b(?:https?://)?(?:[a-z0-9-]+\.)+[a-z]{2,}(?:/\S*)?`)

// Decompose splits text into phrases and maps each phrase to actions
func (d *Decomposer) Decompose(text string) Plan {
	phrases := SplitPhrases(text)
	truncated := false
	if len(phrases) > d.maxPhrases {
		phrases = phrases[:d.maxPhrases]
		truncated = true
	}

	var actions []action.Action
	for _, phrase := range phrases {
		actions = append(actions, parsePhrase(phrase)...)
	}

	if len(actions) == 0 {
		if u := bareURL.FindString(text); u != "" {
			actions = append(actions, action.Navigate(NormalizeURL(trimPunct(u))))
		}
	}

	if len(actions) > d.maxActions {
		actions = actions[:d.maxActions]
		truncated = true
	}
	for i, a := range actions {
		if a.Kind == action.KindWait && a.Duration > d.maxWaitSeconds {
			actions[i] = action.Wait(d.maxWaitSeconds)
			truncated = true
		}
	}

	seconds := estimate(actions)
	return Plan{
		ParsedIntent:      PrimaryIntent(text),
		Actions:           actions,
		EstimatedDuration: fmt.Sprintf("%ds", seconds),
		EstimatedSeconds:  seconds,
		Truncated:         truncated,
	}
}

// SplitPhrases breaks text on sequence connectors, dropping blank fragments.
// Order of the returned phrases is execution order.
func SplitPhrases(text string) []string {
	parts := connectors.Split(text, -1)
	phrases := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			phrases = append(phrases, p)
		}
	}
	return phrases
}

// parsePhrase runs every pattern against the phrase. All matching patterns
// contribute an action, in table order.
func parsePhrase(phrase string) []action.Action {
	var actions []action.Action
	for _, p := range patterns {
		m := p.re.FindStringSubmatch(phrase)
		if m == nil {
			continue
		}
		if a, ok := p.parse(m); ok {
			actions = append(actions, a)
		}
	}
	return actions
}

// PrimaryIntent names the first pattern, in table order, that matches
// anywhere in the whole text
func PrimaryIntent(text string) string {
	for _, p := range patterns {
		if p.re.MatchString(text) {
			return p.name
		}
	}
	return IntentUnknown
}

// NormalizeURL lowercases and trims the target and adds https:// when no
// http(s) scheme is present. NormalizeURL(NormalizeURL(x)) == NormalizeURL(x).
func NormalizeURL(raw string) string {
	u := strings.ToLower(strings.TrimSpace(raw))
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		u = "https://" + u
	}
	return u
}

func estimate(actions []action.Action) int {
	total := 0
	for _, a := range actions {
		total += a.Cost()
	}
	return total
}

// trimPunct drops sentence punctuation glued to the end of a token
func trimPunct(s string) string {
	return strings.TrimRight(s, ".,;:!?")
}
