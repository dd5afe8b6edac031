package action

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// Kind identifies a primitive automation step
type Kind string

const (
	KindNavigate Kind = "navigate"
	KindClick    Kind = "click"
	KindType     Kind = "type"
	KindExtract  Kind = "extract"
	KindWait     Kind = "wait"
)

// Kinds lists every recognized kind in dispatch order
var Kinds = []Kind{KindNavigate, KindClick, KindType, KindExtract, KindWait}

// MaxWaitSeconds is the longest wait that still fits in a time.Duration
const MaxWaitSeconds = math.MaxInt64 / int64(time.Second)

// Common errors
var (
	ErrUnknownKind  = errors.New("unknown action kind")
	ErrMissingParam = errors.New("missing required action parameter")
	ErrOutOfRange   = errors.New("action parameter out of range")
)

// Known reports whether k is one of the recognized kinds
func (k Kind) Known() bool {
	switch k {
	case KindNavigate, KindClick, KindType, KindExtract, KindWait:
		return true
	default:
		return false
	}
}

// Action is one primitive step. Values are never mutated after construction;
// use the constructors below instead of filling fields by hand.
type Action struct {
	Kind     Kind
	URL      string
	Selector string
	Text     string
	Duration int // seconds, Wait only
}

// Navigate builds a navigation step
func Navigate(url string) Action {
	return Action{Kind: KindNavigate, URL: url}
}

// Click builds a click step
func Click(selector string) Action {
	return Action{Kind: KindClick, Selector: selector}
}

// Type builds a typing step. selector may be empty, in which case the text
// goes to whatever element currently has focus.
func Type(text, selector string) Action {
	return Action{Kind: KindType, Text: text, Selector: selector}
}

// Extract builds a data extraction step
func Extract(selector string) Action {
	return Action{Kind: KindExtract, Selector: selector}
}

// Wait builds a fixed pause of the given number of seconds
func Wait(seconds int) Action {
	return Action{Kind: KindWait, Duration: seconds}
}

// WaitDuration converts a wait step's seconds to a time.Duration. Only
// meaningful for actions that passed Validate.
func (a Action) WaitDuration() time.Duration {
	return time.Duration(a.Duration) * time.Second
}

// Validate checks that the kind is recognized and that every parameter the
// kind requires is present
func (a Action) Validate() error {
	switch a.Kind {
	case KindNavigate:
		if a.URL == "" {
			return fmt.Errorf("%w: navigate requires url", ErrMissingParam)
		}
	case KindClick, KindExtract:
		if a.Selector == "" {
			return fmt.Errorf("%w: %s requires selector", ErrMissingParam, a.Kind)
		}
	case KindType:
		if a.Text == "" {
			return fmt.Errorf("%w: type requires text", ErrMissingParam)
		}
	case KindWait:
		if a.Duration < 0 {
			return fmt.Errorf("%w: wait requires a non-negative duration", ErrMissingParam)
		}
		if int64(a.Duration) > MaxWaitSeconds {
			return fmt.Errorf("%w: wait of %ds", ErrOutOfRange, a.Duration)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, a.Kind)
	}
	return nil
}

// Cost returns the estimated execution time of the action in seconds
func (a Action) Cost() int {
	switch a.Kind {
	case KindNavigate:
		return 3
	case KindType:
		return 2
	case KindClick, KindExtract:
		return 1
	case KindWait:
		return a.Duration
	default:
		return 0
	}
}

// String renders a short human readable description
func (a Action) String() string {
	switch a.Kind {
	case KindNavigate:
		return fmt.Sprintf("navigate %s", a.URL)
	case KindClick:
		return fmt.Sprintf("click %s", a.Selector)
	case KindType:
		if a.Selector == "" {
			return fmt.Sprintf("type %q", a.Text)
		}
		return fmt.Sprintf("type %q into %s", a.Text, a.Selector)
	case KindExtract:
		return fmt.Sprintf("extract %s", a.Selector)
	case KindWait:
		return fmt.Sprintf("wait %ds", a.Duration)
	default:
		return string(a.Kind)
	}
}

// wireAction is the JSON shape shared with clients: the kind under "type"
// and only the parameters that kind carries
type wireAction struct {
	Type     Kind    `json:"type"`
	URL      *string `json:"url,omitempty"`
	Selector *string `json:"selector,omitempty"`
	Text     *string `json:"text,omitempty"`
	Duration *int    `json:"duration,omitempty"`
}

// MarshalJSON emits the per-kind parameter set
func (a Action) MarshalJSON() ([]byte, error) {
	w := wireAction{Type: a.Kind}
	switch a.Kind {
	case KindNavigate:
		w.URL = &a.URL
	case KindClick, KindExtract:
		w.Selector = &a.Selector
	case KindType:
		w.Text = &a.Text
		if a.Selector != "" {
			w.Selector = &a.Selector
		}
	case KindWait:
		w.Duration = &a.Duration
	default:
		// Unknown kinds keep whatever was set so that a round trip through a
		// store does not hide the problem from validation.
		if a.URL != "" {
			w.URL = &a.URL
		}
		if a.Selector != "" {
			w.Selector = &a.Selector
		}
		if a.Text != "" {
			w.Text = &a.Text
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts the wire shape. A missing duration on a wait step is
// decoded as -1 so Validate rejects it.
func (a *Action) UnmarshalJSON(data []byte) error {
	var w wireAction
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*a = Action{Kind: w.Type}
	if w.URL != nil {
		a.URL = *w.URL
	}
	if w.Selector != nil {
		a.Selector = *w.Selector
	}
	if w.Text != nil {
		a.Text = *w.Text
	}
	switch {
	case w.Duration != nil:
		a.Duration = *w.Duration
	case w.Type == KindWait:
		a.Duration = -1
	}
	return nil
}
