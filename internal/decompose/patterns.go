package decompose

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aiassistantthx/browser-ai-agent/internal/action"
)

// intentPattern maps one intent to the parser that builds its action
type intentPattern struct {
	name  string
	re    *regexp.Regexp
	parse func(m []string) (action.Action, bool)
}

// patterns is ordered: it decides both the order of actions produced from a
// single phrase and which intent is reported as primary.
var patterns = []intentPattern{
	{
		name:  "navigation",
		re:    regexp.MustCompile(`(?i)\b(?:go to|open|visit|navigate to)\s+(?:the\s+)?(?:website\s+)?(\S+)`),
		parse: parseNavigation,
	},
	{
		name:  "click",
		re:    regexp.MustCompile(`(?i)\b(?:click|press|select)\s+(?:on\s+)?(?:the\s+)?([^.]+)`),
		parse: parseClick,
	},
	{
		name:  "type",
		re:    regexp.MustCompile(`(?i)\b(?:type|enter|input|write)\s+['"]([^'"]+)['"](?:\s+(?:in|into|on)\s+(?:the\s+)?([^.]+))?`),
		parse: parseType,
	},
	{
		name:  "extract",
		re:    regexp.MustCompile(`(?i)\b(?:get|extract|read|find)\s+(?:the\s+)?([^.]+)`),
		parse: parseExtract,
	},
	{
		name:  "wait",
		re:    regexp.MustCompile(`(?i)\b(?:wait|pause)\s+(?:for\s+)?(\d+)\s*(?:second|sec|s)`),
		parse: parseWait,
	},
}

func parseNavigation(m []string) (action.Action, bool) {
	target := trimPunct(m[1])
	if target == "" {
		return action.Action{}, false
	}
	return action.Navigate(NormalizeURL(target)), true
}

func parseClick(m []string) (action.Action, bool) {
	target := strings.TrimSpace(m[1])
	if target == "" {
		return action.Action{}, false
	}
	return action.Click(SelectorFor(target)), true
}

func parseType(m []string) (action.Action, bool) {
	text := m[1]
	if text == "" {
		return action.Action{}, false
	}
	selector := ""
	if target := strings.TrimSpace(m[2]); target != "" {
		selector = SelectorFor(target)
	}
	return action.Type(text, selector), true
}

func parseExtract(m []string) (action.Action, bool) {
	target := strings.TrimSpace(m[1])
	if target == "" {
		return action.Action{}, false
	}
	return action.Extract(SelectorFor(target)), true
}

func parseWait(m []string) (action.Action, bool) {
	seconds, err := strconv.Atoi(m[1])
	if err != nil {
		return action.Action{}, false
	}
	return action.Wait(seconds), true
}

var (
	clickableHint = regexp.MustCompile(`(?i)button|link|submit`)
	fieldHint     = regexp.MustCompile(`(?i)input|text|field|box`)
)

// SelectorFor guesses selector fragments from an element description and
// joins them with ", ". The text fragment uses the non-standard :contains()
// form, so the result is a hint for the driver rather than a CSS selector
// that every engine accepts.
func SelectorFor(description string) string {
	description = strings.TrimSpace(description)

	var fragments []string
	if clickableHint.MatchString(description) {
		fragments = append(fragments, "button, a, input[type='submit']")
	}
	fragments = append(fragments, fmt.Sprintf("*:contains('%s')", strings.ReplaceAll(description, "'", `\'`)))
	if fieldHint.MatchString(description) {
		fragments = append(fragments, "input[type='text'], textarea")
	}
	return strings.Join(fragments, ", ")
}
