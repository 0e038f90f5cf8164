package intent

import (
	"regexp"
	"strings"
)

// Rule maps a keyword set to an intent. When Param is set, the text after the
// leftmost keyword is extracted into that parameter.
type Rule struct {
	Name     string
	Intent   Intent
	Keywords []string
	Param    string

	// allowAsDone accepts "as done" between keyword and target
	// ("mark as done: buy milk") and strips it from the end
	// ("mark buy as done").
	allowAsDone bool
	extract     *regexp.Regexp
}

var trailingAsDone = regexp.MustCompile(`(?i)\s+as\s+(?:done|completed?|finished)[\s.!]*$`)

func newRule(name string, i Intent, param string, allowAsDone bool, keywords ...string) Rule {
	r := Rule{
		Name:        name,
		Intent:      i,
		Keywords:    keywords,
		Param:       param,
		allowAsDone: allowAsDone,
	}
	if param == "" {
		return r
	}

	alts := make([]string, len(keywords))
	for k, kw := range keywords {
		alts[k] = regexp.QuoteMeta(kw)
	}
	var b strings.Builder
	b.WriteString(`(?is)(?:` + strings.Join(alts, "|") + `)`)
	if allowAsDone {
		b.WriteString(`\s*(?:as\s+done\b)?`)
	}
	// optional article, "new", then "todo"/"task", then an optional colon
	b.WriteString(`\s*(?:(?:a|an|the)\s+)?(?:new\b\s*)?(?:(?:todo|task)s?\b)?\s*:?\s*(.*)$`)
	r.extract = regexp.MustCompile(b.String())
	return r
}

// Matches reports whether any keyword occurs in lower, which must already be
// lower-cased.
func (r Rule) Matches(lower string) bool {
	for _, kw := range r.Keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Extract returns the target phrase following the leftmost keyword, or ""
// when the rule carries no parameter or nothing follows the keyword.
func (r Rule) Extract(text string) string {
	if r.extract == nil {
		return ""
	}
	m := r.extract.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	out := strings.TrimSpace(m[1])
	if r.allowAsDone {
		out = strings.TrimSpace(trailingAsDone.ReplaceAllString(out, ""))
	}
	return out
}

func (r Rule) apply(text string) Result {
	if r.Param == "" {
		return New(r.Intent, nil)
	}
	return New(r.Intent, map[string]string{r.Param: r.Extract(text)})
}

var rules = []Rule{
	newRule("pending", ListPending, "", false, "pending", "incomplete", "unfinished"),
	newRule("add", AddTodo, ParamTask, false, "add", "new", "create"),
	newRule("complete", CompleteTodo, ParamTaskTitle, true, "complete", "done", "mark", "finish", "check off"),
	newRule("delete", DeleteTodo, ParamTaskTitle, false, "delete", "remove", "drop"),
	newRule("list", ListAll, "", false, "all", "list", "show all"),
	newRule("help", Help, "", false, "help", "what can you do", "commands"),
}

// Rules returns the classification rules in priority order. Messages that
// match none of them classify as Chat.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// Classify returns the intent of text and any extracted parameters.
func Classify(text string) Result {
	lower := strings.ToLower(text)
	for _, r := range rules {
		if r.Matches(lower) {
			return r.apply(text)
		}
	}
	return New(Chat, nil)
}
