// Package reply renders dispatcher outcomes as chat text. It performs no I/O
// and holds no state.
package reply

import (
	"fmt"
	"strings"

	"github.com/bdobrica/jarvis/internal/jarvis/store"
)

// Scope selects which tasks a listing covers.
type Scope int

const (
	ScopePending Scope = iota
	ScopeAll
)

// Glyphs marking task status in listings.
const (
	GlyphPending   = "⏳"
	GlyphCompleted = "✅"
)

const (
	askForTask         = "What task would you like me to add?"
	askWhichToComplete = "Please tell me which todo you'd like me to mark as complete."
	storeUnavailable   = "⚠️ I couldn't reach your todo list right now. Please try again in a moment."
	rateLimited        = "⏳ You're sending messages faster than I can keep up. Please try again in a moment."
	fallback           = "⚠️ Sorry, I encountered an error. Please try again."
	unlinked           = "I don't know who you are yet. Ask an administrator to link your Matrix account to Jarvis."
)

func AskForTask() string         { return askForTask }
func AskWhichToComplete() string { return askWhichToComplete }
func StoreUnavailable() string   { return storeUnavailable }
func RateLimited() string        { return rateLimited }

// Fallback is the reply used when a request fails unexpectedly.
func Fallback() string { return fallback }

// Unlinked is sent to chat senders without a Jarvis account.
func Unlinked() string { return unlinked }

// DeleteRedirect points the user at the explicit delete action. Chat never
// deletes tasks.
func DeleteRedirect(title string) string {
	if title == "" {
		return "I can help you delete todos, but for safety please use the delete button in the main interface."
	}
	return fmt.Sprintf("I can't delete %q from chat. For safety please use the delete button in the main interface.", title)
}

const helpText = `Here's what I can do:
• "add todo: buy milk" creates a todo (or just say "add a todo" and I'll ask what to add)
• "show pending todos" lists what's left
• "show all todos" lists everything
• "mark milk as done" completes the most recent pending todo matching "milk"
• "delete ..." points you to the delete button, I never delete by guesswork
• anything else is answered by the AI assistant when it's configured`

// Help returns the capability summary.
func Help() string {
	return helpText
}

// Pluralize returns "1 todo" or "N todos".
func Pluralize(n int, singular, plural string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, singular)
	}
	return fmt.Sprintf("%d %s", n, plural)
}

// Added confirms a created task.
func Added(text string) string {
	return fmt.Sprintf("%s Added new todo: %q", GlyphCompleted, text)
}

// Completed confirms a completed task.
func Completed(text string) string {
	return fmt.Sprintf("%s Marked %q as completed.", GlyphCompleted, text)
}

// NotFound reports that no pending task matched title.
func NotFound(title string) string {
	return fmt.Sprintf("⚠️ I couldn't find a pending todo matching %q.", title)
}

// EmptyList is shown instead of an empty listing.
func EmptyList(scope Scope) string {
	if scope == ScopePending {
		return "🎉 You have no pending todos. Enjoy your free time!"
	}
	return `📝 You don't have any todos yet. Try "add todo: buy milk" to create your first one.`
}

// Glyph returns the status marker for t.
func Glyph(t store.Task) string {
	if t.Pending() {
		return GlyphPending
	}
	return GlyphCompleted
}

// TaskList renders a count summary followed by a 1-based enumerated list.
// tasks are rendered in the order given.
func TaskList(tasks []store.Task, scope Scope) string {
	if len(tasks) == 0 {
		return EmptyList(scope)
	}

	var b strings.Builder
	switch scope {
	case ScopePending:
		fmt.Fprintf(&b, "You have %s:\n", Pluralize(len(tasks), "pending todo", "pending todos"))
	default:
		done := 0
		for _, t := range tasks {
			if !t.Pending() {
				done++
			}
		}
		fmt.Fprintf(&b, "You have %s (%d completed, %d pending):\n",
			Pluralize(len(tasks), "todo", "todos"), done, len(tasks)-done)
	}
	for i, t := range tasks {
		fmt.Fprintf(&b, "%d. %s %s", i+1, Glyph(t), t.Text)
		if i < len(tasks)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}
