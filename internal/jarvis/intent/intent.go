// Package intent classifies a free-text message into one of a closed set of
// task intents using an ordered list of keyword rules.
//
// Classification is deterministic, case-insensitive and free of I/O. Rules are
// evaluated in priority order and the first match wins, so the order returned
// by Rules is part of the package contract.
//
// Keyword matching is substring based, not word based: "completely" contains
// "complete" and is classified as complete_todo.
package intent

// Intent is the classified purpose of a message.
type Intent string

const (
	Chat         Intent = "chat"
	ListPending  Intent = "list_pending"
	AddTodo      Intent = "add_todo"
	CompleteTodo Intent = "complete_todo"
	DeleteTodo   Intent = "delete_todo"
	ListAll      Intent = "list_all"
	Help         Intent = "help"
	// AskForTask is never produced by Classify. The dispatcher emits it when
	// an add_todo message carried no task text and a follow-up was queued.
	AskForTask Intent = "ask_for_task"
)

// Parameter keys carried in Result.Params.
const (
	ParamTask      = "task"
	ParamTaskTitle = "taskTitle"
)

// All returns every intent tag.
func All() []Intent {
	return []Intent{Chat, ListPending, AddTodo, CompleteTodo, DeleteTodo, ListAll, Help, AskForTask}
}

// Valid reports whether i belongs to the closed set.
func (i Intent) Valid() bool {
	for _, known := range All() {
		if i == known {
			return true
		}
	}
	return false
}

// Result is the outcome of classifying one message. Params is never nil.
type Result struct {
	Intent Intent            `json:"intent"`
	Params map[string]string `json:"params"`
}

// Param returns the named parameter and whether it is present.
func (r Result) Param(key string) (string, bool) {
	v, ok := r.Params[key]
	return v, ok
}

// New builds a Result, dropping empty parameter values.
func New(i Intent, params map[string]string) Result {
	clean := make(map[string]string, len(params))
	for k, v := range params {
		if v != "" {
			clean[k] = v
		}
	}
	return Result{Intent: i, Params: clean}
}
