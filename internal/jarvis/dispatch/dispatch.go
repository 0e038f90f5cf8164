// Package dispatch turns one chat message into one reply.
//
// A message is first checked against the sender's pending dialogue slot. If
// the previous turn asked "what task would you like me to add?", the message
// is the answer and classification is skipped. Otherwise it is classified by
// keyword rules and routed to the task store, the static reply composer or
// the completion gateway. Dispatch always produces an Outcome: store errors,
// gateway failures and panics become friendly replies.
package dispatch

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"strings"

	"github.com/bdobrica/jarvis/internal/jarvis/dialogue"
	"github.com/bdobrica/jarvis/internal/jarvis/gateway"
	"github.com/bdobrica/jarvis/internal/jarvis/intent"
	"github.com/bdobrica/jarvis/internal/jarvis/observability"
	"github.com/bdobrica/jarvis/internal/jarvis/reply"
	"github.com/bdobrica/jarvis/internal/jarvis/store"
)

// TaskStore is the subset of the task store the dispatcher uses. Chat never
// deletes tasks.
type TaskStore interface {
	// ListByStatus returns the user's tasks in descending id order. An empty
	// status means every status.
	ListByStatus(ctx context.Context, userID int64, status string) ([]store.Task, error)
	InsertTask(ctx context.Context, userID int64, text string) (int64, error)
	// CompleteTask reports false when the task does not exist or belongs to
	// another user.
	CompleteTask(ctx context.Context, taskID, userID int64) (bool, error)
}

// Completer produces free-form replies for messages no rule recognised.
// A Completer that also has an Enabled() bool method and reports false is
// treated as disabled and never charged against the Limiter.
type Completer interface {
	Generate(ctx context.Context, prompt string) gateway.Result
}

type switchable interface {
	Enabled() bool
}

func completerEnabled(c Completer) bool {
	if c == nil {
		return false
	}
	s, ok := c.(switchable)
	return !ok || s.Enabled()
}

// Limiter throttles completion calls per user.
type Limiter interface {
	Allow(userID int64) bool
}

// Outcome is the result of dispatching one message.
type Outcome struct {
	Intent  intent.Intent     `json:"intent"`
	Params  map[string]string `json:"params"`
	Reply   string            `json:"reply"`
	Mutated bool              `json:"mutated"`
}

// Recognition is the classification-only answer served by the NLP endpoint.
type Recognition struct {
	Intent  intent.Intent     `json:"intent"`
	Params  map[string]string `json:"params"`
	Message string            `json:"message,omitempty"`
}

// Config wires a Dispatcher. Tasks is required; the rest is optional.
type Config struct {
	Tasks     TaskStore
	Completer Completer
	Slots     *dialogue.Store
	Limiter   Limiter
}

// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	tasks     TaskStore
	completer Completer
	slots     *dialogue.Store
	limiter   Limiter
}

// New returns a Dispatcher. A nil Slots gets a fresh store without expiry.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Tasks == nil {
		return nil, fmt.Errorf("dispatch: task store is required")
	}
	slots := cfg.Slots
	if slots == nil {
		slots = dialogue.NewStore(dialogue.Options{})
	}
	return &Dispatcher{
		tasks:     cfg.Tasks,
		completer: cfg.Completer,
		slots:     slots,
		limiter:   cfg.Limiter,
	}, nil
}

// Slots exposes the dialogue store, mainly for diagnostics.
func (d *Dispatcher) Slots() *dialogue.Store { return d.slots }

// Dispatch handles one message from userID. It never panics.
func (d *Dispatcher) Dispatch(ctx context.Context, userID int64, text string) (out Outcome) {
	log := observability.WithTrace(ctx).With("user_id", userID)
	defer func() {
		if r := recover(); r != nil {
			log.Error("dispatch: recovered from panic", "panic", r, "stack", string(debug.Stack()))
			out = Outcome{Intent: intent.Chat, Params: map[string]string{}, Reply: reply.Fallback()}
		}
	}()

	res := d.resolve(userID, text, log)
	log.Debug("dispatch: classified", "intent", res.Intent)
	return d.handle(ctx, userID, text, res, log)
}

// Recognize classifies text like Dispatch but performs no task writes and no
// gateway calls. An add request without a task arms the follow-up slot.
func (d *Dispatcher) Recognize(ctx context.Context, userID int64, text string) Recognition {
	log := observability.WithTrace(ctx).With("user_id", userID)
	res := d.resolve(userID, text, log)
	if res.Intent == intent.AddTodo {
		if _, ok := res.Param(intent.ParamTask); !ok {
			d.arm(userID, log)
			return Recognition{Intent: intent.AskForTask, Params: map[string]string{}, Message: reply.AskForTask()}
		}
	}
	return Recognition{Intent: res.Intent, Params: res.Params}
}

// resolve consumes a pending slot or classifies text.
func (d *Dispatcher) resolve(userID int64, text string, log *slog.Logger) intent.Result {
	if slot, ok := d.slots.Take(userID); ok && slot.Type == dialogue.AwaitingTask {
		log.Debug("dispatch: slot consumed", "slot", slot.Type)
		return intent.New(intent.AddTodo, map[string]string{intent.ParamTask: strings.TrimSpace(text)})
	}
	return intent.Classify(text)
}

func (d *Dispatcher) arm(userID int64, log *slog.Logger) {
	d.slots.Set(userID, dialogue.AwaitingTask)
	log.Debug("dispatch: slot armed", "slot", dialogue.AwaitingTask)
}

func (d *Dispatcher) handle(ctx context.Context, userID int64, text string, res intent.Result, log *slog.Logger) Outcome {
	switch res.Intent {
	case intent.AddTodo:
		return d.add(ctx, userID, res, log)
	case intent.ListPending:
		return d.list(ctx, userID, res, store.StatusPending, reply.ScopePending, log)
	case intent.ListAll:
		return d.list(ctx, userID, res, "", reply.ScopeAll, log)
	case intent.CompleteTodo:
		return d.complete(ctx, userID, res, log)
	case intent.DeleteTodo:
		title, _ := res.Param(intent.ParamTaskTitle)
		return outcome(res, reply.DeleteRedirect(title), false)
	case intent.Help:
		return outcome(res, reply.Help(), false)
	default:
		return d.chat(ctx, userID, text, res, log)
	}
}

func (d *Dispatcher) add(ctx context.Context, userID int64, res intent.Result, log *slog.Logger) Outcome {
	task, ok := res.Param(intent.ParamTask)
	if !ok {
		d.arm(userID, log)
		return outcome(intent.New(intent.AskForTask, nil), reply.AskForTask(), false)
	}
	id, err := d.tasks.InsertTask(ctx, userID, task)
	if err != nil {
		return storeFailure(res, "insert task", err, log)
	}
	log.Info("dispatch: task added", "task_id", id)
	return outcome(res, reply.Added(task), true)
}

func (d *Dispatcher) list(ctx context.Context, userID int64, res intent.Result, status string, scope reply.Scope, log *slog.Logger) Outcome {
	tasks, err := d.tasks.ListByStatus(ctx, userID, status)
	if err != nil {
		return storeFailure(res, "list tasks", err, log)
	}
	return outcome(res, reply.TaskList(tasks, scope), false)
}

func (d *Dispatcher) complete(ctx context.Context, userID int64, res intent.Result, log *slog.Logger) Outcome {
	title, ok := res.Param(intent.ParamTaskTitle)
	if !ok {
		return outcome(res, reply.AskWhichToComplete(), false)
	}
	tasks, err := d.tasks.ListByStatus(ctx, userID, store.StatusPending)
	if err != nil {
		return storeFailure(res, "list pending tasks", err, log)
	}
	match, found := FindMatch(tasks, title)
	if !found {
		return outcome(res, reply.NotFound(title), false)
	}
	done, err := d.tasks.CompleteTask(ctx, match.ID, userID)
	if err != nil {
		return storeFailure(res, "complete task", err, log)
	}
	if !done {
		return outcome(res, reply.NotFound(title), false)
	}
	log.Info("dispatch: task completed", "task_id", match.ID)
	return outcome(res, reply.Completed(match.Text), true)
}

func (d *Dispatcher) chat(ctx context.Context, userID int64, text string, res intent.Result, log *slog.Logger) Outcome {
	if !completerEnabled(d.completer) {
		return outcome(res, gateway.Result{Status: gateway.StatusDisabled}.Reply(), false)
	}
	if d.limiter != nil && !d.limiter.Allow(userID) {
		log.Warn("dispatch: chat rate limit exceeded")
		return outcome(res, reply.RateLimited(), false)
	}
	gr := d.completer.Generate(ctx, text)
	if !gr.OK() {
		log.Debug("dispatch: completion fell back", "status", gr.Status)
	}
	return outcome(res, gr.Reply(), false)
}

// FindMatch returns the most recent pending task whose text contains title,
// compared case-insensitively.
func FindMatch(tasks []store.Task, title string) (store.Task, bool) {
	needle := strings.ToLower(strings.TrimSpace(title))
	if needle == "" {
		return store.Task{}, false
	}
	ordered := slices.Clone(tasks)
	slices.SortStableFunc(ordered, func(a, b store.Task) int {
		return cmp.Compare(b.ID, a.ID)
	})
	for _, t := range ordered {
		if t.Pending() && strings.Contains(strings.ToLower(t.Text), needle) {
			return t, true
		}
	}
	return store.Task{}, false
}

func outcome(res intent.Result, text string, mutated bool) Outcome {
	params := res.Params
	if params == nil {
		params = map[string]string{}
	}
	return Outcome{Intent: res.Intent, Params: params, Reply: text, Mutated: mutated}
}

func storeFailure(res intent.Result, op string, err error, log *slog.Logger) Outcome {
	log.Error("dispatch: store failure", "op", op, "err", err)
	return outcome(res, reply.StoreUnavailable(), false)
}
