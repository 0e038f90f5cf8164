package dispatch_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdobrica/jarvis/internal/jarvis/dialogue"
	"github.com/bdobrica/jarvis/internal/jarvis/dispatch"
	"github.com/bdobrica/jarvis/internal/jarvis/gateway"
	"github.com/bdobrica/jarvis/internal/jarvis/intent"
	"github.com/bdobrica/jarvis/internal/jarvis/reply"
	"github.com/bdobrica/jarvis/internal/jarvis/store"
)

// fakeTasks is an in-memory TaskStore.
type fakeTasks struct {
	mu      sync.Mutex
	nextID  int64
	tasks   []store.Task
	inserts int
	err     error
	panics  bool
}

func (f *fakeTasks) ListByStatus(_ context.Context, userID int64, status string) ([]store.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics {
		panic("boom")
	}
	if f.err != nil {
		return nil, f.err
	}
	out := []store.Task{}
	for i := len(f.tasks) - 1; i >= 0; i-- {
		t := f.tasks[i]
		if t.UserID == userID && (status == "" || t.Status == status) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTasks) InsertTask(_ context.Context, userID int64, text string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.nextID++
	f.inserts++
	f.tasks = append(f.tasks, store.Task{ID: f.nextID, UserID: userID, Text: text, Status: store.StatusPending})
	return f.nextID, nil
}

func (f *fakeTasks) CompleteTask(_ context.Context, taskID, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	for i := range f.tasks {
		if f.tasks[i].ID == taskID && f.tasks[i].UserID == userID {
			f.tasks[i].Status = store.StatusCompleted
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTasks) snapshot() []store.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Task(nil), f.tasks...)
}

type fakeCompleter struct {
	calls  atomic.Int32
	result gateway.Result
}

func (f *fakeCompleter) Generate(context.Context, string) gateway.Result {
	f.calls.Add(1)
	return f.result
}

type denyAll struct{}

func (denyAll) Allow(int64) bool { return false }

func newDispatcher(t *testing.T, tasks *fakeTasks, completer dispatch.Completer) *dispatch.Dispatcher {
	t.Helper()
	d, err := dispatch.New(dispatch.Config{Tasks: tasks, Completer: completer})
	require.NoError(t, err)
	return d
}

const alice, bob = int64(1), int64(2)

func TestNew_RequiresTaskStore(t *testing.T) {
	_, err := dispatch.New(dispatch.Config{})
	assert.Error(t, err)
}

func TestDispatch_AddWithTask(t *testing.T) {
	tasks := &fakeTasks{}
	d := newDispatcher(t, tasks, nil)

	out := d.Dispatch(context.Background(), alice, "add todo: buy milk")
	assert.Equal(t, intent.AddTodo, out.Intent)
	assert.Equal(t, "buy milk", out.Params[intent.ParamTask])
	assert.True(t, out.Mutated)
	assert.Equal(t, reply.Added("buy milk"), out.Reply)
	require.Len(t, tasks.snapshot(), 1)
	assert.Equal(t, "buy milk", tasks.snapshot()[0].Text)
}

func TestDispatch_TwoStepAdd(t *testing.T) {
	tasks := &fakeTasks{}
	d := newDispatcher(t, tasks, nil)
	ctx := context.Background()

	first := d.Dispatch(ctx, alice, "add a todo")
	assert.Equal(t, intent.AskForTask, first.Intent)
	assert.Empty(t, first.Params)
	assert.False(t, first.Mutated)
	assert.Equal(t, reply.AskForTask(), first.Reply)
	assert.Empty(t, tasks.snapshot())

	second := d.Dispatch(ctx, alice, "  buy milk  ")
	assert.Equal(t, intent.AddTodo, second.Intent)
	assert.Equal(t, "buy milk", second.Params[intent.ParamTask])
	assert.True(t, second.Mutated)
	require.Len(t, tasks.snapshot(), 1)

	// The slot is consumed, so a third message is classified normally.
	third := d.Dispatch(ctx, alice, "help")
	assert.Equal(t, intent.Help, third.Intent)
	assert.Len(t, tasks.snapshot(), 1)
}

func TestDispatch_SlotSkipsClassification(t *testing.T) {
	tasks := &fakeTasks{}
	d := newDispatcher(t, tasks, nil)
	ctx := context.Background()

	d.Dispatch(ctx, alice, "add task")
	out := d.Dispatch(ctx, alice, "show pending todos")
	assert.Equal(t, intent.AddTodo, out.Intent)
	assert.Equal(t, "show pending todos", tasks.snapshot()[0].Text)
}

func TestDispatch_BlankAnswerRearmsSlot(t *testing.T) {
	tasks := &fakeTasks{}
	d := newDispatcher(t, tasks, nil)
	ctx := context.Background()

	d.Dispatch(ctx, alice, "add a todo")
	out := d.Dispatch(ctx, alice, "   ")
	assert.Equal(t, intent.AskForTask, out.Intent)
	assert.Empty(t, tasks.snapshot())
	_, pending := d.Slots().Peek(alice)
	assert.True(t, pending)

	d.Dispatch(ctx, alice, "walk dog")
	assert.Len(t, tasks.snapshot(), 1)
}

func TestDispatch_SlotsArePerUser(t *testing.T) {
	tasks := &fakeTasks{}
	d := newDispatcher(t, tasks, nil)
	ctx := context.Background()

	d.Dispatch(ctx, alice, "add a todo")
	out := d.Dispatch(ctx, bob, "help")
	assert.Equal(t, intent.Help, out.Intent)
	_, pending := d.Slots().Peek(alice)
	assert.True(t, pending)
}

func TestDispatch_ListIsIdempotentOnEmptyStore(t *testing.T) {
	tasks := &fakeTasks{}
	d := newDispatcher(t, tasks, nil)
	ctx := context.Background()

	a := d.Dispatch(ctx, alice, "show pending")
	b := d.Dispatch(ctx, alice, "show pending")
	assert.Equal(t, intent.ListPending, a.Intent)
	assert.Equal(t, a, b)
	assert.False(t, a.Mutated)
	assert.Equal(t, reply.EmptyList(reply.ScopePending), a.Reply)
	assert.Empty(t, tasks.snapshot())
}

func TestDispatch_ListAll(t *testing.T) {
	tasks := &fakeTasks{}
	d := newDispatcher(t, tasks, nil)
	ctx := context.Background()

	d.Dispatch(ctx, alice, "add todo: apples")
	d.Dispatch(ctx, alice, "add todo: bread")
	d.Dispatch(ctx, bob, "add todo: not mine")
	d.Dispatch(ctx, alice, "mark apples as done")

	out := d.Dispatch(ctx, alice, "show all todos")
	assert.Equal(t, intent.ListAll, out.Intent)
	assert.Equal(t, "You have 2 todos (1 completed, 1 pending):\n1. ⏳ bread\n2. ✅ apples", out.Reply)
}

func TestDispatch_FuzzyCompleteThenNotFound(t *testing.T) {
	tasks := &fakeTasks{}
	d := newDispatcher(t, tasks, nil)
	ctx := context.Background()

	d.Dispatch(ctx, alice, "add todo: Buy Milk")

	out := d.Dispatch(ctx, alice, "mark buy as done")
	assert.Equal(t, intent.CompleteTodo, out.Intent)
	assert.Equal(t, "buy", out.Params[intent.ParamTaskTitle])
	assert.True(t, out.Mutated)
	assert.Contains(t, out.Reply, "Buy Milk")
	assert.Equal(t, store.StatusCompleted, tasks.snapshot()[0].Status)

	again := d.Dispatch(ctx, alice, "mark buy as done")
	assert.False(t, again.Mutated)
	assert.Equal(t, reply.NotFound("buy"), again.Reply)
}

func TestDispatch_CompletePicksMostRecentMatch(t *testing.T) {
	tasks := &fakeTasks{}
	d := newDispatcher(t, tasks, nil)
	ctx := context.Background()

	d.Dispatch(ctx, alice, "add todo: milk run")
	d.Dispatch(ctx, alice, "add todo: oat milk")

	out := d.Dispatch(ctx, alice, "complete milk")
	require.True(t, out.Mutated)
	snap := tasks.snapshot()
	assert.Equal(t, store.StatusPending, snap[0].Status)
	assert.Equal(t, store.StatusCompleted, snap[1].Status)
}

func TestDispatch_CompleteIgnoresOtherUsers(t *testing.T) {
	tasks := &fakeTasks{}
	d := newDispatcher(t, tasks, nil)
	ctx := context.Background()

	d.Dispatch(ctx, bob, "add todo: buy milk")
	out := d.Dispatch(ctx, alice, "mark milk as done")
	assert.False(t, out.Mutated)
	assert.Equal(t, store.StatusPending, tasks.snapshot()[0].Status)
}

func TestDispatch_CompleteWithoutTitleAsks(t *testing.T) {
	d := newDispatcher(t, &fakeTasks{}, nil)
	out := d.Dispatch(context.Background(), alice, "mark as done")
	assert.Equal(t, intent.CompleteTodo, out.Intent)
	assert.Equal(t, reply.AskWhichToComplete(), out.Reply)
	assert.False(t, out.Mutated)
}

func TestDispatch_DeleteNeverMutates(t *testing.T) {
	tasks := &fakeTasks{}
	d := newDispatcher(t, tasks, nil)
	ctx := context.Background()

	d.Dispatch(ctx, alice, "add todo: buy milk")
	out := d.Dispatch(ctx, alice, "delete buy milk")
	assert.Equal(t, intent.DeleteTodo, out.Intent)
	assert.False(t, out.Mutated)
	assert.Contains(t, out.Reply, "delete button")
	assert.Len(t, tasks.snapshot(), 1)
}

func TestDispatch_Help(t *testing.T) {
	d := newDispatcher(t, &fakeTasks{}, nil)
	out := d.Dispatch(context.Background(), alice, "what can you do? help")
	assert.Equal(t, intent.Help, out.Intent)
	assert.Equal(t, reply.Help(), out.Reply)
}

func TestDispatch_ChatGatewayDisabled(t *testing.T) {
	gw := gateway.New(gateway.Config{})
	d := newDispatcher(t, &fakeTasks{}, gw)

	a := d.Dispatch(context.Background(), alice, "tell me a joke")
	b := d.Dispatch(context.Background(), alice, "tell me a joke")
	assert.Equal(t, intent.Chat, a.Intent)
	assert.Equal(t, gateway.Result{Status: gateway.StatusDisabled}.Reply(), a.Reply)
	assert.Equal(t, a, b)
}

func TestDispatch_ChatDisabledIgnoresRateLimit(t *testing.T) {
	const limit = 3
	limiter := gateway.NewRateLimiter(limit, 0)
	d, err := dispatch.New(dispatch.Config{
		Tasks:     &fakeTasks{},
		Completer: gateway.New(gateway.Config{}),
		Limiter:   limiter,
	})
	require.NoError(t, err)

	want := gateway.Result{Status: gateway.StatusDisabled}.Reply()
	for i := 0; i < limit+2; i++ {
		out := d.Dispatch(context.Background(), alice, "tell me a joke")
		require.Equal(t, want, out.Reply, "message %d", i+1)
	}
	assert.Equal(t, limit, limiter.Remaining(alice))
}

func TestDispatch_ChatUsesCompleter(t *testing.T) {
	c := &fakeCompleter{result: gateway.Result{Text: "Knock knock.", Status: gateway.StatusOK}}
	d := newDispatcher(t, &fakeTasks{}, c)

	out := d.Dispatch(context.Background(), alice, "tell me a joke")
	assert.Equal(t, "Knock knock.", out.Reply)
	assert.EqualValues(t, 1, c.calls.Load())
}

func TestDispatch_ChatFailureFallsBack(t *testing.T) {
	c := &fakeCompleter{result: gateway.Result{Status: gateway.StatusFailed, Err: errors.New("timeout")}}
	d := newDispatcher(t, &fakeTasks{}, c)

	out := d.Dispatch(context.Background(), alice, "tell me a joke")
	assert.Equal(t, intent.Chat, out.Intent)
	assert.Equal(t, c.result.Reply(), out.Reply)
	assert.NotEmpty(t, out.Reply)
}

func TestDispatch_ChatRateLimited(t *testing.T) {
	c := &fakeCompleter{result: gateway.Result{Text: "hi", Status: gateway.StatusOK}}
	d, err := dispatch.New(dispatch.Config{Tasks: &fakeTasks{}, Completer: c, Limiter: denyAll{}})
	require.NoError(t, err)

	out := d.Dispatch(context.Background(), alice, "hello there")
	assert.Equal(t, reply.RateLimited(), out.Reply)
	assert.Zero(t, c.calls.Load())
}

func TestDispatch_SlotArmedBeforeGatewayCall(t *testing.T) {
	c := &fakeCompleter{result: gateway.Result{Status: gateway.StatusFailed}}
	d := newDispatcher(t, &fakeTasks{}, c)
	ctx := context.Background()

	d.Dispatch(ctx, alice, "add a todo")
	d.Dispatch(ctx, alice, "tell me a joke")
	assert.Zero(t, c.calls.Load(), "slot answer must not reach the gateway")
}

func TestDispatch_StoreFailure(t *testing.T) {
	tasks := &fakeTasks{err: errors.New("database is locked")}
	d := newDispatcher(t, tasks, nil)

	for _, msg := range []string{"add todo: x", "show pending", "show all todos", "mark x as done"} {
		out := d.Dispatch(context.Background(), alice, msg)
		assert.Equal(t, reply.StoreUnavailable(), out.Reply, msg)
		assert.False(t, out.Mutated, msg)
	}
}

func TestDispatch_RecoversFromPanic(t *testing.T) {
	d := newDispatcher(t, &fakeTasks{panics: true}, nil)

	var out dispatch.Outcome
	require.NotPanics(t, func() {
		out = d.Dispatch(context.Background(), alice, "show pending")
	})
	assert.Equal(t, reply.Fallback(), out.Reply)
	assert.NotNil(t, out.Params)
}

func TestDispatch_ConcurrentAskThenSingleInsert(t *testing.T) {
	tasks := &fakeTasks{}
	d := newDispatcher(t, tasks, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Dispatch(ctx, alice, "add a todo")
		}()
	}
	wg.Wait()

	d.Dispatch(ctx, alice, "milk")
	assert.Equal(t, 1, tasks.inserts)

	// The slot is gone, so "milk" is now ordinary chat.
	out := d.Dispatch(ctx, alice, "milk")
	assert.Equal(t, intent.Chat, out.Intent)
	assert.Equal(t, 1, tasks.inserts)
}

func TestDispatch_ConcurrentAnswersSingleInsert(t *testing.T) {
	tasks := &fakeTasks{}
	d := newDispatcher(t, tasks, nil)
	ctx := context.Background()

	d.Dispatch(ctx, alice, "add a todo")

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Dispatch(ctx, alice, "milk")
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, tasks.inserts)
}

func TestRecognize(t *testing.T) {
	tasks := &fakeTasks{}
	d := newDispatcher(t, tasks, nil)
	ctx := context.Background()

	rec := d.Recognize(ctx, alice, "add a todo")
	assert.Equal(t, intent.AskForTask, rec.Intent)
	assert.Empty(t, rec.Params)
	assert.Equal(t, reply.AskForTask(), rec.Message)

	rec = d.Recognize(ctx, alice, "buy milk")
	assert.Equal(t, intent.AddTodo, rec.Intent)
	assert.Equal(t, "buy milk", rec.Params[intent.ParamTask])
	assert.Empty(t, rec.Message)

	rec = d.Recognize(ctx, alice, "show pending")
	assert.Equal(t, intent.ListPending, rec.Intent)

	assert.Empty(t, tasks.snapshot(), "Recognize never writes tasks")
}

func TestFindMatch(t *testing.T) {
	tasks := []store.Task{
		{ID: 1, Text: "Buy milk", Status: store.StatusPending},
		{ID: 3, Text: "buy bread", Status: store.StatusCompleted},
		{ID: 2, Text: "BUY eggs", Status: store.StatusPending},
	}

	got, ok := dispatch.FindMatch(tasks, "buy")
	require.True(t, ok)
	assert.EqualValues(t, 2, got.ID)

	_, ok = dispatch.FindMatch(tasks, "cheese")
	assert.False(t, ok)

	_, ok = dispatch.FindMatch(tasks, "  ")
	assert.False(t, ok)
}

func TestDispatch_SlotTTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	slots := dialogue.NewStore(dialogue.Options{TTL: time.Minute, Now: func() time.Time { return now }})
	tasks := &fakeTasks{}
	d, err := dispatch.New(dispatch.Config{Tasks: tasks, Slots: slots})
	require.NoError(t, err)
	ctx := context.Background()

	d.Dispatch(ctx, alice, "add a todo")
	now = now.Add(2 * time.Minute)
	out := d.Dispatch(ctx, alice, "help")
	assert.Equal(t, intent.Help, out.Intent)
	assert.Empty(t, tasks.snapshot())
}
