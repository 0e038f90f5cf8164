package reply_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bdobrica/jarvis/internal/jarvis/reply"
	"github.com/bdobrica/jarvis/internal/jarvis/store"
)

func TestPluralize(t *testing.T) {
	assert.Equal(t, "1 pending todo", reply.Pluralize(1, "pending todo", "pending todos"))
	assert.Equal(t, "0 pending todos", reply.Pluralize(0, "pending todo", "pending todos"))
	assert.Equal(t, "3 pending todos", reply.Pluralize(3, "pending todo", "pending todos"))
}

func TestTaskList_Pending(t *testing.T) {
	tasks := []store.Task{
		{ID: 2, Text: "walk dog", Status: store.StatusPending},
		{ID: 1, Text: "buy milk", Status: store.StatusPending},
	}
	want := "You have 2 pending todos:\n1. ⏳ walk dog\n2. ⏳ buy milk"
	assert.Equal(t, want, reply.TaskList(tasks, reply.ScopePending))
}

func TestTaskList_SinglePending(t *testing.T) {
	tasks := []store.Task{{ID: 1, Text: "buy milk", Status: store.StatusPending}}
	assert.Equal(t, "You have 1 pending todo:\n1. ⏳ buy milk", reply.TaskList(tasks, reply.ScopePending))
}

func TestTaskList_All(t *testing.T) {
	tasks := []store.Task{
		{ID: 3, Text: "c", Status: store.StatusPending},
		{ID: 2, Text: "b", Status: store.StatusCompleted},
		{ID: 1, Text: "a", Status: store.StatusPending},
	}
	want := "You have 3 todos (1 completed, 2 pending):\n1. ⏳ c\n2. ✅ b\n3. ⏳ a"
	assert.Equal(t, want, reply.TaskList(tasks, reply.ScopeAll))
}

func TestTaskList_Empty(t *testing.T) {
	assert.Equal(t, reply.EmptyList(reply.ScopePending), reply.TaskList(nil, reply.ScopePending))
	assert.Equal(t, reply.EmptyList(reply.ScopeAll), reply.TaskList([]store.Task{}, reply.ScopeAll))
	assert.NotEqual(t, reply.EmptyList(reply.ScopePending), reply.EmptyList(reply.ScopeAll))
}

func TestConfirmations(t *testing.T) {
	assert.Equal(t, `✅ Added new todo: "buy milk"`, reply.Added("buy milk"))
	assert.Equal(t, `✅ Marked "Buy Milk" as completed.`, reply.Completed("Buy Milk"))
	assert.Contains(t, reply.NotFound("buy"), `"buy"`)
	assert.Contains(t, reply.Help(), "add todo")
}

func TestDeleteRedirect(t *testing.T) {
	assert.Contains(t, reply.DeleteRedirect(""), "delete button")
	msg := reply.DeleteRedirect("milk")
	assert.Contains(t, msg, `"milk"`)
	assert.Contains(t, msg, "delete button")
}
