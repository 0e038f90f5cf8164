package matrix

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/jarvis/internal/jarvis/dispatch"
	"github.com/bdobrica/jarvis/internal/jarvis/intent"
	"github.com/bdobrica/jarvis/internal/jarvis/reply"
	"github.com/bdobrica/jarvis/internal/jarvis/store"
)

const (
	botID   = "@jarvis:example.com"
	aliceID = "@alice:example.com"
	room    = "!todo:example.com"
)

type fakeUsers struct {
	byMXID map[string]int64
	err    error
}

func (f fakeUsers) UserByMatrixID(_ context.Context, mxid string) (*store.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	uid, ok := f.byMXID[mxid]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &store.User{ID: uid}, nil
}

type recordingDispatcher struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingDispatcher) Dispatch(_ context.Context, userID int64, text string) dispatch.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, text)
	return dispatch.Outcome{Intent: intent.Help, Params: map[string]string{}, Reply: "reply to " + text}
}

type sent struct {
	room    id.RoomID
	replyTo id.EventID
	text    string
	notice  bool
}

type fakeSender struct {
	msgs []sent
}

func (f *fakeSender) reply(_ context.Context, roomID id.RoomID, eventID id.EventID, text string) error {
	f.msgs = append(f.msgs, sent{room: roomID, replyTo: eventID, text: text})
	return nil
}

func (f *fakeSender) notice(_ context.Context, roomID id.RoomID, text string) error {
	f.msgs = append(f.msgs, sent{room: roomID, text: text, notice: true})
	return nil
}

func textEvent(sender, roomID, body string) *event.Event {
	return &event.Event{
		Sender: id.UserID(sender),
		RoomID: id.RoomID(roomID),
		ID:     id.EventID("$evt1"),
		Type:   event.EventMessage,
		Content: event.Content{Parsed: &event.MessageEventContent{
			MsgType: event.MsgText,
			Body:    body,
		}},
	}
}

func newTestBot(rooms []string, users UserResolver) (*Bot, *recordingDispatcher, *fakeSender) {
	d := &recordingDispatcher{}
	out := &fakeSender{}
	b := newBot(Config{UserID: botID, Rooms: rooms}, users, d, out)
	return b, d, out
}

func TestHandleEvent_LinkedSender(t *testing.T) {
	b, d, out := newTestBot([]string{room}, fakeUsers{byMXID: map[string]int64{aliceID: 1}})

	b.handleEvent(context.Background(), textEvent(aliceID, room, "  show pending  "))

	assert.Equal(t, []string{"show pending"}, d.calls)
	require.Len(t, out.msgs, 1)
	assert.Equal(t, "reply to show pending", out.msgs[0].text)
	assert.Equal(t, id.EventID("$evt1"), out.msgs[0].replyTo)
	assert.False(t, out.msgs[0].notice)
}

func TestHandleEvent_UnlinkedSender(t *testing.T) {
	b, d, out := newTestBot(nil, fakeUsers{})

	b.handleEvent(context.Background(), textEvent(aliceID, room, "help"))

	assert.Empty(t, d.calls)
	require.Len(t, out.msgs, 1)
	assert.True(t, out.msgs[0].notice)
	assert.Equal(t, reply.Unlinked(), out.msgs[0].text)
}

func TestHandleEvent_LookupFailure(t *testing.T) {
	b, d, out := newTestBot(nil, fakeUsers{err: errors.New("disk I/O error")})

	b.handleEvent(context.Background(), textEvent(aliceID, room, "help"))

	assert.Empty(t, d.calls)
	require.Len(t, out.msgs, 1)
	assert.Equal(t, reply.StoreUnavailable(), out.msgs[0].text)
}

func TestHandleEvent_Filters(t *testing.T) {
	users := fakeUsers{byMXID: map[string]int64{aliceID: 1, botID: 9}}
	b, d, out := newTestBot([]string{room}, users)
	ctx := context.Background()

	b.handleEvent(ctx, textEvent(botID, room, "echo"))
	b.handleEvent(ctx, textEvent(aliceID, "!elsewhere:example.com", "help"))
	b.handleEvent(ctx, textEvent(aliceID, room, "   "))

	notice := textEvent(aliceID, room, "help")
	notice.Content.Parsed.(*event.MessageEventContent).MsgType = event.MsgNotice
	b.handleEvent(ctx, notice)

	assert.Empty(t, d.calls)
	assert.Empty(t, out.msgs)
}

func TestServesRoom_EmptyMeansAll(t *testing.T) {
	b, _, _ := newTestBot(nil, fakeUsers{})
	assert.True(t, b.servesRoom(id.RoomID("!any:example.com")))
}

func TestSQLSyncStore(t *testing.T) {
	db, err := store.New(filepath.Join(t.TempDir(), "jarvis.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := NewSQLSyncStore(db.DB())
	ctx := context.Background()
	user := id.UserID(botID)

	got, err := s.LoadNextBatch(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.SaveNextBatch(ctx, user, "s1"))
	require.NoError(t, s.SaveNextBatch(ctx, user, "s2"))
	require.NoError(t, s.SaveFilterID(ctx, user, "f1"))

	got, err = s.LoadNextBatch(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "s2", got)

	got, err = s.LoadFilterID(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "f1", got)
}
