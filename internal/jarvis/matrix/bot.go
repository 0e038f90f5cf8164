// Package matrix exposes the Jarvis dispatcher as a Matrix bot. Each sender
// is mapped to a Jarvis user through the account's linked Matrix ID and gets
// the same replies as the HTTP chat endpoint, posted in-thread.
package matrix

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/jarvis/common/trace"
	"github.com/bdobrica/jarvis/internal/jarvis/dispatch"
	"github.com/bdobrica/jarvis/internal/jarvis/observability"
	"github.com/bdobrica/jarvis/internal/jarvis/reply"
	"github.com/bdobrica/jarvis/internal/jarvis/store"
)

// Config holds the Matrix connection settings.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// Rooms restricts the bot to these room IDs. Empty means every joined
	// room is served.
	Rooms []string
	// DB persists the sync token. Nil keeps it in memory, so history is
	// replayed on restart.
	DB *sql.DB
}

// UserResolver maps a Matrix ID to a Jarvis user, returning
// store.ErrNotFound for unlinked senders.
type UserResolver interface {
	UserByMatrixID(ctx context.Context, mxid string) (*store.User, error)
}

// Dispatcher answers one chat message.
type Dispatcher interface {
	Dispatch(ctx context.Context, userID int64, text string) dispatch.Outcome
}

// sender posts replies. It is implemented by the mautrix client and faked in
// tests.
type sender interface {
	reply(ctx context.Context, roomID id.RoomID, eventID id.EventID, text string) error
	notice(ctx context.Context, roomID id.RoomID, text string) error
}

// Bot connects a Dispatcher to Matrix rooms.
type Bot struct {
	cfg        Config
	users      UserResolver
	dispatcher Dispatcher
	client     *mautrix.Client
	out        sender
	stopCh     chan struct{}
}

// New creates a bot. It does not contact the homeserver until Start.
func New(cfg Config, users UserResolver, d Dispatcher) (*Bot, error) {
	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("matrix: create client: %w", err)
	}
	if cfg.DB != nil {
		client.Store = NewSQLSyncStore(cfg.DB)
	} else {
		slog.Warn("matrix: no database configured, sync position is kept in memory")
	}

	b := newBot(cfg, users, d, clientSender{client: client})
	b.client = client
	return b, nil
}

func newBot(cfg Config, users UserResolver, d Dispatcher, out sender) *Bot {
	return &Bot{
		cfg:        cfg,
		users:      users,
		dispatcher: d,
		out:        out,
		stopCh:     make(chan struct{}),
	}
}

// Start joins the configured rooms and syncs in the background, reconnecting
// with exponential back-off until Stop is called.
func (b *Bot) Start(ctx context.Context) error {
	syncer, ok := b.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return errors.New("matrix: unexpected syncer type")
	}
	syncer.OnEventType(event.EventMessage, b.handleEvent)

	for _, roomID := range b.cfg.Rooms {
		if err := b.joinRoom(ctx, id.RoomID(roomID)); err != nil {
			return fmt.Errorf("matrix: join %s: %w", roomID, err)
		}
	}

	go func() {
		const (
			backoffMin = 2 * time.Second
			backoffMax = 5 * time.Minute
		)
		backoff := backoffMin
		for {
			err := b.client.Sync()
			if err == nil {
				return
			}
			select {
			case <-b.stopCh:
				return
			default:
			}
			slog.Error("matrix: sync stopped, reconnecting", "err", err, "backoff", backoff)
			select {
			case <-b.stopCh:
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, backoffMax)
		}
	}()

	slog.Info("matrix bot started", "user_id", b.cfg.UserID, "rooms", len(b.cfg.Rooms))
	return nil
}

// Stop ends syncing. It is safe to call once.
func (b *Bot) Stop() {
	close(b.stopCh)
	if b.client != nil {
		b.client.StopSync()
	}
}

func (b *Bot) joinRoom(ctx context.Context, roomID id.RoomID) error {
	_, err := b.client.JoinRoomByID(ctx, roomID)
	if err != nil {
		// M_FORBIDDEN is also what homeservers answer when already joined.
		if errors.Is(err, mautrix.MForbidden) {
			slog.Warn("matrix: join forbidden or already a member, continuing", "room", roomID)
			return nil
		}
		return err
	}
	return nil
}

func (b *Bot) servesRoom(roomID id.RoomID) bool {
	return len(b.cfg.Rooms) == 0 || slices.Contains(b.cfg.Rooms, roomID.String())
}

// handleEvent filters incoming events and answers text messages.
func (b *Bot) handleEvent(ctx context.Context, evt *event.Event) {
	if evt.Sender == id.UserID(b.cfg.UserID) {
		return
	}
	msg := evt.Content.AsMessage()
	if msg == nil || msg.MsgType != event.MsgText {
		return
	}
	if !b.servesRoom(evt.RoomID) {
		return
	}
	b.answer(ctx, evt.RoomID, evt.ID, evt.Sender, msg.Body)
}

// answer dispatches body on behalf of sender and posts the result.
func (b *Bot) answer(ctx context.Context, roomID id.RoomID, eventID id.EventID, senderID id.UserID, body string) {
	ctx, _ = trace.Ensure(ctx)
	log := observability.WithTrace(ctx).With("room", roomID, "sender", senderID)

	body = strings.TrimSpace(body)
	if body == "" {
		return
	}

	user, err := b.users.UserByMatrixID(ctx, senderID.String())
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Error("matrix: user lookup failed", "err", err)
			b.post(ctx, log, roomID, eventID, reply.StoreUnavailable())
			return
		}
		log.Info("matrix: message from unlinked sender")
		if err := b.out.notice(ctx, roomID, reply.Unlinked()); err != nil {
			log.Warn("matrix: send notice failed", "err", err)
		}
		return
	}

	out := b.dispatcher.Dispatch(ctx, user.ID, body)
	log.Debug("matrix: dispatched", "intent", out.Intent, "mutated", out.Mutated)
	b.post(ctx, log, roomID, eventID, out.Reply)
}

func (b *Bot) post(ctx context.Context, log *slog.Logger, roomID id.RoomID, eventID id.EventID, text string) {
	if err := b.out.reply(ctx, roomID, eventID, text); err != nil {
		log.Warn("matrix: send reply failed", "err", err)
	}
}

type clientSender struct {
	client *mautrix.Client
}

func (s clientSender) reply(ctx context.Context, roomID id.RoomID, eventID id.EventID, text string) error {
	content := event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    text,
		RelatesTo: &event.RelatesTo{
			InReplyTo: &event.InReplyTo{EventID: eventID},
		},
	}
	_, err := s.client.SendMessageEvent(ctx, roomID, event.EventMessage, &content)
	return err
}

func (s clientSender) notice(ctx context.Context, roomID id.RoomID, text string) error {
	content := event.MessageEventContent{MsgType: event.MsgNotice, Body: text}
	_, err := s.client.SendMessageEvent(ctx, roomID, event.EventMessage, &content)
	return err
}
