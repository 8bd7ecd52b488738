// Package upstream drives the single privileged Telegram account that
// talks to the lookup bot: it sends the /inn command, waits for the
// bot to edit its reply with a button menu, clicks the requested
// control, and collects whatever messages follow. It owns exactly one
// MTProto connection; the queue above it guarantees only one call is
// ever in flight.
package upstream

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gotd/contrib/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"go.uber.org/zap"
)

// Signal classifies a raw upstream failure into the vocabulary the
// classifier and breaker understand.
type Signal int

const (
	SignalNone Signal = iota
	SignalFloodWait
	SignalSlowMode
	SignalAccountFlood
	SignalForbidden
)

// Error wraps a classified upstream failure. Wait is populated for
// the wait-style signals (seconds the upstream asked us to pause).
type Error struct {
	Signal Signal
	Wait   time.Duration
	Err    error
}

func (e *Error) Error() string {
	if e.Wait > 0 {
		return fmt.Sprintf("upstream: %v (wait %s)", e.Err, e.Wait)
	}
	return fmt.Sprintf("upstream: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Config tunes the driver's waits. All fields are defaults, not
// invariants — an operator may retune them without changing behavior.
type Config struct {
	MinControls           int
	EditWatchTimeout      time.Duration
	EditWatchQuietTimeout time.Duration
	CollectTimeout        time.Duration
	CollectIdleTimeout    time.Duration
	CollectMaxEvents      int
}

// Control is one flattened inline keyboard button.
type Control struct {
	Row, Col int
	Label    string
	Data     []byte
}

// Driver owns the MTProto connection and the single conversation with
// the lookup bot.
type Driver struct {
	cfg    Config
	logger *zap.Logger

	appID   int
	appHash string

	botUsername string
	client      *telegram.Client
	api         *tg.Client
	sender      *message.Sender
	dispatcher  tg.UpdateDispatcher

	peer   tg.InputPeerClass
	peerMu sync.RWMutex

	genCounter int64
	waiters    sync.Map // generation(int64) -> *waiter
}

type waiter struct {
	kind   string // "new", "edit" or "collect"
	target int    // target message ID, for edits
	ch     chan *tg.Message
}

// NewDriver constructs a driver bound to a single account. Connect
// must be called before any conversation method.
func NewDriver(appID int, appHash, sessionPath, botUsername string, cfg Config, logger *zap.Logger) *Driver {
	d := &Driver{
		cfg:         cfg,
		logger:      logger,
		appID:       appID,
		appHash:     appHash,
		botUsername: botUsername,
	}

	d.dispatcher = tg.NewUpdateDispatcher()
	d.dispatcher.OnNewMessage(d.onNewMessage)
	d.dispatcher.OnEditMessage(d.onEditMessage)

	storage := &session.FileStorage{Path: sessionPath}
	d.client = telegram.NewClient(appID, appHash, telegram.Options{
		SessionStorage: storage,
		UpdateHandler:  d.dispatcher,
		Logger:         logger,
	})

	return d
}

// Connect runs the MTProto connection in the background and blocks
// until the bot peer is resolved or ctx is cancelled. The returned
// stop function tears the connection down; callers should defer it.
func (d *Driver) Connect(ctx context.Context) (stop func(), err error) {
	runCtx, cancel := context.WithCancel(context.Background())
	ready := make(chan error, 1)

	go func() {
		runErr := d.client.Run(runCtx, func(ctx context.Context) error {
			d.api = d.client.API()
			d.sender = message.NewSender(d.api)

			if err := d.resolvePeer(ctx); err != nil {
				ready <- err
				return err
			}
			ready <- nil

			<-ctx.Done()
			return nil
		})
		if runErr != nil {
			d.logger.Warn("upstream connection ended", zap.Error(runErr))
		}
	}()

	select {
	case err := <-ready:
		if err != nil {
			cancel()
			return nil, fmt.Errorf("upstream: connect: %w", err)
		}
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}

	return cancel, nil
}

func (d *Driver) resolvePeer(ctx context.Context) error {
	username := strings.TrimPrefix(d.botUsername, "@")
	resolved, err := d.api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: username})
	if err != nil {
		return fmt.Errorf("resolve %s: %w", d.botUsername, err)
	}

	for _, u := range resolved.Users {
		user, ok := u.(*tg.User)
		if !ok {
			continue
		}
		d.peerMu.Lock()
		d.peer = &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash}
		d.peerMu.Unlock()
		d.logger.Info("resolved upstream bot", zap.String("username", d.botUsername), zap.Int64("user_id", user.ID))
		return nil
	}

	return fmt.Errorf("resolve %s: no user in response", d.botUsername)
}

func (d *Driver) peerSnapshot() tg.InputPeerClass {
	d.peerMu.RLock()
	defer d.peerMu.RUnlock()
	return d.peer
}

// SendAndWait sends text to the bot and waits for its first reply,
// including whatever inline keyboard it already carries — a reply that
// already meets MinControls lets the caller skip WaitEdit entirely.
func (d *Driver) SendAndWait(ctx context.Context, text string) (replyText string, replyMsgID int, controls []Control, err error) {
	peer := d.peerSnapshot()
	if peer == nil {
		return "", 0, nil, fmt.Errorf("upstream: not connected")
	}

	gen := atomic.AddInt64(&d.genCounter, 1)
	w := &waiter{kind: "new", ch: make(chan *tg.Message, 4)}
	d.waiters.Store(gen, w)
	defer d.waiters.Delete(gen)

	if _, err := d.sender.To(peer).Text(ctx, text); err != nil {
		return "", 0, nil, classifyUpstreamErr(err)
	}

	select {
	case msg := <-w.ch:
		return msg.Message, msg.ID, flattenControls(msg.ReplyMarkup), nil
	case <-ctx.Done():
		return "", 0, nil, ctx.Err()
	}
}

// WaitEdit blocks until the message identified by msgID has been
// edited to carry at least MinControls buttons, the overall timeout
// elapses, or a quiet period with no edits elapses — whichever comes
// first — returning the best (most recently observed) state.
func (d *Driver) WaitEdit(ctx context.Context, msgID int, initialText string, initialControls []Control) (text string, controls []Control, err error) {
	if len(initialControls) >= max(1, d.cfg.MinControls) {
		return initialText, initialControls, nil
	}

	gen := atomic.AddInt64(&d.genCounter, 1)
	w := &waiter{kind: "edit", target: msgID, ch: make(chan *tg.Message, 8)}
	d.waiters.Store(gen, w)
	defer d.waiters.Delete(gen)

	best := initialText
	bestControls := initialControls

	deadline := time.NewTimer(d.cfg.EditWatchTimeout)
	defer deadline.Stop()

	for {
		quiet := time.NewTimer(d.cfg.EditWatchQuietTimeout)
		select {
		case <-deadline.C:
			quiet.Stop()
			return best, bestControls, nil
		case <-ctx.Done():
			quiet.Stop()
			return best, bestControls, ctx.Err()
		case <-quiet.C:
			return best, bestControls, nil
		case msg := <-w.ch:
			quiet.Stop()
			best = msg.Message
			bestControls = flattenControls(msg.ReplyMarkup)
			if len(bestControls) >= max(1, d.cfg.MinControls) {
				return best, bestControls, nil
			}
		}
	}
}

// FindControl locates a control by label: exact normalized equality
// first, then substring containment.
func FindControl(controls []Control, label string) (Control, bool) {
	want := normalizeLabel(label)

	for _, c := range controls {
		if normalizeLabel(c.Label) == want {
			return c, true
		}
	}
	for _, c := range controls {
		if strings.Contains(normalizeLabel(c.Label), want) {
			return c, true
		}
	}
	return Control{}, false
}

func normalizeLabel(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func flattenControls(markup tg.ReplyMarkupClass) []Control {
	inline, ok := markup.(*tg.ReplyInlineMarkup)
	if !ok {
		return nil
	}

	var out []Control
	for i, row := range inline.Rows {
		for j, btn := range row.Buttons {
			cb, ok := btn.(*tg.KeyboardButtonCallback)
			if !ok {
				continue
			}
			out = append(out, Control{Row: i, Col: j, Label: cb.Text, Data: cb.Data})
		}
	}
	return out
}

// ClickAndCollect clicks the control at (row,col) on msgID and
// collects new/edited messages from the bot until collectTimeout
// elapses, idleTimeout passes with no new activity, or maxEvents is
// reached.
func (d *Driver) ClickAndCollect(ctx context.Context, msgID int, c Control) ([]string, error) {
	peer := d.peerSnapshot()
	if peer == nil {
		return nil, fmt.Errorf("upstream: not connected")
	}

	gen := atomic.AddInt64(&d.genCounter, 1)
	w := &waiter{kind: "collect", ch: make(chan *tg.Message, 32)}
	d.waiters.Store(gen, w)
	defer d.waiters.Delete(gen)

	_, err := d.api.MessagesGetBotCallbackAnswer(ctx, &tg.MessagesGetBotCallbackAnswerRequest{
		Peer:  peer,
		MsgID: msgID,
		Data:  c.Data,
	})
	if err != nil {
		return nil, classifyUpstreamErr(err)
	}

	var collected []string
	deadline := time.NewTimer(d.cfg.CollectTimeout)
	defer deadline.Stop()

	for {
		if len(collected) >= d.cfg.CollectMaxEvents {
			return collected, nil
		}

		idle := time.NewTimer(d.cfg.CollectIdleTimeout)
		select {
		case <-deadline.C:
			idle.Stop()
			return collected, nil
		case <-ctx.Done():
			idle.Stop()
			return collected, ctx.Err()
		case <-idle.C:
			return collected, nil
		case msg := <-w.ch:
			idle.Stop()
			collected = append(collected, msg.Message)
		}
	}
}

func (d *Driver) onNewMessage(ctx context.Context, entities tg.Entities, u *tg.UpdateNewMessage) error {
	msg, ok := u.Message.(*tg.Message)
	if !ok {
		return nil
	}
	d.broadcast(msg, "new")
	return nil
}

func (d *Driver) onEditMessage(ctx context.Context, entities tg.Entities, u *tg.UpdateEditMessage) error {
	msg, ok := u.Message.(*tg.Message)
	if !ok {
		return nil
	}
	d.broadcast(msg, "edit")
	return nil
}

func (d *Driver) broadcast(msg *tg.Message, kind string) {
	bot, ok := d.peerSnapshot().(*tg.InputPeerUser)
	from, isUser := msg.PeerID.(*tg.PeerUser)
	if msg.Out || !ok || !isUser || from.UserID != bot.UserID {
		return
	}

	d.waiters.Range(func(_, v any) bool {
		w := v.(*waiter)
		switch w.kind {
		case "new":
			if kind == "new" {
				select {
				case w.ch <- msg:
				default:
				}
			}
		case "edit":
			if kind == "edit" && msg.ID == w.target {
				select {
				case w.ch <- msg:
				default:
				}
			}
		case "collect":
			select {
			case w.ch <- msg:
			default:
			}
		}
		return true
	})
}

// classifyUpstreamErr turns a raw MTProto RPC error into an *Error
// carrying the signal the breaker and classifier expect.
func classifyUpstreamErr(err error) error {
	var rpcErr *tgerr.Error
	if !tgerr.As(err, &rpcErr) {
		return &Error{Signal: SignalNone, Err: err}
	}

	switch {
	case rpcErr.Type == "SLOWMODE_WAIT":
		return &Error{Signal: SignalSlowMode, Wait: time.Duration(rpcErr.Argument) * time.Second, Err: err}
	case rpcErr.IsCode(420): // FLOOD_WAIT_<n> and other 420 waits
		return &Error{Signal: SignalFloodWait, Wait: time.Duration(rpcErr.Argument) * time.Second, Err: err}
	case rpcErr.Type == "PEER_FLOOD":
		return &Error{Signal: SignalAccountFlood, Err: err}
	case rpcErr.Type == "CHAT_WRITE_FORBIDDEN", rpcErr.Type == "USER_BANNED_IN_CHANNEL", rpcErr.Type == "USER_IS_BLOCKED":
		return &Error{Signal: SignalForbidden, Err: err}
	default:
		return &Error{Signal: SignalNone, Err: err}
	}
}
