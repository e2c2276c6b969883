// Package hub owns the roster of chatters and fans messages out to them.
//
// A single goroutine (Run) processes every inbound frame in arrival order and
// is the only code that reads or writes the roster, so no locks guard it.
// Connections talk to the hub by message passing through Submit.
package hub

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"reflect"
	"slices"
	"time"

	"github.com/samber/lo"

	"github.com/Tyrowin/chathub/internal/protocol"
)

const defaultQueueSize = 256

var (
	// ErrHubStopped is returned when the hub no longer accepts work.
	ErrHubStopped = errors.New("hub stopped")
	// ErrNilHandle is returned when a frame is submitted without a handle.
	ErrNilHandle = errors.New("nil handle")
)

// Options tune a Hub. The zero value gives the documented protocol behavior.
type Options struct {
	// QueueSize is the capacity of the ingestion queue.
	QueueSize int
	// RejectDuplicates sends a LoginRejected reply to a client asking for a
	// name that is already taken instead of ignoring it.
	RejectDuplicates bool
	// VerifyChatter replaces the chatter of a chat message with the name the
	// sending connection logged in with.
	VerifyChatter bool
	// Clock stamps chat messages. Defaults to time.Now.
	Clock func() time.Time
}

// request is one unit of work executed inside the hub goroutine.
type request interface {
	apply(h *Hub)
}

type inboundFrame struct {
	handle Handle
	raw    []byte
}

func (f inboundFrame) apply(h *Hub) { h.dispatch(f.handle, f.raw) }

type rosterRequest struct {
	reply chan []string
}

func (r rosterRequest) apply(h *Hub) { r.reply <- h.names() }

// registration is one successful login. Its address identifies the entry, so
// the hub never compares handles to tell registrations apart.
type registration struct {
	handle Handle
}

// Hub is the registry of display names and the broadcaster.
type Hub struct {
	log              *slog.Logger
	requests         chan request
	chatters         map[string]*registration
	rejectDuplicates bool
	verifyChatter    bool
	now              func() time.Time
	ctx              context.Context
	cancel           context.CancelFunc
	done             chan struct{}
}

// New creates a Hub. Call Run in its own goroutine before submitting frames.
func New(log *slog.Logger, opts Options) *Hub {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		log:              log,
		requests:         make(chan request, opts.QueueSize),
		chatters:         make(map[string]*registration),
		rejectDuplicates: opts.RejectDuplicates,
		verifyChatter:    opts.VerifyChatter,
		now:              opts.Clock,
		ctx:              ctx,
		cancel:           cancel,
		done:             make(chan struct{}),
	}
}

// Run processes queued requests one at a time until ctx is cancelled or
// Shutdown is called. It must be called exactly once.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	defer h.cancel()

	h.log.Info("Hub started")
	for {
		select {
		case <-ctx.Done():
			h.log.Info("Hub stopped", "chatters", len(h.chatters))
			return ctx.Err()
		case <-h.ctx.Done():
			h.log.Info("Hub stopped", "chatters", len(h.chatters))
			return nil
		case req := <-h.requests:
			req.apply(h)
		}
	}
}

// Submit queues one raw client frame sent over handle. It blocks while the
// queue is full.
func (h *Hub) Submit(ctx context.Context, handle Handle, raw []byte) error {
	if handle == nil {
		return ErrNilHandle
	}
	return h.enqueue(ctx, inboundFrame{handle: handle, raw: raw})
}

// Roster returns the registered names, sorted. The snapshot is taken inside
// the hub goroutine, after every frame submitted before the call.
func (h *Hub) Roster(ctx context.Context) ([]string, error) {
	reply := make(chan []string, 1)
	if err := h.enqueue(ctx, rosterRequest{reply: reply}); err != nil {
		return nil, err
	}
	select {
	case names := <-reply:
		return names, nil
	case <-h.ctx.Done():
		return nil, ErrHubStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) enqueue(ctx context.Context, req request) error {
	select {
	case <-h.ctx.Done():
		return ErrHubStopped
	default:
	}

	select {
	case h.requests <- req:
		return nil
	case <-h.ctx.Done():
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops the hub and waits for Run to return.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("Initiating hub shutdown...")
	h.cancel()

	select {
	case <-h.done:
		h.log.Info("Hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("Hub shutdown timeout reached")
		return context.DeadlineExceeded
	}
}

func (h *Hub) dispatch(handle Handle, raw []byte) {
	envelope, err := protocol.Decode(raw)
	if err != nil {
		h.log.Warn("Dropping inbound frame", "error", err)
		return
	}

	switch e := envelope.(type) {
	case protocol.Login:
		h.handleLogin(e.Name, handle)
	case protocol.Chat:
		h.handleChat(e, handle)
	}
}

func (h *Hub) handleLogin(name string, handle Handle) {
	if _, taken := h.chatters[name]; taken {
		h.log.Info("Login ignored, name already taken", "name", name)
		if h.rejectDuplicates {
			h.reject(name, handle)
		}
		return
	}

	reg := &registration{handle: handle}
	h.chatters[name] = reg
	h.log.Info("Chatter joined", "name", name, "chatters", len(h.chatters))

	h.broadcast(protocol.JoinNotice{Text: name + " joined!"})
	h.unicast(name, reg, protocol.LoginAck{Text: name})
	h.broadcast(protocol.RosterSnapshot{Chatters: h.names()})
}

func (h *Hub) handleChat(chat protocol.Chat, handle Handle) {
	chatter := chat.Chatter
	if h.verifyChatter {
		name, ok := lo.FindKeyBy(h.chatters, func(_ string, reg *registration) bool {
			return sameHandle(reg.handle, handle)
		})
		if !ok {
			h.log.Warn("Dropping chat from a connection that is not logged in", "chatter", chat.Chatter)
			return
		}
		chatter = name
	}

	h.broadcast(protocol.ChatMessage{
		Chatter: chatter,
		Time:    uint64(h.now().UnixMilli()),
		Text:    chat.Text,
	})
}

// reject answers a duplicate login. The requester is not registered, so a
// failed delivery has nothing to evict.
func (h *Hub) reject(name string, handle Handle) {
	payload, ok := h.encode(protocol.LoginRejected{Text: name + " is already taken"})
	if !ok {
		return
	}
	if err := handle.Deliver(payload); err != nil {
		h.log.Debug("Rejection not delivered", "name", name, "error", err)
	}
}

// unicast delivers msg to the chatter registered as name, provided reg is
// still the registration bound to it.
func (h *Hub) unicast(name string, reg *registration, msg protocol.Outbound) {
	if current, ok := h.chatters[name]; !ok || current != reg {
		return
	}
	payload, ok := h.encode(msg)
	if !ok {
		return
	}
	if err := reg.handle.Deliver(payload); err != nil {
		h.evict(name, reg, err)
	}
}

// broadcast delivers msg to every chatter registered when it starts, then
// evicts the ones whose delivery failed.
func (h *Hub) broadcast(msg protocol.Outbound) {
	payload, ok := h.encode(msg)
	if !ok {
		return
	}

	type failure struct {
		name string
		reg  *registration
		err  error
	}
	var failed []failure
	for name, reg := range maps.Clone(h.chatters) {
		if err := reg.handle.Deliver(payload); err != nil {
			failed = append(failed, failure{name: name, reg: reg, err: err})
		}
	}

	for _, f := range failed {
		h.evict(f.name, f.reg, f.err)
	}
}

func (h *Hub) evict(name string, reg *registration, cause error) {
	if current, ok := h.chatters[name]; !ok || current != reg {
		return
	}
	delete(h.chatters, name)
	h.log.Info("Chatter evicted after failed delivery", "name", name, "error", cause, "chatters", len(h.chatters))
}

func (h *Hub) encode(msg protocol.Outbound) ([]byte, bool) {
	payload, err := protocol.Encode(msg)
	if err != nil {
		h.log.Error("Unable to encode outbound message", "error", err)
		return nil, false
	}
	return payload, true
}

// sameHandle reports whether a and b are the same connection. Handles whose
// dynamic value cannot be compared never match.
func sameHandle(a, b Handle) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if !va.IsValid() || !vb.IsValid() || va.Type() != vb.Type() {
		return false
	}
	if !va.Comparable() || !vb.Comparable() {
		return false
	}
	return va.Equal(vb)
}

func (h *Hub) names() []string {
	names := lo.Keys(h.chatters)
	slices.Sort(names)
	return names
}
