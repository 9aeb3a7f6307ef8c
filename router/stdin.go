package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tailored-agentic-units/evalkernel/engine"
	"github.com/tailored-agentic-units/evalkernel/observability"
	"github.com/tailored-agentic-units/evalkernel/protocol"
)

// FocusPolicy chooses the frontend identity that receives the input request
// raised while handling the request whose header is parent.
type FocusPolicy func(parent protocol.Header) string

// SessionFocus gives the keyboard to the frontend whose request is executing.
func SessionFocus(parent protocol.Header) string {
	return parent.Session
}

// Keyboard is a frontend's stdin channel. At most one input request is
// outstanding on it at a time.
type Keyboard struct {
	identity string
	requests *MessageChannel[*protocol.Envelope]
	lease    chan struct{}
	done     chan struct{}
	detach   sync.Once
	router   *Router
}

type inputWait struct {
	keyboard *Keyboard
	reply    chan *protocol.Envelope
}

func (k *Keyboard) Identity() string {
	return k.identity
}

// Requests returns the next input request routed to this frontend.
func (k *Keyboard) Requests(ctx context.Context) (*protocol.Envelope, error) {
	return k.requests.Receive(ctx)
}

// Reply delivers the frontend's input_reply. The reply must answer an
// outstanding request of this keyboard.
func (k *Keyboard) Reply(env *protocol.Envelope) error {
	if env.MsgType != protocol.InputReply {
		return fmt.Errorf("%w: %s", ErrUnexpectedReply, env.MsgType)
	}

	r := k.router
	r.keyboardsMutex.RLock()
	wait, exists := r.inputs[env.ParentHeader.MsgID]
	r.keyboardsMutex.RUnlock()

	if !exists || wait.keyboard != k {
		return fmt.Errorf("%w: parent %q", ErrUnexpectedReply, env.ParentHeader.MsgID)
	}

	select {
	case wait.reply <- env:
		return nil
	default:
		return fmt.Errorf("%w: parent %q already answered", ErrUnexpectedReply, env.ParentHeader.MsgID)
	}
}

// Detach removes the keyboard. An input request waiting on it fails.
func (k *Keyboard) Detach() {
	k.detach.Do(func() {
		r := k.router
		r.keyboardsMutex.Lock()
		if r.keyboards[k.identity] == k {
			delete(r.keyboards, k.identity)
		}
		r.keyboardsMutex.Unlock()

		k.requests.Close()
		close(k.done)

		r.logger.DebugContext(r.ctx, "keyboard detached", slog.String("identity", k.identity))
	})
}

// Attach registers the stdin channel of the frontend identity.
func (r *Router) Attach(identity string) (*Keyboard, error) {
	r.keyboardsMutex.Lock()
	defer r.keyboardsMutex.Unlock()

	if r.ctx.Err() != nil {
		return nil, ErrClosed
	}
	if _, exists := r.keyboards[identity]; exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyAttached, identity)
	}

	kb := &Keyboard{
		identity: identity,
		requests: NewMessageChannel[*protocol.Envelope](r.ctx, 1),
		lease:    make(chan struct{}, 1),
		done:     make(chan struct{}),
		router:   r,
	}
	r.keyboards[identity] = kb

	r.logger.DebugContext(r.ctx, "keyboard attached", slog.String("identity", identity))
	return kb, nil
}

// Input asks the focused frontend for a line of input. The keyboard lease is
// held until the matching reply arrives or ctx ends.
func (r *Router) Input(ctx context.Context, parent protocol.Header, prompt string) (string, error) {
	identity := r.focus(parent)

	r.keyboardsMutex.RLock()
	kb, exists := r.keyboards[identity]
	r.keyboardsMutex.RUnlock()

	if !exists {
		return "", fmt.Errorf("%w: %w: %q", engine.ErrNoInput, ErrNoKeyboard, identity)
	}

	if r.inputTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.inputTimeout)
		defer cancel()
	}

	select {
	case kb.lease <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	case <-kb.done:
		return "", fmt.Errorf("%w: %w: %q", engine.ErrNoInput, ErrNoKeyboard, identity)
	}
	defer func() { <-kb.lease }()

	req, err := r.session.Message(protocol.InputRequest, protocol.InputRequestContent{Prompt: prompt}, parent)
	if err != nil {
		return "", err
	}

	wait := &inputWait{keyboard: kb, reply: make(chan *protocol.Envelope, 1)}
	r.keyboardsMutex.Lock()
	r.inputs[req.Header.MsgID] = wait
	r.keyboardsMutex.Unlock()

	defer func() {
		r.keyboardsMutex.Lock()
		delete(r.inputs, req.Header.MsgID)
		r.keyboardsMutex.Unlock()
	}()

	if err := kb.requests.Send(ctx, req); err != nil {
		return "", fmt.Errorf("%w: %w", engine.ErrNoInput, err)
	}

	r.metrics.RecordInputRequest(1)
	r.observer.OnEvent(ctx, observability.NewEvent(EventInput, observability.LevelVerbose, "router.Input", map[string]any{
		"identity": identity,
		"parent":   parent.MsgID,
	}))

	select {
	case reply := <-wait.reply:
		var content protocol.InputReplyContent
		if err := reply.Decode(&content); err != nil {
			return "", err
		}
		return content.Value, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-kb.done:
		return "", fmt.Errorf("%w: %w: %q", engine.ErrNoInput, ErrNoKeyboard, identity)
	}
}
