package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/wagate/gateway/internal/models"
)

const (
	DefaultHandshakeTimeout = 60 * time.Second
	DefaultCodeTTL          = 45 * time.Second
)

type handshakeResult struct {
	code string
	err  error
}

type waiter struct {
	result chan handshakeResult
	once   sync.Once
	timer  *time.Timer
}

// resolve delivers the outcome exactly once. It reports whether this call
// was the one that resolved the waiter.
func (w *waiter) resolve(code string, err error) bool {
	resolved := false
	w.once.Do(func() {
		w.result <- handshakeResult{code: code, err: err}
		resolved = true
	})
	if resolved && w.timer != nil {
		w.timer.Stop()
	}
	return resolved
}

type handshakeSlot struct {
	waiter *waiter
	code   string
	codeAt time.Time
}

// Handshakes coordinates QR waiters. Each session holds at most one pending
// waiter; registering a new one replaces the previous, which is left to run
// out its own timer. The most recent code of the current scan phase is kept
// so a waiter registering after it was emitted does not miss it.
type Handshakes struct {
	mu      sync.Mutex
	slots   map[string]*handshakeSlot
	timeout time.Duration
	codeTTL time.Duration
	now     func() time.Time
}

func NewHandshakes(timeout, codeTTL time.Duration) *Handshakes {
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	if codeTTL <= 0 {
		codeTTL = DefaultCodeTTL
	}
	return &Handshakes{
		slots:   make(map[string]*handshakeSlot),
		timeout: timeout,
		codeTTL: codeTTL,
		now:     time.Now,
	}
}

// Handshake is a registered wait for the next QR code of one session.
type Handshake struct {
	coordinator *Handshakes
	sessionID   string
	w           *waiter
}

// Register installs a waiter for id and returns it.
func (h *Handshakes) Register(id string) *Handshake {
	w := &waiter{result: make(chan handshakeResult, 1)}
	hs := &Handshake{coordinator: h, sessionID: id, w: w}

	h.mu.Lock()
	slot := h.slot(id)

	if len(slot.code) > 0 && h.now().Sub(slot.codeAt) < h.codeTTL {
		code := slot.code
		h.mu.Unlock()
		w.resolve(code, nil)
		return hs
	}

	slot.waiter = w
	w.timer = time.AfterFunc(h.timeout, func() {
		h.expire(id, w)
	})
	h.mu.Unlock()

	return hs
}

// Wait blocks until a code arrives, the waiter times out or is superseded,
// or ctx ends.
func (hs *Handshake) Wait(ctx context.Context) (string, error) {
	select {
	case r := <-hs.w.result:
		return r.code, r.err
	case <-ctx.Done():
		hs.coordinator.withdraw(hs.sessionID, hs.w)
		hs.w.resolve("", ctx.Err())
		r := <-hs.w.result
		return r.code, r.err
	}
}

// Cancel withdraws the waiter without waiting.
func (hs *Handshake) Cancel(err error) {
	hs.coordinator.withdraw(hs.sessionID, hs.w)
	hs.w.resolve("", err)
}

// Deliver records a new code for id and hands it to the pending waiter, if
// any. It reports whether a waiter received the code.
func (h *Handshakes) Deliver(id, code string) bool {
	h.mu.Lock()
	slot := h.slot(id)
	slot.code = code
	slot.codeAt = h.now()
	w := slot.waiter
	slot.waiter = nil
	h.mu.Unlock()

	if w == nil {
		return false
	}
	return w.resolve(code, nil)
}

// Supersede ends the scan phase for id: the pending waiter, if any, is
// resolved with err and the cached code is forgotten.
func (h *Handshakes) Supersede(id string, err error) {
	h.mu.Lock()
	slot, ok := h.slots[id]
	delete(h.slots, id)
	h.mu.Unlock()

	if ok && slot.waiter != nil {
		slot.waiter.resolve("", err)
	}
}

// Pending reports whether a waiter is registered for id.
func (h *Handshakes) Pending(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	slot, ok := h.slots[id]
	return ok && slot.waiter != nil
}

func (h *Handshakes) slot(id string) *handshakeSlot {
	slot, ok := h.slots[id]
	if !ok {
		slot = &handshakeSlot{}
		h.slots[id] = slot
	}
	return slot
}

func (h *Handshakes) expire(id string, w *waiter) {
	h.withdraw(id, w)
	w.resolve("", models.ErrHandshakeTimeout)
}

// withdraw clears the slot only if w is still the registered waiter.
func (h *Handshakes) withdraw(id string, w *waiter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if slot, ok := h.slots[id]; ok && slot.waiter == w {
		slot.waiter = nil
	}
}
