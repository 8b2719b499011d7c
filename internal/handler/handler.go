package handler

import "wrpl-inspect/pkg/wrpl"

// Action represents the result action from a handler.
type Action int

const (
	// Continue passes the record to the next handler in the chain.
	Continue Action = iota
	// Handled indicates the handler has fully consumed the record.
	Handled
	// Drop discards the record for the rest of the chain.
	Drop
)

// Result is returned by handler methods. A non-nil Error stops the run.
type Result struct {
	Action Action
	Error  error
}

// Handler is the interface that all output sinks implement.
type Handler interface {
	// Name returns the handler name for logging and config.
	Name() string

	// OnBegin is called once before the first record.
	OnBegin(ctx *Context) Result

	// OnPacket is called for each decoded packet. Handlers can:
	// - Write or count the record (return Continue)
	// - Hide it from later handlers (return Drop)
	// - Claim it (return Handled)
	OnPacket(ctx *Context, rec *wrpl.Record) Result

	// OnNote is called for every diagnostic that is not a packet.
	OnNote(ctx *Context, n wrpl.Note)

	// OnEnd is called once with the run summary.
	OnEnd(ctx *Context, sum wrpl.Summary) Result
}

// Chain executes handlers in sequence. It implements wrpl.Sink.
type Chain struct {
	handlers []Handler
	ctx      *Context
	err      error
}

var _ wrpl.Sink = (*Chain)(nil)

// NewChain creates a new handler chain.
func NewChain(handlers ...Handler) *Chain {
	return &Chain{handlers: handlers, ctx: NewContext(wrpl.RunInfo{})}
}

// Begin starts a run on every handler.
func (c *Chain) Begin(info wrpl.RunInfo) {
	c.ctx = NewContext(info)
	c.err = nil
	for _, h := range c.handlers {
		c.record(h.OnBegin(c.ctx))
	}
}

// Packet passes rec down the chain until a handler stops it.
// Returns the first handler error.
func (c *Chain) Packet(rec *wrpl.Record) error {
	if c.err != nil {
		return c.err
	}
	for _, h := range c.handlers {
		result := h.OnPacket(c.ctx, rec)
		if result.Error != nil {
			c.record(result)
			return result.Error
		}
		if result.Action != Continue {
			return nil
		}
	}
	return nil
}

// Note notifies all handlers.
func (c *Chain) Note(n wrpl.Note) {
	for _, h := range c.handlers {
		h.OnNote(c.ctx, n)
	}
}

// End notifies all handlers of the end of the run.
func (c *Chain) End(sum wrpl.Summary) {
	for _, h := range c.handlers {
		c.record(h.OnEnd(c.ctx, sum))
	}
}

// Err returns the first error a handler reported during the run.
func (c *Chain) Err() error {
	return c.err
}

// Context returns the context of the current run.
func (c *Chain) Context() *Context {
	return c.ctx
}

// Handlers returns the list of handlers in the chain.
func (c *Chain) Handlers() []Handler {
	return c.handlers
}

func (c *Chain) record(r Result) {
	if r.Error != nil && c.err == nil {
		c.err = r.Error
	}
}
