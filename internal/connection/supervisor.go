package connection

import (
	"context"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/socketmode/internal/envelope"
)

// run is the control loop. It is the only writer of state, generation and
// the active handle.
func (c *client) run() {
	defer close(c.done)
	defer c.cancel()

	var h *handle
	for {
		select {
		case <-c.ctx.Done():
			c.shutdown(h)
			return

		case req := <-c.connectReq:
			if c.State() != StateIdle {
				req.reply <- nil
				continue
			}
			nh, err := c.connectFirst(req.ctx)
			if err == nil {
				h = nh
			}
			req.reply <- err

		case ev := <-c.events:
			if h == nil || ev.gen != h.gen {
				c.logger.Debug("ignoring event from superseded connection", "gen", ev.gen)
				continue
			}
			h = c.handleEvent(h, ev)
		}
	}
}

func (c *client) connectFirst(ctx context.Context) (*handle, error) {
	c.setState(StateConnecting)

	// Close must be able to abort a dial started with the caller's context.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	h, err := c.establish(ctx)
	if err != nil {
		c.logger.Warn("connect failed", "error", err)
		c.setState(StateIdle)
		return nil, err
	}

	c.install(h)
	return h, nil
}

// establish acquires a fresh URL and dials it. The new handle is not
// started until install.
func (c *client) establish(ctx context.Context) (*handle, error) {
	rawURL, err := c.acquirer.AcquireURL(ctx)
	if err != nil {
		return nil, &AcquisitionError{Err: err}
	}
	if c.cfg.DebugReconnects {
		rawURL = withDebugReconnects(rawURL)
	}

	conn, resp, err := c.dialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		herr := &HandshakeError{Err: err}
		if resp != nil {
			herr.StatusCode = resp.StatusCode
		}
		return nil, herr
	}

	return c.newHandle(conn, c.gen.Load()+1), nil
}

// install makes h the active generation.
func (c *client) install(h *handle) {
	c.gen.Store(h.gen)
	c.active.Store(h)
	h.start()

	c.metrics.SetGeneration(h.gen)
	c.setState(StateConnected)
	h.logger.Info("connected")
}

func (c *client) handleEvent(h *handle, ev event) *handle {
	if ev.kind == eventDisconnect {
		switch ev.reason {
		case envelope.ReasonWarning, envelope.ReasonRefreshRequested:
			if c.cfg.AutoReconnect {
				return c.refresh(h, ev.reason)
			}
		}
		return c.recover(h, ev.cause, websocket.CloseNormalClosure, nil)
	}
	return c.recover(h, ev.cause, 0, ev.err)
}

// refresh opens the replacement connection before retiring h.
func (c *client) refresh(h *handle, reason string) *handle {
	c.resetBackoffIfStable(h)
	c.setState(StateReconnecting)
	c.reconnects.Add(1)
	c.metrics.IncReconnect("refresh")
	h.logger.Info("refreshing connection", "reason", reason)

	c.setState(StateConnecting)
	nh, err := c.establish(c.ctx)
	if err != nil {
		if c.ctx.Err() != nil {
			return h
		}
		h.logger.Warn("proactive reconnect failed", "error", err)
		c.reportError(err)

		c.setState(StateReconnecting)
		c.active.CompareAndSwap(h, nil)
		h.close(websocket.CloseNormalClosure)
		return c.reconnectLoop(err)
	}

	c.install(nh)

	c.draining.Add(1)
	go func() {
		defer c.draining.Done()
		h.drain()
	}()
	return nh
}

// recover tears h down and runs the reconnect loop.
func (c *client) recover(h *handle, cause string, closeCode int, err error) *handle {
	uptime := c.resetBackoffIfStable(h)

	c.setState(StateReconnecting)
	c.active.CompareAndSwap(h, nil)
	h.close(closeCode)

	c.reconnects.Add(1)
	c.metrics.IncReconnect(cause)
	h.logger.Warn("connection lost",
		"cause", cause,
		"error", err,
		"uptime", uptime,
	)

	if !c.cfg.AutoReconnect {
		c.logger.Info("auto reconnect disabled, closing client")
		c.cancel()
		return nil
	}
	return c.reconnectLoop(err)
}

// resetBackoffIfStable starts the backoff over when h stayed up for at
// least StableAfter. Returns h's uptime.
func (c *client) resetBackoffIfStable(h *handle) time.Duration {
	uptime := time.Since(h.connectedAt)
	if uptime >= c.cfg.StableAfter {
		c.backoff.reset()
	}
	return uptime
}

// reconnectLoop retries with backoff until a connection is installed, the
// client is closed or the attempt budget runs out.
func (c *client) reconnectLoop(lastErr error) *handle {
	for attempt := 1; ; attempt++ {
		if budget := c.cfg.MaxReconnectAttempts; budget > 0 && attempt > budget {
			gerr := &GiveUpError{Attempts: budget, Err: lastErr}
			c.logger.Error("giving up on reconnect", "attempts", budget, "error", lastErr)
			if c.onGiveUp != nil {
				go c.onGiveUp(gerr)
			}
			c.cancel()
			return nil
		}

		delay := c.backoff.next()
		c.logger.Info("reconnecting", "attempt", attempt, "delay", delay)
		if !c.sleep(delay) {
			return nil
		}

		c.setState(StateConnecting)
		h, err := c.establish(c.ctx)
		if err == nil {
			c.install(h)
			return h
		}
		if c.ctx.Err() != nil {
			return nil
		}

		lastErr = err
		c.logger.Warn("reconnect attempt failed", "attempt", attempt, "error", err)
		c.reportError(err)
		c.setState(StateReconnecting)
	}
}

// sleep waits for d while still answering Connect calls. Returns false if
// the client was closed.
func (c *client) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			return true
		case <-c.ctx.Done():
			return false
		case req := <-c.connectReq:
			req.reply <- nil
		}
	}
}

func (c *client) shutdown(h *handle) {
	c.setState(StateClosing)
	c.active.Store(nil)
	if h != nil {
		h.close(websocket.CloseNormalClosure)
	}
	c.draining.Wait()
	c.waitListeners()
	c.setState(StateClosed)
	c.logger.Info("client closed", "generation", c.gen.Load())
}

// waitListeners waits for in-flight dispatches, bounded by ShutdownTimeout.
// Listeners see a cancelled context by now.
func (c *client) waitListeners() {
	done := make(chan struct{})
	go func() {
		c.dispatcher.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(c.cfg.ShutdownTimeout):
		c.logger.Warn("listeners still running at shutdown", "in_flight", c.dispatcher.Stats().InFlightDispatch)
	}
}

func (c *client) setState(to State) {
	from := State(c.state.Swap(int32(to)))
	if from == to {
		return
	}
	c.metrics.SetState(to.String())
	c.logger.Debug("state changed", "from", from.String(), "to", to.String())
	if c.onState != nil {
		c.onState(from, to)
	}
}

// withDebugReconnects asks the gateway to rotate the connection often.
func withDebugReconnects(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set("debug_reconnects", "true")
	u.RawQuery = q.Encode()
	return u.String()
}
