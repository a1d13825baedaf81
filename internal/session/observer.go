package session

import "context"

// Subscribe returns a channel that receives the current state immediately and
// then every change. Delivery is latest-wins: a slow reader skips
// intermediate states but always sees the newest one. The channel is closed
// when ctx ends or the controller is closed.
func (c *Controller) Subscribe(ctx context.Context) <-chan ViewState {
	ch := make(chan ViewState, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.state.Clone()
	c.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			c.unsubscribe(id)
		case <-c.done:
		}
	}()
	return ch
}

func (c *Controller) unsubscribe(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.subs[id]; ok {
		delete(c.subs, id)
		close(ch)
	}
}

// publish bumps the version and fans the state out. Callers hold c.mu.
func (c *Controller) publish() {
	c.state.Version++
	for _, ch := range c.subs {
		// Replace an unread state with the newer one.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- c.state.Clone():
		default:
		}
	}
}
