package client

import "github.com/3leaps/vr180/pkg/job"

const watchBuffer = 32

// Watch streams job snapshots. The channel is closed by stop or Close.
// Slow watchers lose their oldest pending snapshot, never the newest.
func (c *Client) Watch() (<-chan job.Job, func()) {
	ch := make(chan job.Job, watchBuffer)

	c.watchMu.Lock()
	id := c.nextID
	c.nextID++
	c.watchers[id] = ch
	c.watchMu.Unlock()

	stop := func() {
		c.watchMu.Lock()
		defer c.watchMu.Unlock()
		if w, ok := c.watchers[id]; ok {
			delete(c.watchers, id)
			close(w)
		}
	}
	return ch, stop
}

func (c *Client) publish(j job.Job) {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()

	for _, ch := range c.watchers {
		select {
		case ch <- j:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- j:
		default:
		}
	}
}
