package instruments

import (
	"context"
	"errors"
	"sync"
)

// ErrChannelClosed is returned by channel operations after Close.
var ErrChannelClosed = errors.New("communication channel closed")

// Message types exchanged with the instrumentation process.
const (
	MessageStop     = "stop"
	MessageReady    = "ready"
	MessageCommand  = "command"
	MessageResponse = "response"
)

// Message is one unit exchanged over the Channel.
type Message struct {
	ID      string                 `json:"id,omitempty"`
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Channel is the bidirectional pipe between the server and a running
// instrumentation process. The server side uses Send and Receive; the
// process side is fed through Deliver and drained through Next.
type Channel struct {
	outbound chan Message
	inbound  chan Message

	// deliverMu keeps the drop-oldest step of Deliver atomic.
	deliverMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

// NewChannel creates a channel buffering size messages in each direction.
func NewChannel(size int) *Channel {
	if size <= 0 {
		size = 64
	}
	return &Channel{
		outbound: make(chan Message, size),
		inbound:  make(chan Message, size),
		done:     make(chan struct{}),
	}
}

// Send queues a message for the instrumentation process.
func (c *Channel) Send(ctx context.Context, msg Message) error {
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}

	select {
	case c.outbound <- msg:
		return nil
	case <-c.done:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive waits for the next message from the instrumentation process.
func (c *Channel) Receive(ctx context.Context) (Message, error) {
	select {
	case msg := <-c.inbound:
		return msg, nil
	case <-c.done:
		return Message{}, ErrChannelClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Deliver hands a message coming from the instrumentation process to the
// server side. It never blocks: when nobody is receiving and the buffer is
// full, the oldest queued message is discarded and dropped reports true.
func (c *Channel) Deliver(msg Message) (dropped bool, err error) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	for {
		select {
		case <-c.done:
			return dropped, ErrChannelClosed
		default:
		}

		select {
		case c.inbound <- msg:
			return dropped, nil
		default:
		}

		select {
		case <-c.inbound:
			dropped = true
		default:
		}
	}
}

// Next waits for the next message queued for the instrumentation process.
func (c *Channel) Next(ctx context.Context) (Message, error) {
	select {
	case msg := <-c.outbound:
		return msg, nil
	case <-c.done:
		return Message{}, ErrChannelClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Close releases the channel. It is safe to call more than once.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Done is closed once the channel has been closed.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}
