package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ChannelPool manages a pool of AMQP channels over a managed connection.
type ChannelPool struct {
	manager     *ConnectionManager
	channels    chan *PooledChannel
	maxSize     int
	minSize     int
	idleTimeout time.Duration
	mu          sync.Mutex
	closed      bool
	activeCount int
}

// PooledChannel wraps an AMQP channel with pool metadata
type PooledChannel struct {
	*amqp.Channel
	pool     *ChannelPool
	lastUsed time.Time
	id       string
}

// ID returns the pool identifier of the channel.
func (pc *PooledChannel) ID() string {
	return pc.id
}

// ChannelPoolOption configures the channel pool
type ChannelPoolOption func(*ChannelPool)

// WithMaxSize sets the maximum pool size
func WithMaxSize(size int) ChannelPoolOption {
	return func(cp *ChannelPool) {
		cp.maxSize = size
	}
}

// WithMinSize sets the minimum pool size
func WithMinSize(size int) ChannelPoolOption {
	return func(cp *ChannelPool) {
		cp.minSize = size
	}
}

// WithIdleTimeout sets the idle timeout for pooled channels
func WithIdleTimeout(timeout time.Duration) ChannelPoolOption {
	return func(cp *ChannelPool) {
		cp.idleTimeout = timeout
	}
}

// NewChannelPool creates a new channel pool
func NewChannelPool(manager *ConnectionManager, options ...ChannelPoolOption) (*ChannelPool, error) {
	if manager == nil {
		return nil, ErrInvalidConfiguration
	}

	pool := &ChannelPool{
		manager:     manager,
		maxSize:     10,
		minSize:     0,
		idleTimeout: 5 * time.Minute,
	}

	for _, opt := range options {
		opt(pool)
	}

	if pool.maxSize < 1 {
		return nil, fmt.Errorf("%w: max size must be at least 1", ErrInvalidConfiguration)
	}
	if pool.minSize < 0 || pool.minSize > pool.maxSize {
		return nil, fmt.Errorf("%w: min size must be between 0 and max size", ErrInvalidConfiguration)
	}

	pool.channels = make(chan *PooledChannel, pool.maxSize)

	var warmed []*PooledChannel
	for i := 0; i < pool.minSize; i++ {
		ch, err := pool.createChannel()
		if err != nil {
			for _, created := range warmed {
				created.Channel.Close()
			}
			return nil, &ChannelError{
				Op:        "pool initialization",
				ChannelID: fmt.Sprintf("warm-%d", i),
				Err:       err,
				Timestamp: time.Now(),
			}
		}
		warmed = append(warmed, ch)
	}
	for _, ch := range warmed {
		pool.channels <- ch
	}

	return pool, nil
}

func (cp *ChannelPool) createChannel() (*PooledChannel, error) {
	conn, err := cp.manager.Connection()
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	cp.mu.Lock()
	cp.activeCount++
	cp.mu.Unlock()

	return &PooledChannel{
		Channel:  ch,
		pool:     cp,
		lastUsed: time.Now(),
		id:       uuid.New().String(),
	}, nil
}

// Get borrows a channel from the pool, creating one when the pool is empty
// and below capacity.
func (cp *ChannelPool) Get(ctx context.Context) (*PooledChannel, error) {
	cp.mu.Lock()
	if cp.closed {
		cp.mu.Unlock()
		return nil, ErrChannelPoolClosed
	}
	cp.mu.Unlock()

	for {
		select {
		case ch := <-cp.channels:
			if cp.expired(ch) || ch.Channel.IsClosed() {
				cp.discard(ch)
				continue
			}
			ch.lastUsed = time.Now()
			return ch, nil

		default:
			cp.mu.Lock()
			if cp.activeCount >= cp.maxSize {
				cp.mu.Unlock()
				// Pool is at capacity; wait for a returned channel.
				select {
				case ch := <-cp.channels:
					if cp.expired(ch) || ch.Channel.IsClosed() {
						cp.discard(ch)
						continue
					}
					ch.lastUsed = time.Now()
					return ch, nil
				case <-ctx.Done():
					return nil, fmt.Errorf("%w: %v", ErrChannelPoolExhausted, ctx.Err())
				}
			}
			cp.mu.Unlock()
			return cp.createChannel()
		}
	}
}

// Put returns a channel to the pool. Closed channels and channels beyond
// capacity are discarded.
func (cp *ChannelPool) Put(ch *PooledChannel) {
	if ch == nil {
		return
	}

	cp.mu.Lock()
	closed := cp.closed
	cp.mu.Unlock()

	if closed || ch.Channel.IsClosed() {
		cp.discard(ch)
		return
	}

	ch.lastUsed = time.Now()
	select {
	case cp.channels <- ch:
	default:
		cp.discard(ch)
	}
}

func (cp *ChannelPool) expired(ch *PooledChannel) bool {
	return cp.idleTimeout > 0 && time.Since(ch.lastUsed) > cp.idleTimeout
}

func (cp *ChannelPool) discard(ch *PooledChannel) {
	ch.Channel.Close()
	cp.mu.Lock()
	cp.activeCount--
	cp.mu.Unlock()
}

// Close drains and closes all pooled channels.
func (cp *ChannelPool) Close() error {
	cp.mu.Lock()
	if cp.closed {
		cp.mu.Unlock()
		return nil
	}
	cp.closed = true
	cp.mu.Unlock()

	for {
		select {
		case ch := <-cp.channels:
			ch.Channel.Close()
		default:
			return nil
		}
	}
}
