package listener

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Per-delivery handler deadline.
const messageTimeout = 30 * time.Second

// ListenerContainer runs a range of concurrent consumers over one resolved
// destination, routing every delivery to the endpoint handler. Containers
// are produced by a ContainerFactory and are independent of each other.
type ListenerContainer struct {
	connectionFactory ConnectionFactory
	endpoint          Endpoint
	resolver          DestinationResolver
	txManager         TransactionManager
	sessionTransacted bool
	pubSub            bool
	autoStartup       bool
	acknowledgeCode   int
	minConcurrency    int
	maxConcurrency    int
	prefetchCount     int
	logger            *slog.Logger

	mu      sync.Mutex
	running bool
	queue   string
	workers []*containerWorker
	wg      sync.WaitGroup
}

type containerWorker struct {
	tag    string
	cancel context.CancelFunc
	done   chan struct{}
}

// AutoStartup reports whether the container should be started automatically.
func (c *ListenerContainer) AutoStartup() bool {
	return c.autoStartup
}

// Running reports whether the container has active consumers.
func (c *ListenerContainer) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Workers returns the current number of consumer workers.
func (c *ListenerContainer) Workers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.workers)
}

// Start resolves the destination, declares the topology once, and launches
// the lower bound of consumer workers. Starting a running container is a
// no-op.
func (c *ListenerContainer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	dest, err := c.resolver.ResolveDestination(ctx, c.endpoint.Destination, c.pubSub)
	if err != nil {
		return fmt.Errorf("failed to resolve destination %q: %w", c.endpoint.Destination, err)
	}

	queue, err := c.setupTopology(ctx, dest)
	if err != nil {
		return err
	}
	c.queue = queue

	for i := 0; i < c.minConcurrency; i++ {
		if err := c.startWorker(ctx); err != nil {
			c.stopWorkersLocked()
			return err
		}
	}

	c.running = true
	c.logger.Info("listener container started",
		"destination", c.endpoint.Destination,
		"queue", c.queue,
		"consumers", len(c.workers),
		"pubSub", c.pubSub,
	)
	return nil
}

// setupTopology declares the consume queue. Publish/subscribe destinations
// get a server-named exclusive queue bound to the exchange; point-to-point
// destinations get a durable queue.
func (c *ListenerContainer) setupTopology(ctx context.Context, dest Destination) (string, error) {
	ch, err := c.connectionFactory.CreateChannel(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create setup channel: %w", err)
	}
	defer ch.Close()

	if dest.Exchange == "" {
		queue, err := ch.DeclareQueue(dest.Queue, QueueOptions{Durable: true})
		if err != nil {
			return "", fmt.Errorf("failed to declare queue %q: %w", dest.Queue, err)
		}
		return queue, nil
	}

	queue, err := ch.DeclareQueue(dest.Queue, QueueOptions{Exclusive: true, AutoDelete: true})
	if err != nil {
		return "", fmt.Errorf("failed to declare subscription queue: %w", err)
	}
	if err := ch.BindQueue(queue, dest.Exchange, dest.RoutingKey); err != nil {
		return "", fmt.Errorf("failed to bind queue %q to exchange %q: %w", queue, dest.Exchange, err)
	}
	return queue, nil
}

// startWorker launches one consumer worker. Caller holds c.mu.
func (c *ListenerContainer) startWorker(ctx context.Context) error {
	ch, err := c.connectionFactory.CreateChannel(ctx)
	if err != nil {
		return fmt.Errorf("failed to create consumer channel: %w", err)
	}

	autoAck := c.brokerAutoAck()
	if !autoAck {
		if err := ch.Qos(c.prefetchCount, 0, false); err != nil {
			ch.Close()
			return fmt.Errorf("failed to set QoS: %w", err)
		}
	}
	if c.channelTransacted() {
		if err := ch.Tx(); err != nil {
			ch.Close()
			return fmt.Errorf("failed to enable channel transactions: %w", err)
		}
	}

	tag := fmt.Sprintf("%s-%s", c.endpoint.Destination, uuid.New().String())
	deliveries, err := ch.Consume(ctx, c.queue, tag, autoAck, c.pubSub)
	if err != nil {
		ch.Close()
		return fmt.Errorf("failed to start consuming from %q: %w", c.queue, err)
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	worker := &containerWorker{
		tag:    tag,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.workers = append(c.workers, worker)

	c.wg.Add(1)
	go c.processDeliveries(workerCtx, worker, ch, deliveries)
	return nil
}

// brokerAutoAck reports whether deliveries are acknowledged by the broker on
// delivery. Transacted handling always requires explicit acknowledgment.
func (c *ListenerContainer) brokerAutoAck() bool {
	if c.txManager != nil || c.channelTransacted() {
		return false
	}
	return c.acknowledgeCode == AutoAcknowledge || c.acknowledgeCode == DupsOkAcknowledge
}

func (c *ListenerContainer) channelTransacted() bool {
	return c.txManager == nil && (c.sessionTransacted || c.acknowledgeCode == SessionTransacted)
}

func (c *ListenerContainer) processDeliveries(ctx context.Context, worker *containerWorker, ch Channel, deliveries <-chan Delivery) {
	defer func() {
		ch.Close()
		close(worker.done)
		c.wg.Done()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("delivery channel closed", "queue", c.queue, "consumerTag", worker.tag)
				return
			}
			if err := c.handleDelivery(ctx, ch, delivery); err != nil {
				c.logger.Error("failed to handle message",
					"error", err,
					"queue", c.queue,
					"messageId", delivery.MessageID(),
				)
			}
		}
	}
}

// handleDelivery runs the endpoint handler with the acknowledgment behavior
// the container was configured for.
func (c *ListenerContainer) handleDelivery(ctx context.Context, ch Channel, delivery Delivery) error {
	msgCtx, cancel := context.WithTimeout(ctx, messageTimeout)
	defer cancel()

	switch {
	case c.txManager != nil:
		err := c.txManager.InTransaction(msgCtx, func(ctx context.Context) error {
			return c.endpoint.Handler(ctx, delivery)
		})
		if err != nil {
			if nackErr := delivery.Nack(true); nackErr != nil {
				c.logger.Error("failed to nack message", "error", nackErr, "originalError", err)
			}
			return err
		}
		return delivery.Ack()

	case c.channelTransacted():
		if err := c.endpoint.Handler(msgCtx, delivery); err != nil {
			if rbErr := ch.TxRollback(); rbErr != nil {
				c.logger.Error("failed to roll back channel transaction", "error", rbErr, "originalError", err)
			}
			if nackErr := delivery.Nack(true); nackErr != nil {
				c.logger.Error("failed to nack message", "error", nackErr, "originalError", err)
			}
			return err
		}
		if err := delivery.Ack(); err != nil {
			return err
		}
		return ch.TxCommit()

	case c.acknowledgeCode == ClientAcknowledge:
		// The handler owns the Ack; the container only cleans up failures.
		if err := c.endpoint.Handler(msgCtx, delivery); err != nil {
			if nackErr := delivery.Nack(true); nackErr != nil {
				c.logger.Error("failed to nack message", "error", nackErr, "originalError", err)
			}
			return err
		}
		return nil

	default:
		// Broker auto-ack modes; nothing to acknowledge here.
		return c.endpoint.Handler(msgCtx, delivery)
	}
}

// Scale adjusts the number of consumer workers within the configured
// concurrency bounds.
func (c *ListenerContainer) Scale(ctx context.Context, workers int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return ErrContainerClosed
	}
	if workers < c.minConcurrency || workers > c.maxConcurrency {
		return fmt.Errorf("%w: %d workers outside bounds %d-%d",
			ErrInvalidArgument, workers, c.minConcurrency, c.maxConcurrency)
	}

	for len(c.workers) < workers {
		if err := c.startWorker(ctx); err != nil {
			return err
		}
	}
	for len(c.workers) > workers {
		last := c.workers[len(c.workers)-1]
		c.workers = c.workers[:len(c.workers)-1]
		last.cancel()
		<-last.done
	}
	return nil
}

// Stop cancels all consumer workers and waits for them to drain. Stopping a
// stopped container is a no-op.
func (c *ListenerContainer) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}

	c.stopWorkersLocked()
	c.running = false
	c.logger.Info("listener container stopped", "destination", c.endpoint.Destination, "queue", c.queue)
	return nil
}

// stopWorkersLocked cancels and reaps every worker. Caller holds c.mu.
func (c *ListenerContainer) stopWorkersLocked() {
	for _, worker := range c.workers {
		worker.cancel()
	}
	c.wg.Wait()
	c.workers = nil
}
