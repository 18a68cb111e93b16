package rabbitmq

import (
	"context"
	"fmt"

	"github.com/glimte/listenkit-go/internal/rabbitmq"
	"github.com/glimte/listenkit-go/listener"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ConnFactory implements listener.ConnectionFactory for RabbitMQ, backed by
// a managed connection and a channel pool.
type ConnFactory struct {
	manager *rabbitmq.ConnectionManager
	pool    *rabbitmq.ChannelPool
}

// ConnFactoryConfig holds configuration for the connection factory
type ConnFactoryConfig struct {
	ConnectionOptions []rabbitmq.ConnectionOption
	PoolOptions       []rabbitmq.ChannelPoolOption
}

// ConnFactoryOption configures the connection factory
type ConnFactoryOption func(*ConnFactoryConfig)

// WithConnectionOptions sets connection options
func WithConnectionOptions(opts ...rabbitmq.ConnectionOption) ConnFactoryOption {
	return func(cfg *ConnFactoryConfig) {
		cfg.ConnectionOptions = append(cfg.ConnectionOptions, opts...)
	}
}

// WithPoolOptions sets channel pool options
func WithPoolOptions(opts ...rabbitmq.ChannelPoolOption) ConnFactoryOption {
	return func(cfg *ConnFactoryConfig) {
		cfg.PoolOptions = append(cfg.PoolOptions, opts...)
	}
}

// NewConnFactory connects to RabbitMQ and returns a connection factory for
// listener containers.
func NewConnFactory(connectionString string, options ...ConnFactoryOption) (*ConnFactory, error) {
	cfg := &ConnFactoryConfig{}
	for _, opt := range options {
		opt(cfg)
	}

	manager := rabbitmq.NewConnectionManager(connectionString, cfg.ConnectionOptions...)
	if err := manager.Connect(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	pool, err := rabbitmq.NewChannelPool(manager, cfg.PoolOptions...)
	if err != nil {
		manager.Close()
		return nil, fmt.Errorf("failed to create channel pool: %w", err)
	}

	return &ConnFactory{manager: manager, pool: pool}, nil
}

// CreateChannel borrows a pooled channel wrapped in the listener channel
// interface. Closing the returned channel gives it back to the pool.
func (f *ConnFactory) CreateChannel(ctx context.Context) (listener.Channel, error) {
	ch, err := f.pool.Get(ctx)
	if err != nil {
		return nil, err
	}
	return &channelAdapter{ch: ch, pool: f.pool}, nil
}

// IsConnected returns the broker connection status.
func (f *ConnFactory) IsConnected() bool {
	return f.manager.IsConnected()
}

// Close shuts down the pool and the connection.
func (f *ConnFactory) Close() error {
	poolErr := f.pool.Close()
	if err := f.manager.Close(); err != nil {
		return err
	}
	return poolErr
}

// channelAdapter adapts a pooled AMQP channel to listener.Channel.
type channelAdapter struct {
	ch       *rabbitmq.PooledChannel
	pool     *rabbitmq.ChannelPool
	tx       bool
	returned bool
}

func (a *channelAdapter) Qos(prefetchCount, prefetchSize int, global bool) error {
	return a.ch.Qos(prefetchCount, prefetchSize, global)
}

func (a *channelAdapter) DeclareQueue(name string, opts listener.QueueOptions) (string, error) {
	queue, err := a.ch.QueueDeclare(
		name,
		opts.Durable,
		opts.AutoDelete,
		opts.Exclusive,
		false,
		amqp.Table(opts.Args),
	)
	if err != nil {
		return "", err
	}
	return queue.Name, nil
}

func (a *channelAdapter) BindQueue(queue, exchange, routingKey string) error {
	return a.ch.QueueBind(queue, routingKey, exchange, false, nil)
}

func (a *channelAdapter) Consume(ctx context.Context, queue, consumerTag string, autoAck, exclusive bool) (<-chan listener.Delivery, error) {
	deliveries, err := a.ch.ConsumeWithContext(ctx, queue, consumerTag, autoAck, exclusive, false, false, nil)
	if err != nil {
		return nil, err
	}

	out := make(chan listener.Delivery)
	go func() {
		defer close(out)
		for d := range deliveries {
			select {
			case out <- &deliveryAdapter{d: d}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (a *channelAdapter) Tx() error {
	if err := a.ch.Tx(); err != nil {
		return err
	}
	a.tx = true
	return nil
}

func (a *channelAdapter) TxCommit() error {
	return a.ch.TxCommit()
}

func (a *channelAdapter) TxRollback() error {
	return a.ch.TxRollback()
}

// Close returns the channel to the pool. Transacted channels go back to the
// broker instead, since transaction mode cannot be switched off.
func (a *channelAdapter) Close() error {
	if a.returned {
		return nil
	}
	a.returned = true
	if a.tx {
		a.ch.Channel.Close()
	}
	a.pool.Put(a.ch)
	return nil
}

// deliveryAdapter adapts amqp.Delivery to listener.Delivery.
type deliveryAdapter struct {
	d amqp.Delivery
}

func (a *deliveryAdapter) Body() []byte {
	return a.d.Body
}

func (a *deliveryAdapter) MessageID() string {
	return a.d.MessageId
}

func (a *deliveryAdapter) Headers() map[string]interface{} {
	return a.d.Headers
}

func (a *deliveryAdapter) Ack() error {
	return a.d.Ack(false)
}

func (a *deliveryAdapter) Nack(requeue bool) error {
	return a.d.Nack(false, requeue)
}
