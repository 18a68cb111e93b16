package listener

import "context"

// ConnectionFactory hands out channels for listener containers. The RabbitMQ
// implementation lives in transports/rabbitmq; tests substitute mocks.
type ConnectionFactory interface {
	// CreateChannel returns a channel ready for consuming.
	CreateChannel(ctx context.Context) (Channel, error)

	// IsConnected returns the broker connection status.
	IsConnected() bool

	// Close releases the underlying connection resources.
	Close() error
}

// Channel is the slice of broker channel behavior a container needs.
type Channel interface {
	// Qos limits the number of unacknowledged deliveries on the channel.
	Qos(prefetchCount, prefetchSize int, global bool) error

	// DeclareQueue declares a queue and returns its actual name. An empty
	// name requests a server-named exclusive queue.
	DeclareQueue(name string, opts QueueOptions) (string, error)

	// BindQueue binds a queue to an exchange with a routing key.
	BindQueue(queue, exchange, routingKey string) error

	// Consume starts delivering messages from a queue.
	Consume(ctx context.Context, queue, consumerTag string, autoAck, exclusive bool) (<-chan Delivery, error)

	// Tx puts the channel into transaction mode.
	Tx() error

	// TxCommit commits the open channel transaction.
	TxCommit() error

	// TxRollback rolls back the open channel transaction.
	TxRollback() error

	// Close closes the channel.
	Close() error
}

// Delivery represents a single message delivery from the transport.
type Delivery interface {
	// Body returns the message payload.
	Body() []byte

	// MessageID returns the broker message id, if any.
	MessageID() string

	// Headers returns message headers.
	Headers() map[string]interface{}

	// Ack marks the message as successfully processed.
	Ack() error

	// Nack rejects the message with optional requeue.
	Nack(requeue bool) error
}

// QueueOptions defines options for queue declaration.
type QueueOptions struct {
	Durable    bool
	AutoDelete bool
	Exclusive  bool
	Args       map[string]interface{}
}

// MessageHandler processes a single delivery. Under client acknowledge mode
// the handler owns the Ack call; under every other mode the container does.
type MessageHandler func(ctx context.Context, delivery Delivery) error
