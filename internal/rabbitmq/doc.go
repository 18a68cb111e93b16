// Package rabbitmq provides the RabbitMQ connection plumbing for listener
// containers.
//
// This package includes:
//   - ConnectionManager: manages the broker connection with automatic
//     reconnection and state change notifications
//   - ChannelPool: channel pooling with capacity bounds and idle timeout
//
// Higher layers never touch this package directly; transports/rabbitmq
// adapts it to the listener transport interfaces.
package rabbitmq
