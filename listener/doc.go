// Package listener provides listener container configuration and execution.
//
// The package centers on three pieces:
//   - ContainerFactory: a mutable configuration object producing listener
//     containers for endpoints
//   - ContainerFactoryConfigurer: applies externally bound ListenerSettings
//     and optional collaborators (destination resolver, transaction manager)
//     onto a factory in a fixed precedence
//   - ListenerContainer: runs a concurrency range of consumer workers over a
//     resolved destination with the configured acknowledgment behavior
//
// Transports are abstracted behind the ConnectionFactory, Channel and
// Delivery interfaces; the RabbitMQ binding lives in transports/rabbitmq.
//
// Example usage:
//
//	configurer, err := listener.NewContainerFactoryConfigurer(settings,
//		listener.WithDestinationResolver(resolver))
//	if err != nil {
//		return err
//	}
//	factory, err := configurer.CreateContainerFactory(connFactory)
//	if err != nil {
//		return err
//	}
//	container, err := factory.CreateListenerContainer(listener.Endpoint{
//		Destination: "orders",
//		Handler:     handleOrder,
//	})
package listener
