// Copyright 2025 Listenkit Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package listenkit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/glimte/listenkit-go/internal/rabbitmq"
	"github.com/glimte/listenkit-go/listener"
	rabbitmqTransport "github.com/glimte/listenkit-go/transports/rabbitmq"
)

// Client is the composition root for listenkit: it owns the connection
// factory, the pre-configured container factory, and the listener containers
// registered against it.
type Client struct {
	connFactory listener.ConnectionFactory
	configurer  *listener.ContainerFactoryConfigurer
	factory     *listener.ContainerFactory
	logger      *slog.Logger

	mu         sync.Mutex
	containers map[string]*listener.ListenerContainer
	started    bool
}

// NewClient creates a client connected to RabbitMQ, with a container factory
// pre-configured from the listener settings. Configuration modules passed
// via WithConfigModules are imported before the client is returned.
func NewClient(connectionString string, options ...ClientOption) (*Client, error) {
	cfg := &clientConfig{
		logger:   slog.Default(),
		settings: listener.DefaultListenerSettings(),
	}
	for _, opt := range options {
		opt(cfg)
	}

	connFactory := cfg.connFactory
	if connFactory == nil {
		var err error
		connFactory, err = rabbitmqTransport.NewConnFactory(connectionString,
			rabbitmqTransport.WithConnectionOptions(rabbitmq.WithLogger(cfg.logger)),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create connection factory: %w", err)
		}
	}

	var configurerOpts []listener.ConfigurerOption
	if cfg.resolver != nil {
		configurerOpts = append(configurerOpts, listener.WithDestinationResolver(cfg.resolver))
	}
	if cfg.txManager != nil {
		configurerOpts = append(configurerOpts, listener.WithTransactionManager(cfg.txManager))
	}

	configurer, err := listener.NewContainerFactoryConfigurer(cfg.settings, configurerOpts...)
	if err != nil {
		connFactory.Close()
		return nil, err
	}

	factory, err := configurer.CreateContainerFactory(connFactory)
	if err != nil {
		connFactory.Close()
		return nil, err
	}
	factory.Logger = cfg.logger

	client := &Client{
		connFactory: connFactory,
		configurer:  configurer,
		factory:     factory,
		logger:      cfg.logger,
		containers:  make(map[string]*listener.ListenerContainer),
	}

	if err := ImportConfig(client, cfg.modules...); err != nil {
		connFactory.Close()
		return nil, err
	}

	return client, nil
}

// Factory returns the pre-configured container factory. It can be tuned
// further before listeners are registered.
func (c *Client) Factory() *listener.ContainerFactory {
	return c.factory
}

// Configurer returns the container factory configurer, for configuring
// additional factories against the same settings.
func (c *Client) Configurer() *listener.ContainerFactoryConfigurer {
	return c.configurer
}

// ConnectionFactory returns the underlying connection factory.
func (c *Client) ConnectionFactory() listener.ConnectionFactory {
	return c.connFactory
}

// RegisterListener creates a container for the endpoint from the client's
// factory. One container per destination; registering a destination twice
// fails.
func (c *Client) RegisterListener(endpoint listener.Endpoint) (*listener.ListenerContainer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.containers[endpoint.Destination]; exists {
		return nil, fmt.Errorf("%w: listener already registered for %q",
			listener.ErrInvalidArgument, endpoint.Destination)
	}

	container, err := c.factory.CreateListenerContainer(endpoint)
	if err != nil {
		return nil, err
	}
	c.containers[endpoint.Destination] = container

	// Containers registered after startup join the running set right away.
	if c.started && container.AutoStartup() {
		if err := container.Start(context.Background()); err != nil {
			delete(c.containers, endpoint.Destination)
			return nil, err
		}
	}
	return container, nil
}

// Container returns the container registered for a destination.
func (c *Client) Container(destination string) (*listener.ListenerContainer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	container, ok := c.containers[destination]
	return container, ok
}

// Start starts every auto-startup container. Containers with auto-startup
// disabled wait for an explicit Start on the container itself.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for destination, container := range c.containers {
		if !container.AutoStartup() {
			continue
		}
		if err := container.Start(ctx); err != nil {
			return fmt.Errorf("failed to start listener for %q: %w", destination, err)
		}
	}
	c.started = true
	c.logger.Info("listenkit client started", "containers", len(c.containers))
	return nil
}

// Stop stops every running container.
func (c *Client) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for destination, container := range c.containers {
		if err := container.Stop(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to stop listener for %q: %w", destination, err)
		}
	}
	c.started = false
	return firstErr
}

// Close stops all containers and releases the connection.
func (c *Client) Close() error {
	stopErr := c.Stop()
	if err := c.connFactory.Close(); err != nil {
		return err
	}
	return stopErr
}

// clientConfig holds client configuration
type clientConfig struct {
	logger      *slog.Logger
	settings    *listener.ListenerSettings
	resolver    listener.DestinationResolver
	txManager   listener.TransactionManager
	connFactory listener.ConnectionFactory
	modules     []ConfigModule
}

// ClientOption configures the client
type ClientOption func(*clientConfig)

// WithLogger sets the logger for all components
func WithLogger(logger *slog.Logger) ClientOption {
	return func(cfg *clientConfig) {
		cfg.logger = logger
	}
}

// WithListenerSettings sets the listener settings snapshot applied by the
// configurer.
func WithListenerSettings(settings *listener.ListenerSettings) ClientOption {
	return func(cfg *clientConfig) {
		cfg.settings = settings
	}
}

// WithDestinationResolver binds a destination resolver into the configurer.
func WithDestinationResolver(resolver listener.DestinationResolver) ClientOption {
	return func(cfg *clientConfig) {
		cfg.resolver = resolver
	}
}

// WithTransactionManager delegates transaction demarcation to the manager.
func WithTransactionManager(manager listener.TransactionManager) ClientOption {
	return func(cfg *clientConfig) {
		cfg.txManager = manager
	}
}

// WithConnectionFactory substitutes the transport connection factory,
// bypassing the RabbitMQ dial. The connection string is ignored when set.
func WithConnectionFactory(connFactory listener.ConnectionFactory) ClientOption {
	return func(cfg *clientConfig) {
		cfg.connFactory = connFactory
	}
}

// WithConfigModules selects configuration modules to import at construction.
func WithConfigModules(modules ...ConfigModule) ClientOption {
	return func(cfg *clientConfig) {
		cfg.modules = append(cfg.modules, modules...)
	}
}
