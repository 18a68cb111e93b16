package listener

// ContainerFactoryConfigurer applies default settings onto a
// ContainerFactory. The settings snapshot and the optional collaborators are
// fixed at construction; every Configure call applies the same policy, so
// calls against different factories may run concurrently.
type ContainerFactoryConfigurer struct {
	settings            *ListenerSettings
	destinationResolver DestinationResolver
	transactionManager  TransactionManager
}

// ConfigurerOption configures a ContainerFactoryConfigurer.
type ConfigurerOption func(*ContainerFactoryConfigurer)

// WithDestinationResolver binds a destination resolver into configured
// factories. Without one, factories keep their own resolution behavior.
func WithDestinationResolver(resolver DestinationResolver) ConfigurerOption {
	return func(c *ContainerFactoryConfigurer) {
		c.destinationResolver = resolver
	}
}

// WithTransactionManager delegates transaction demarcation for configured
// factories. Without one, factories fall back to channel-local transactions.
func WithTransactionManager(manager TransactionManager) ConfigurerOption {
	return func(c *ContainerFactoryConfigurer) {
		c.transactionManager = manager
	}
}

// NewContainerFactoryConfigurer creates a configurer over a settings
// snapshot. A nil snapshot fails rather than silently configuring nothing.
func NewContainerFactoryConfigurer(settings *ListenerSettings, options ...ConfigurerOption) (*ContainerFactoryConfigurer, error) {
	if settings == nil {
		return nil, ErrNilSettings
	}

	c := &ContainerFactoryConfigurer{settings: settings}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Configure applies the default settings onto the factory. The factory can
// be further tuned afterwards; defaults set here can be overridden. Settings
// only ever set fields, they never clear a previously bound collaborator.
//
// Validation happens before any mutation: on error the factory is untouched.
func (c *ContainerFactoryConfigurer) Configure(factory *ContainerFactory, connectionFactory ConnectionFactory) error {
	if factory == nil {
		return ErrNilFactory
	}
	if connectionFactory == nil {
		return ErrNilConnectionFactory
	}

	factory.ConnectionFactory = connectionFactory
	factory.PubSubDomain = c.settings.PubSubDomain
	if c.transactionManager != nil {
		factory.TransactionManager = c.transactionManager
	} else {
		factory.SessionTransacted = true
	}
	if c.destinationResolver != nil {
		factory.DestinationResolver = c.destinationResolver
	}
	factory.AutoStartup = c.settings.AutoStartup
	if c.settings.AcknowledgeMode != "" {
		factory.SessionAcknowledgeMode = c.settings.AcknowledgeMode.Code()
	}
	if concurrency := c.settings.FormatConcurrency(); concurrency != "" {
		factory.Concurrency = concurrency
	}
	return nil
}

// CreateContainerFactory returns a new pre-configured factory for the
// connection factory. Fields not covered by the settings keep the
// NewContainerFactory defaults.
func (c *ContainerFactoryConfigurer) CreateContainerFactory(connectionFactory ConnectionFactory) (*ContainerFactory, error) {
	factory := NewContainerFactory()
	if err := c.Configure(factory, connectionFactory); err != nil {
		return nil, err
	}
	return factory, nil
}
