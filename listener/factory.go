package listener

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Endpoint describes a message listener: a logical destination name and the
// handler invoked for each delivery.
type Endpoint struct {
	Destination string
	Handler     MessageHandler
}

// ContainerFactory is a mutable configuration object producing listener
// containers. Fields may be set directly or through a
// ContainerFactoryConfigurer; configuration is expected to happen from a
// single goroutine before containers are created.
type ContainerFactory struct {
	// ConnectionFactory supplies channels to produced containers. Required
	// before CreateListenerContainer is called.
	ConnectionFactory ConnectionFactory

	// PubSubDomain selects publish/subscribe destination resolution.
	PubSubDomain bool

	// TransactionManager, when set, delegates transaction demarcation for
	// message handling.
	TransactionManager TransactionManager

	// SessionTransacted enables channel-local transactions around message
	// handling. Ignored when a TransactionManager is set.
	SessionTransacted bool

	// DestinationResolver overrides the default passthrough resolution.
	DestinationResolver DestinationResolver

	// AutoStartup marks produced containers for automatic start.
	AutoStartup bool

	// SessionAcknowledgeMode is the numeric acknowledge code applied to
	// produced containers.
	SessionAcknowledgeMode int

	// Concurrency is the consumer range specification, "min-max" or "min".
	// Empty means a single consumer.
	Concurrency string

	// PrefetchCount limits unacknowledged deliveries per consumer channel.
	PrefetchCount int

	// Logger is handed to produced containers.
	Logger *slog.Logger
}

// NewContainerFactory returns a factory with built-in defaults: auto-startup
// on, auto acknowledge, single consumer, prefetch of 10.
func NewContainerFactory() *ContainerFactory {
	return &ContainerFactory{
		AutoStartup:            true,
		SessionAcknowledgeMode: AutoAcknowledge,
		PrefetchCount:          10,
		Logger:                 slog.Default(),
	}
}

// CreateListenerContainer produces a container for the endpoint using the
// factory's current configuration. The factory can keep producing containers
// afterwards; each container is independent.
func (f *ContainerFactory) CreateListenerContainer(endpoint Endpoint) (*ListenerContainer, error) {
	if f.ConnectionFactory == nil {
		return nil, ErrNoConnectionFactory
	}
	if endpoint.Destination == "" {
		return nil, ErrNoDestination
	}
	if endpoint.Handler == nil {
		return nil, ErrNoHandler
	}

	min, max, err := ParseConcurrency(f.Concurrency)
	if err != nil {
		return nil, err
	}

	resolver := f.DestinationResolver
	if resolver == nil {
		resolver = PassthroughResolver{}
	}

	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ListenerContainer{
		connectionFactory: f.ConnectionFactory,
		endpoint:          endpoint,
		resolver:          resolver,
		txManager:         f.TransactionManager,
		sessionTransacted: f.SessionTransacted,
		pubSub:            f.PubSubDomain,
		autoStartup:       f.AutoStartup,
		acknowledgeCode:   f.SessionAcknowledgeMode,
		minConcurrency:    min,
		maxConcurrency:    max,
		prefetchCount:     f.PrefetchCount,
		logger:            logger,
	}, nil
}

// ParseConcurrency parses a concurrency specification into its consumer
// bounds. The empty specification means one consumer.
func ParseConcurrency(spec string) (min, max int, err error) {
	if spec == "" {
		return 1, 1, nil
	}

	lower, upper, ranged := strings.Cut(spec, "-")
	min, err = strconv.Atoi(lower)
	if err != nil {
		return 0, 0, &ConcurrencyError{Spec: spec, Err: err}
	}
	max = min
	if ranged {
		max, err = strconv.Atoi(upper)
		if err != nil {
			return 0, 0, &ConcurrencyError{Spec: spec, Err: err}
		}
	}

	if min < 1 {
		return 0, 0, &ConcurrencyError{Spec: spec, Err: fmt.Errorf("lower bound must be at least 1")}
	}
	if max < min {
		return 0, 0, &ConcurrencyError{Spec: spec, Err: fmt.Errorf("upper bound %d below lower bound %d", max, min)}
	}
	return min, max, nil
}
