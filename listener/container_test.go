package listener

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func noopHandler(ctx context.Context, d Delivery) error { return nil }

// buildContainer wires a factory around the mocks and produces a container.
func buildContainer(t *testing.T, connFactory *mockConnectionFactory, configure func(*ContainerFactory), handler MessageHandler) *ListenerContainer {
	t.Helper()

	factory := NewContainerFactory()
	factory.ConnectionFactory = connFactory
	if configure != nil {
		configure(factory)
	}

	container, err := factory.CreateListenerContainer(Endpoint{
		Destination: "orders",
		Handler:     handler,
	})
	assert.NoError(t, err)
	return container
}

func TestContainerStart(t *testing.T) {
	t.Run("starts the minimum number of consumers", func(t *testing.T) {
		connFactory := &mockConnectionFactory{}
		ch := &mockChannel{}
		deliveries := make(chan Delivery)

		connFactory.On("CreateChannel", mock.Anything).Return(ch, nil)
		ch.On("DeclareQueue", "orders", QueueOptions{Durable: true}).Return("orders", nil)
		ch.On("Consume", mock.Anything, "orders", mock.Anything, true, false).Return(deliveries, nil)
		ch.On("Close").Return(nil)

		container := buildContainer(t, connFactory, func(f *ContainerFactory) {
			f.Concurrency = "2-4"
		}, noopHandler)

		err := container.Start(context.Background())

		assert.NoError(t, err)
		assert.True(t, container.Running())
		assert.Equal(t, 2, container.Workers())
		// One setup channel plus one per worker.
		connFactory.AssertNumberOfCalls(t, "CreateChannel", 3)

		assert.NoError(t, container.Stop())
	})

	t.Run("start is idempotent", func(t *testing.T) {
		connFactory := &mockConnectionFactory{}
		ch := &mockChannel{}
		deliveries := make(chan Delivery)

		connFactory.On("CreateChannel", mock.Anything).Return(ch, nil)
		ch.On("DeclareQueue", "orders", mock.Anything).Return("orders", nil)
		ch.On("Consume", mock.Anything, "orders", mock.Anything, true, false).Return(deliveries, nil)
		ch.On("Close").Return(nil)

		container := buildContainer(t, connFactory, nil, noopHandler)

		assert.NoError(t, container.Start(context.Background()))
		assert.NoError(t, container.Start(context.Background()))
		assert.Equal(t, 1, container.Workers())

		assert.NoError(t, container.Stop())
	})

	t.Run("pub sub binds a server named queue to the exchange", func(t *testing.T) {
		connFactory := &mockConnectionFactory{}
		ch := &mockChannel{}
		deliveries := make(chan Delivery)

		connFactory.On("CreateChannel", mock.Anything).Return(ch, nil)
		ch.On("DeclareQueue", "", QueueOptions{Exclusive: true, AutoDelete: true}).Return("amq.gen-abc", nil)
		ch.On("BindQueue", "amq.gen-abc", "orders", "").Return(nil)
		ch.On("Consume", mock.Anything, "amq.gen-abc", mock.Anything, true, true).Return(deliveries, nil)
		ch.On("Close").Return(nil)

		container := buildContainer(t, connFactory, func(f *ContainerFactory) {
			f.PubSubDomain = true
		}, noopHandler)

		err := container.Start(context.Background())

		assert.NoError(t, err)
		ch.AssertExpectations(t)

		assert.NoError(t, container.Stop())
	})

	t.Run("fails when destination resolution fails", func(t *testing.T) {
		connFactory := &mockConnectionFactory{}
		resolver := &mockResolver{}
		resolver.On("ResolveDestination", mock.Anything, "orders", false).
			Return(Destination{}, errors.New("lookup failed"))

		container := buildContainer(t, connFactory, func(f *ContainerFactory) {
			f.DestinationResolver = resolver
		}, noopHandler)

		err := container.Start(context.Background())

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to resolve destination")
		assert.False(t, container.Running())
	})

	t.Run("fails when channel creation fails", func(t *testing.T) {
		connFactory := &mockConnectionFactory{}
		connFactory.On("CreateChannel", mock.Anything).Return(nil, errors.New("no connection"))

		container := buildContainer(t, connFactory, nil, noopHandler)

		err := container.Start(context.Background())

		assert.Error(t, err)
		assert.False(t, container.Running())
	})
}

func TestContainerDelivery(t *testing.T) {
	t.Run("acknowledges and commits under channel transactions", func(t *testing.T) {
		connFactory := &mockConnectionFactory{}
		ch := &mockChannel{}
		deliveries := make(chan Delivery, 1)
		committed := make(chan struct{})

		connFactory.On("CreateChannel", mock.Anything).Return(ch, nil)
		ch.On("DeclareQueue", "orders", mock.Anything).Return("orders", nil)
		ch.On("Qos", 10, 0, false).Return(nil)
		ch.On("Tx").Return(nil)
		ch.On("Consume", mock.Anything, "orders", mock.Anything, false, false).Return(deliveries, nil)
		ch.On("TxCommit").Return(nil).Run(func(mock.Arguments) { close(committed) })
		ch.On("Close").Return(nil)

		delivery := &mockDelivery{}
		delivery.On("Ack").Return(nil)

		container := buildContainer(t, connFactory, func(f *ContainerFactory) {
			f.SessionTransacted = true
		}, noopHandler)

		assert.NoError(t, container.Start(context.Background()))
		deliveries <- delivery

		select {
		case <-committed:
		case <-time.After(time.Second):
			t.Fatal("transaction was not committed")
		}
		delivery.AssertCalled(t, "Ack")

		assert.NoError(t, container.Stop())
	})

	t.Run("rolls back and requeues on handler error", func(t *testing.T) {
		connFactory := &mockConnectionFactory{}
		ch := &mockChannel{}
		deliveries := make(chan Delivery, 1)
		nacked := make(chan struct{})

		connFactory.On("CreateChannel", mock.Anything).Return(ch, nil)
		ch.On("DeclareQueue", "orders", mock.Anything).Return("orders", nil)
		ch.On("Qos", 10, 0, false).Return(nil)
		ch.On("Tx").Return(nil)
		ch.On("Consume", mock.Anything, "orders", mock.Anything, false, false).Return(deliveries, nil)
		ch.On("TxRollback").Return(nil)
		ch.On("Close").Return(nil)

		delivery := &mockDelivery{}
		delivery.On("MessageID").Return("m-1")
		delivery.On("Nack", true).Return(nil).Run(func(mock.Arguments) { close(nacked) })

		handler := func(ctx context.Context, d Delivery) error {
			return errors.New("handler failed")
		}
		container := buildContainer(t, connFactory, func(f *ContainerFactory) {
			f.SessionTransacted = true
		}, handler)

		assert.NoError(t, container.Start(context.Background()))
		deliveries <- delivery

		select {
		case <-nacked:
		case <-time.After(time.Second):
			t.Fatal("delivery was not requeued")
		}
		ch.AssertCalled(t, "TxRollback")
		delivery.AssertNotCalled(t, "Ack")

		assert.NoError(t, container.Stop())
	})

	t.Run("delegates demarcation to the transaction manager", func(t *testing.T) {
		connFactory := &mockConnectionFactory{}
		ch := &mockChannel{}
		deliveries := make(chan Delivery, 1)
		acked := make(chan struct{})

		connFactory.On("CreateChannel", mock.Anything).Return(ch, nil)
		ch.On("DeclareQueue", "orders", mock.Anything).Return("orders", nil)
		ch.On("Qos", 10, 0, false).Return(nil)
		ch.On("Consume", mock.Anything, "orders", mock.Anything, false, false).Return(deliveries, nil)
		ch.On("Close").Return(nil)

		manager := &mockTxManager{}
		manager.On("InTransaction", mock.Anything, mock.Anything).Return(nil)

		delivery := &mockDelivery{}
		delivery.On("Ack").Return(nil).Run(func(mock.Arguments) { close(acked) })

		container := buildContainer(t, connFactory, func(f *ContainerFactory) {
			f.TransactionManager = manager
		}, noopHandler)

		assert.NoError(t, container.Start(context.Background()))
		deliveries <- delivery

		select {
		case <-acked:
		case <-time.After(time.Second):
			t.Fatal("delivery was not acknowledged")
		}
		manager.AssertCalled(t, "InTransaction", mock.Anything, mock.Anything)
		ch.AssertNotCalled(t, "Tx")

		assert.NoError(t, container.Stop())
	})

	t.Run("client acknowledge leaves the ack to the handler", func(t *testing.T) {
		connFactory := &mockConnectionFactory{}
		ch := &mockChannel{}
		deliveries := make(chan Delivery, 1)
		handled := make(chan struct{})

		connFactory.On("CreateChannel", mock.Anything).Return(ch, nil)
		ch.On("DeclareQueue", "orders", mock.Anything).Return("orders", nil)
		ch.On("Qos", 10, 0, false).Return(nil)
		ch.On("Consume", mock.Anything, "orders", mock.Anything, false, false).Return(deliveries, nil)
		ch.On("Close").Return(nil)

		delivery := &mockDelivery{}

		handler := func(ctx context.Context, d Delivery) error {
			close(handled)
			return nil
		}
		container := buildContainer(t, connFactory, func(f *ContainerFactory) {
			f.SessionAcknowledgeMode = ClientAcknowledge
		}, handler)

		assert.NoError(t, container.Start(context.Background()))
		deliveries <- delivery

		select {
		case <-handled:
		case <-time.After(time.Second):
			t.Fatal("delivery was not handled")
		}
		assert.NoError(t, container.Stop())

		delivery.AssertNotCalled(t, "Ack")
		delivery.AssertNotCalled(t, "Nack", mock.Anything)
	})

	t.Run("client acknowledge requeues on handler error", func(t *testing.T) {
		connFactory := &mockConnectionFactory{}
		ch := &mockChannel{}
		deliveries := make(chan Delivery, 1)
		nacked := make(chan struct{})

		connFactory.On("CreateChannel", mock.Anything).Return(ch, nil)
		ch.On("DeclareQueue", "orders", mock.Anything).Return("orders", nil)
		ch.On("Qos", 10, 0, false).Return(nil)
		ch.On("Consume", mock.Anything, "orders", mock.Anything, false, false).Return(deliveries, nil)
		ch.On("Close").Return(nil)

		delivery := &mockDelivery{}
		delivery.On("MessageID").Return("m-2")
		delivery.On("Nack", true).Return(nil).Run(func(mock.Arguments) { close(nacked) })

		handler := func(ctx context.Context, d Delivery) error {
			return errors.New("handler failed")
		}
		container := buildContainer(t, connFactory, func(f *ContainerFactory) {
			f.SessionAcknowledgeMode = ClientAcknowledge
		}, handler)

		assert.NoError(t, container.Start(context.Background()))
		deliveries <- delivery

		select {
		case <-nacked:
		case <-time.After(time.Second):
			t.Fatal("delivery was not requeued")
		}
		assert.NoError(t, container.Stop())
	})

	t.Run("auto acknowledge consumes with broker ack", func(t *testing.T) {
		connFactory := &mockConnectionFactory{}
		ch := &mockChannel{}
		deliveries := make(chan Delivery, 1)
		handled := make(chan struct{})

		connFactory.On("CreateChannel", mock.Anything).Return(ch, nil)
		ch.On("DeclareQueue", "orders", mock.Anything).Return("orders", nil)
		ch.On("Consume", mock.Anything, "orders", mock.Anything, true, false).Return(deliveries, nil)
		ch.On("Close").Return(nil)

		delivery := &mockDelivery{}

		handler := func(ctx context.Context, d Delivery) error {
			close(handled)
			return nil
		}
		container := buildContainer(t, connFactory, nil, handler)

		assert.NoError(t, container.Start(context.Background()))
		deliveries <- delivery

		select {
		case <-handled:
		case <-time.After(time.Second):
			t.Fatal("delivery was not handled")
		}
		assert.NoError(t, container.Stop())

		ch.AssertNotCalled(t, "Qos", mock.Anything, mock.Anything, mock.Anything)
		delivery.AssertNotCalled(t, "Ack")
	})
}

func TestContainerStopAndScale(t *testing.T) {
	t.Run("stop drains all workers", func(t *testing.T) {
		connFactory := &mockConnectionFactory{}
		ch := &mockChannel{}
		deliveries := make(chan Delivery)

		connFactory.On("CreateChannel", mock.Anything).Return(ch, nil)
		ch.On("DeclareQueue", "orders", mock.Anything).Return("orders", nil)
		ch.On("Consume", mock.Anything, "orders", mock.Anything, true, false).Return(deliveries, nil)
		ch.On("Close").Return(nil)

		container := buildContainer(t, connFactory, func(f *ContainerFactory) {
			f.Concurrency = "2"
		}, noopHandler)

		assert.NoError(t, container.Start(context.Background()))
		assert.NoError(t, container.Stop())

		assert.False(t, container.Running())
		assert.Equal(t, 0, container.Workers())
	})

	t.Run("stop is idempotent", func(t *testing.T) {
		container := buildContainer(t, &mockConnectionFactory{}, nil, noopHandler)

		assert.NoError(t, container.Stop())
		assert.NoError(t, container.Stop())
	})

	t.Run("scales within the configured bounds", func(t *testing.T) {
		connFactory := &mockConnectionFactory{}
		ch := &mockChannel{}
		deliveries := make(chan Delivery)

		connFactory.On("CreateChannel", mock.Anything).Return(ch, nil)
		ch.On("DeclareQueue", "orders", mock.Anything).Return("orders", nil)
		ch.On("Consume", mock.Anything, "orders", mock.Anything, true, false).Return(deliveries, nil)
		ch.On("Close").Return(nil)

		container := buildContainer(t, connFactory, func(f *ContainerFactory) {
			f.Concurrency = "1-3"
		}, noopHandler)

		assert.NoError(t, container.Start(context.Background()))
		assert.Equal(t, 1, container.Workers())

		assert.NoError(t, container.Scale(context.Background(), 3))
		assert.Equal(t, 3, container.Workers())

		assert.NoError(t, container.Scale(context.Background(), 1))
		assert.Equal(t, 1, container.Workers())

		assert.NoError(t, container.Stop())
	})

	t.Run("rejects scaling outside the bounds", func(t *testing.T) {
		connFactory := &mockConnectionFactory{}
		ch := &mockChannel{}
		deliveries := make(chan Delivery)

		connFactory.On("CreateChannel", mock.Anything).Return(ch, nil)
		ch.On("DeclareQueue", "orders", mock.Anything).Return("orders", nil)
		ch.On("Consume", mock.Anything, "orders", mock.Anything, true, false).Return(deliveries, nil)
		ch.On("Close").Return(nil)

		container := buildContainer(t, connFactory, func(f *ContainerFactory) {
			f.Concurrency = "1-3"
		}, noopHandler)

		assert.NoError(t, container.Start(context.Background()))

		assert.ErrorIs(t, container.Scale(context.Background(), 4), ErrInvalidArgument)
		assert.ErrorIs(t, container.Scale(context.Background(), 0), ErrInvalidArgument)

		assert.NoError(t, container.Stop())
	})

	t.Run("rejects scaling a stopped container", func(t *testing.T) {
		container := buildContainer(t, &mockConnectionFactory{}, nil, noopHandler)

		assert.ErrorIs(t, container.Scale(context.Background(), 1), ErrContainerClosed)
	})
}
