package listener

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// Mock ConnectionFactory
type mockConnectionFactory struct {
	mock.Mock
}

func (m *mockConnectionFactory) CreateChannel(ctx context.Context) (Channel, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Channel), args.Error(1)
}

func (m *mockConnectionFactory) IsConnected() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *mockConnectionFactory) Close() error {
	args := m.Called()
	return args.Error(0)
}

// Mock Channel
type mockChannel struct {
	mock.Mock
}

func (m *mockChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	args := m.Called(prefetchCount, prefetchSize, global)
	return args.Error(0)
}

func (m *mockChannel) DeclareQueue(name string, opts QueueOptions) (string, error) {
	args := m.Called(name, opts)
	return args.String(0), args.Error(1)
}

func (m *mockChannel) BindQueue(queue, exchange, routingKey string) error {
	args := m.Called(queue, exchange, routingKey)
	return args.Error(0)
}

func (m *mockChannel) Consume(ctx context.Context, queue, consumerTag string, autoAck, exclusive bool) (<-chan Delivery, error) {
	args := m.Called(ctx, queue, consumerTag, autoAck, exclusive)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(chan Delivery), args.Error(1)
}

func (m *mockChannel) Tx() error {
	args := m.Called()
	return args.Error(0)
}

func (m *mockChannel) TxCommit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *mockChannel) TxRollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *mockChannel) Close() error {
	args := m.Called()
	return args.Error(0)
}

// Mock Delivery
type mockDelivery struct {
	mock.Mock
}

func (m *mockDelivery) Body() []byte {
	args := m.Called()
	return args.Get(0).([]byte)
}

func (m *mockDelivery) MessageID() string {
	args := m.Called()
	return args.String(0)
}

func (m *mockDelivery) Headers() map[string]interface{} {
	args := m.Called()
	return args.Get(0).(map[string]interface{})
}

func (m *mockDelivery) Ack() error {
	args := m.Called()
	return args.Error(0)
}

func (m *mockDelivery) Nack(requeue bool) error {
	args := m.Called(requeue)
	return args.Error(0)
}

// Mock DestinationResolver
type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) ResolveDestination(ctx context.Context, name string, pubSub bool) (Destination, error) {
	args := m.Called(ctx, name, pubSub)
	return args.Get(0).(Destination), args.Error(1)
}

// Mock TransactionManager. A configured error short-circuits the
// transaction; otherwise fn runs and its error is returned.
type mockTxManager struct {
	mock.Mock
}

func (m *mockTxManager) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	args := m.Called(ctx, fn)
	if args.Error(0) != nil {
		return args.Error(0)
	}
	return fn(ctx)
}
