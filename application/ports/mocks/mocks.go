// Package mocks provides testify mocks of the application ports.
package mocks

import (
	"context"

	"graphsync/application/ports"
	"graphsync/domain/events"
	"graphsync/domain/graph"

	"github.com/stretchr/testify/mock"
)

type MockSnapshotStore struct {
	mock.Mock
}

func (m *MockSnapshotStore) Create(ctx context.Context, snap graph.Snapshot) error {
	return m.Called(ctx, snap).Error(0)
}

func (m *MockSnapshotStore) Get(ctx context.Context, graphID string) (graph.Snapshot, error) {
	args := m.Called(ctx, graphID)
	snap, _ := args.Get(0).(graph.Snapshot)
	return snap, args.Error(1)
}

func (m *MockSnapshotStore) Save(ctx context.Context, snap graph.Snapshot) (graph.Snapshot, error) {
	args := m.Called(ctx, snap)
	saved, _ := args.Get(0).(graph.Snapshot)
	return saved, args.Error(1)
}

type MockEventLog struct {
	mock.Mock
}

func (m *MockEventLog) Append(ctx context.Context, ev events.Event) (events.Event, bool, error) {
	args := m.Called(ctx, ev)
	stored, _ := args.Get(0).(events.Event)
	return stored, args.Bool(1), args.Error(2)
}

func (m *MockEventLog) ListSince(ctx context.Context, graphID, since string, limit int) ([]events.Event, error) {
	args := m.Called(ctx, graphID, since, limit)
	evs, _ := args.Get(0).([]events.Event)
	return evs, args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) EnsureTopic(ctx context.Context, topic string) error {
	return m.Called(ctx, topic).Error(0)
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, msgs ...events.Message) error {
	return m.Called(ctx, topic, msgs).Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, ev events.Event) error {
	return m.Called(ctx, ev).Error(0)
}

type MockIDGenerator struct {
	mock.Mock
}

func (m *MockIDGenerator) NewID() string {
	return m.Called().String(0)
}

var (
	_ ports.SnapshotStore = (*MockSnapshotStore)(nil)
	_ ports.EventLog      = (*MockEventLog)(nil)
	_ ports.Publisher     = (*MockPublisher)(nil)
	_ ports.Notifier      = (*MockNotifier)(nil)
	_ ports.IDGenerator   = (*MockIDGenerator)(nil)
)
