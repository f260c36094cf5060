package memory

import (
	"testing"

	"graphsync/application/ports"
	"graphsync/infrastructure/persistence/storetest"
)

func TestSnapshotStore(t *testing.T) {
	storetest.SnapshotStore(t, func(*testing.T) ports.SnapshotStore { return NewSnapshotStore() })
}

func TestEventLog(t *testing.T) {
	storetest.EventLog(t, func(*testing.T) ports.EventLog { return NewEventLog() })
}

func TestConnectionStore(t *testing.T) {
	storetest.ConnectionStore(t, func(*testing.T) ports.ConnectionStore { return NewConnectionStore() })
}
