// Package optimistic coordinates UI-first mutations: the visible effect is
// applied immediately, the remote call runs in the background, and a failure
// rolls the effect back using a snapshot taken at invocation time.
package optimistic

import "time"

// OperationKind identifies what a mutation does to an entity
type OperationKind string

const (
	KindStatusUpdate      OperationKind = "status_update"
	KindDelete            OperationKind = "delete"
	KindBatchStatusUpdate OperationKind = "batch_status_update"
	KindCreate            OperationKind = "create"
	KindUpdate            OperationKind = "update"
)

// Snapshot is a strongly typed capture of the entity state a rollback needs.
// Each operation kind defines its own snapshot type in the owning domain
// package; rollback handlers switch on those concrete types rather than
// inspecting loose values.
type Snapshot interface {
	SnapshotKind() OperationKind
}

// Operation is one pending optimistic mutation, keyed by (kind, entity)
// through its unique ID
type Operation struct {
	Kind     OperationKind
	EntityID string

	// Original is the pre-mutation snapshot handed back on rollback
	Original Snapshot

	// New is the snapshot the UI was advanced to
	New Snapshot

	CreatedAt time.Time
}

// Hooks are the caller-supplied callbacks for one Apply invocation
type Hooks struct {
	// Applied fires synchronously, before the remote call, once the
	// pending operation is registered. This is the optimistic UI effect.
	Applied func()

	// RolledBack fires when the remote call fails or the operation is
	// swept after timing out. It receives the exact original snapshot
	// passed at invocation.
	RolledBack func(entityID string, original Snapshot)

	// Failed fires after rollback with the remote error, or with a
	// timeout error for swept operations
	Failed func(err error)
}
