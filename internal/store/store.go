// Package store implements the Resource Store (spec.md §4.1): the
// persistent topology, interface, spectrum-slot, and connection-record
// layer. The teacher's counterpart is managers/res_mgr.go's Inventory plus
// managers/network.go's read-through topology cache; here both collapse
// into one interface backed by Redis, with checkpoint-file persistence
// replaced by the store itself being the source of truth (spec.md §4.1
// "Failure semantics").
package store

import (
	"context"

	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/model"
)

// Store is the narrow interface the rest of the control core depends on.
// Every write is atomic with respect to the invariants of spec.md §3; a
// store failure must never leave partial state for the caller to reason
// about (all-or-nothing per call).
type Store interface {
	// LoadTopology reads POPs and links. Slot-free sets default to
	// {0...total_slots-1} when absent from the backing store.
	LoadTopology(ctx context.Context) ([]model.POP, []model.NetworkLink, error)

	AvailableInterfaces(ctx context.Context, pop, router string) ([]string, error)

	// AllocateInterface atomically compare-and-sets an interface from
	// AVAILABLE to OCCUPIED, owned by connID. Returns false (not an error)
	// if the interface was not AVAILABLE.
	AllocateInterface(ctx context.Context, pop, router, name, connID string) (bool, error)

	// ReleaseInterface sets an interface back to AVAILABLE and clears its
	// owner. Idempotent: releasing an already-AVAILABLE interface succeeds.
	ReleaseInterface(ctx context.Context, pop, router, name string) (bool, error)

	// AllocateSpectrumSlots atomically reserves slots on link for connID.
	// If any slot in slots is not free, the entire call fails and no slot
	// is taken (spec.md §4.1 "no partial allocation").
	AllocateSpectrumSlots(ctx context.Context, linkID, connID string, slots []int) (bool, error)

	// ReleaseSpectrumSlots returns the slots previously held by connID on
	// linkID to the free set. Idempotent.
	ReleaseSpectrumSlots(ctx context.Context, linkID, connID string) (bool, error)

	GetAvailableSlots(ctx context.Context, linkID string) ([]int, error)

	CreateConnectionRecord(ctx context.Context, conn *model.Connection) error
	UpdateStatus(ctx context.Context, connID string, status model.ConnectionStatus) error
	GetConnectionRecord(ctx context.Context, connID string) (*model.Connection, error)
	ListConnections(ctx context.Context) ([]*model.Connection, error)
	DeleteRecord(ctx context.Context, connID string) error

	HealthCheck(ctx context.Context) bool
}
