package connmgr

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/coreerrors"
	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/metrics"
	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/model"
	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/pathcompute"
	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/store"
)

// allConnectionStatuses lists every FSM state so ConnectionsByStatus can be
// zeroed for states that currently hold no connections, not just omitted.
var allConnectionStatuses = []model.ConnectionStatus{
	model.StatusPending, model.StatusSetupInProgress, model.StatusActive,
	model.StatusDegraded, model.StatusReconfiguring,
	model.StatusTeardownInProgress, model.StatusTerminated, model.StatusFailed,
}

// Planner is the subset of pathcompute.Computer the Manager depends on.
type Planner interface {
	Compute(ctx context.Context, links []model.NetworkLink, req pathcompute.Request) (*pathcompute.Plan, error)
}

// CreateRequest is the caller-supplied input to CreateConnection.
type CreateRequest struct {
	ID              string // optional; generated if empty (spec.md §3 "UUID or caller-supplied")
	SourcePop       string
	DestPop         string
	SourceRouter    string
	SourceInterface string // optional
	DestRouter      string
	DestInterface   string // optional
	BandwidthGbps   float64
	Modulation      string
	Metadata        map[string]string
}

// Manager owns the connection FSM and sequences the multi-resource
// transaction of spec.md §4.3. Grounded on the teacher's res_mgr.go
// Inventory (in-memory index over a persistent backing store) and
// gizmos/pledge.go (the connection record shape).
type Manager struct {
	st      store.Store
	planner Planner
	log     zerolog.Logger
	met     *metrics.Collectors

	pops       map[string]model.POP
	links      []model.NetworkLink
	linkTotals map[string]int // linkID -> TotalSlots, for occupied/free gauges

	createMu sync.Mutex // serializes the create procedure per spec.md §4.3

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	idxMu sync.RWMutex
	index map[string]*model.Connection // in-memory index, guarded by idxMu (not reentrant)
}

// New builds a Manager over an already-loaded, immutable topology snapshot.
// met may be nil (tests that don't care about metrics).
func New(st store.Store, planner Planner, pops []model.POP, links []model.NetworkLink, log zerolog.Logger, met *metrics.Collectors) *Manager {
	popIdx := make(map[string]model.POP, len(pops))
	for _, p := range pops {
		popIdx[p.ID] = p
	}
	linkTotals := make(map[string]int, len(links))
	for _, l := range links {
		linkTotals[l.ID] = l.TotalSlots
	}
	return &Manager{
		st:         st,
		planner:    planner,
		log:        log,
		met:        met,
		pops:       popIdx,
		links:      links,
		linkTotals: linkTotals,
		locks:      make(map[string]*sync.Mutex),
		index:      make(map[string]*model.Connection),
	}
}

// recordStatusMetrics recomputes the connection-count-by-status gauges from
// the current in-memory index, so a status that drops to zero is reported
// as zero rather than left stale at its last nonzero value.
func (m *Manager) recordStatusMetrics() {
	if m.met == nil {
		return
	}
	counts := make(map[model.ConnectionStatus]int, len(allConnectionStatuses))
	m.idxMu.RLock()
	for _, c := range m.index {
		counts[c.Status]++
	}
	m.idxMu.RUnlock()
	for _, s := range allConnectionStatuses {
		m.met.ConnectionsByStatus.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
}

// recordSlotMetrics refreshes the free/occupied spectrum gauges for one
// link from the store's current slot availability.
func (m *Manager) recordSlotMetrics(ctx context.Context, linkID string) {
	if m.met == nil {
		return
	}
	free, err := m.st.GetAvailableSlots(ctx, linkID)
	if err != nil {
		return
	}
	total := m.linkTotals[linkID]
	m.met.SlotsFree.WithLabelValues(linkID).Set(float64(len(free)))
	m.met.SlotsOccupied.WithLabelValues(linkID).Set(float64(total - len(free)))
}

func (m *Manager) lockFor(connID string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[connID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[connID] = l
	}
	return l
}

func (m *Manager) get(connID string) (*model.Connection, bool) {
	m.idxMu.RLock()
	defer m.idxMu.RUnlock()
	c, ok := m.index[connID]
	if !ok {
		return nil, false
	}
	cp := *c
	return &cp, true
}

func (m *Manager) put(c *model.Connection) {
	m.idxMu.Lock()
	defer m.idxMu.Unlock()
	cp := *c
	m.index[c.ID] = &cp
}

func (m *Manager) remove(connID string) {
	m.idxMu.Lock()
	defer m.idxMu.Unlock()
	delete(m.index, connID)
}

// LoadFromStore rebuilds the in-memory index from the store's connection
// records, for use at process start (store is the source of truth, spec.md
// §4.1 "in-memory caches are advisory and rebuilt from it on restart").
func (m *Manager) LoadFromStore(ctx context.Context) error {
	conns, err := m.st.ListConnections(ctx)
	if err != nil {
		return coreerrors.Wrap(coreerrors.StoreError, "LoadFromStore", err)
	}
	m.idxMu.Lock()
	defer m.idxMu.Unlock()
	for _, c := range conns {
		m.index[c.ID] = c
	}
	return nil
}

// List returns a snapshot of every connection currently tracked.
func (m *Manager) List() []*model.Connection {
	m.idxMu.RLock()
	defer m.idxMu.RUnlock()
	out := make([]*model.Connection, 0, len(m.index))
	for _, c := range m.index {
		cp := *c
		out = append(out, &cp)
	}
	return out
}

// Get returns the current state of a tracked connection.
func (m *Manager) Get(connID string) (*model.Connection, bool) {
	return m.get(connID)
}

// CreateConnection implements spec.md §4.3's create-connection procedure.
// On any failure after the record is persisted, every already-allocated
// resource is released and the record is deleted — the caller never
// observes residual state (spec.md §7 "User-visible behavior").
func (m *Manager) CreateConnection(ctx context.Context, req CreateRequest) (*model.Connection, error) {
	m.createMu.Lock()
	defer m.createMu.Unlock()

	if req.SourcePop == req.DestPop {
		return nil, coreerrors.New(coreerrors.InvalidRequest, "CreateConnection")
	}
	if _, ok := m.pops[req.SourcePop]; !ok {
		return nil, coreerrors.New(coreerrors.InvalidRequest, "CreateConnection")
	}
	if _, ok := m.pops[req.DestPop]; !ok {
		return nil, coreerrors.New(coreerrors.InvalidRequest, "CreateConnection")
	}

	if req.SourceInterface != "" {
		if err := m.checkInterfaceAvailable(ctx, req.SourcePop, req.SourceRouter, req.SourceInterface); err != nil {
			return nil, err
		}
	}
	if req.DestInterface != "" {
		if err := m.checkInterfaceAvailable(ctx, req.DestPop, req.DestRouter, req.DestInterface); err != nil {
			return nil, err
		}
	}

	plan, err := m.planner.Compute(ctx, m.links, pathcompute.Request{
		SourcePop:     req.SourcePop,
		DestPop:       req.DestPop,
		BandwidthGbps: req.BandwidthGbps,
		Modulation:    req.Modulation,
	})
	if err != nil {
		return nil, err // already a *CoreError with NO_PATH/NO_SPECTRUM
	}

	connID := req.ID
	if connID == "" {
		connID = uuid.NewString()
	}

	meta := make(map[string]string, len(req.Metadata)+2)
	for k, v := range req.Metadata {
		meta[k] = v
	}
	meta["_source_router"] = req.SourceRouter
	meta["_dest_router"] = req.DestRouter

	conn := &model.Connection{
		ID:              connID,
		SourcePop:       req.SourcePop,
		DestPop:         req.DestPop,
		SourceInterface: req.SourceInterface,
		DestInterface:   req.DestInterface,
		PathSegments:    plan.Segments,
		BandwidthGbps:   req.BandwidthGbps,
		Modulation:      req.Modulation,
		Status:          model.StatusPending,
		SetupTimestamp:  time.Now(),
		EstimatedOSNRdB: plan.EstimatedOSNRdB,
		Metadata:        meta,
	}

	if err := m.st.CreateConnectionRecord(ctx, conn); err != nil {
		return nil, coreerrors.Wrap(coreerrors.StoreError, "CreateConnection", err)
	}

	if err := m.allocateResources(ctx, conn); err != nil {
		m.rollback(ctx, conn)
		_ = m.st.DeleteRecord(ctx, conn.ID)
		return nil, err
	}

	conn.Status, err = nextStatus(model.StatusPending, EvSetupRequested)
	if err != nil {
		m.rollback(ctx, conn)
		_ = m.st.DeleteRecord(ctx, conn.ID)
		return nil, err
	}
	if err := m.st.UpdateStatus(ctx, conn.ID, conn.Status); err != nil {
		m.rollback(ctx, conn)
		_ = m.st.DeleteRecord(ctx, conn.ID)
		return nil, coreerrors.Wrap(coreerrors.StoreError, "CreateConnection", err)
	}

	m.put(conn)
	m.recordStatusMetrics()
	for _, seg := range conn.PathSegments {
		m.recordSlotMetrics(ctx, seg.LinkID)
	}
	return conn, nil
}

func (m *Manager) checkInterfaceAvailable(ctx context.Context, pop, router, name string) error {
	avail, err := m.st.AvailableInterfaces(ctx, pop, router)
	if err != nil {
		return coreerrors.Wrap(coreerrors.StoreError, "checkInterfaceAvailable", err)
	}
	for _, n := range avail {
		if n == name {
			return nil
		}
	}
	return coreerrors.New(coreerrors.ResourceUnavailable, "checkInterfaceAvailable")
}

// allocateResources allocates endpoint interfaces and every segment's
// spectrum slots. It tracks what succeeded so the caller can roll back on
// any single failure (spec.md §4.3 step 5).
func (m *Manager) allocateResources(ctx context.Context, conn *model.Connection) error {
	if conn.SourceInterface != "" {
		ok, err := m.st.AllocateInterface(ctx, conn.SourcePop, sourceRouterOf(conn), conn.SourceInterface, conn.ID)
		if err != nil {
			return coreerrors.Wrap(coreerrors.StoreError, "allocateResources", err)
		}
		if !ok {
			return coreerrors.New(coreerrors.ResourceUnavailable, "allocateResources")
		}
	}
	if conn.DestInterface != "" {
		ok, err := m.st.AllocateInterface(ctx, conn.DestPop, destRouterOf(conn), conn.DestInterface, conn.ID)
		if err != nil {
			return coreerrors.Wrap(coreerrors.StoreError, "allocateResources", err)
		}
		if !ok {
			return coreerrors.New(coreerrors.ResourceUnavailable, "allocateResources")
		}
	}

	for _, seg := range conn.PathSegments {
		ok, err := m.st.AllocateSpectrumSlots(ctx, seg.LinkID, conn.ID, seg.AllocatedSlots)
		if err != nil {
			return coreerrors.Wrap(coreerrors.StoreError, "allocateResources", err)
		}
		if !ok {
			return coreerrors.New(coreerrors.NoSpectrum, "allocateResources")
		}
	}

	return nil
}

// rollback best-effort releases everything allocateResources may have
// succeeded at; failures are logged, never returned (mirrors Teardown's
// best-effort policy, spec.md §4.3).
func (m *Manager) rollback(ctx context.Context, conn *model.Connection) {
	if conn.SourceInterface != "" {
		if _, err := m.st.ReleaseInterface(ctx, conn.SourcePop, sourceRouterOf(conn), conn.SourceInterface); err != nil {
			m.log.Warn().Err(err).Str("connection", conn.ID).Msg("rollback: release source interface failed")
		}
	}
	if conn.DestInterface != "" {
		if _, err := m.st.ReleaseInterface(ctx, conn.DestPop, destRouterOf(conn), conn.DestInterface); err != nil {
			m.log.Warn().Err(err).Str("connection", conn.ID).Msg("rollback: release dest interface failed")
		}
	}
	for _, seg := range conn.PathSegments {
		if _, err := m.st.ReleaseSpectrumSlots(ctx, seg.LinkID, conn.ID); err != nil {
			m.log.Warn().Err(err).Str("connection", conn.ID).Str("link", seg.LinkID).Msg("rollback: release slots failed")
		}
		m.recordSlotMetrics(ctx, seg.LinkID)
	}
}

// sourceRouterOf / destRouterOf exist because model.Connection does not
// carry router identifiers directly (only pop + interface name, per
// spec.md §3); CreateRequest's routers are folded into Metadata so they
// survive for later release calls.
func sourceRouterOf(conn *model.Connection) string { return conn.Metadata["_source_router"] }
func destRouterOf(conn *model.Connection) string   { return conn.Metadata["_dest_router"] }

// CompleteSetup transitions SETUP_IN_PROGRESS -> ACTIVE once the agent
// dispatch triggered by the caller's separate "setup" call has succeeded
// (spec.md §4.3, §4.4).
func (m *Manager) CompleteSetup(ctx context.Context, connID string) error {
	return m.transition(ctx, connID, EvSetupCompleted)
}

// FailSetup transitions SETUP_IN_PROGRESS -> FAILED. Resources already
// allocated remain held until an explicit Teardown call, per the FSM table
// (FAILED still accepts TEARDOWN_REQUESTED).
func (m *Manager) FailSetup(ctx context.Context, connID string) error {
	return m.transition(ctx, connID, EvSetupFailed)
}

// MarkDegraded transitions ACTIVE -> DEGRADED. Idempotent: a connection
// already DEGRADED is left unchanged and no error is returned, mirroring
// the original controller's mark_degraded.
func (m *Manager) MarkDegraded(ctx context.Context, connID string) error {
	lock := m.lockFor(connID)
	lock.Lock()
	defer lock.Unlock()

	conn, ok := m.get(connID)
	if !ok {
		return coreerrors.New(coreerrors.NotFound, "MarkDegraded")
	}
	if conn.Status == model.StatusDegraded {
		return nil
	}
	next, err := nextStatus(conn.Status, EvDegradationDetected)
	if err != nil {
		return err
	}
	return m.commitStatus(ctx, conn, next)
}

// StartReconfiguration transitions ACTIVE/DEGRADED -> RECONFIGURING and
// records the reason. It does not bump ReconfigCount or cooldown — those
// are the QoT Monitor's responsibility once the reconfiguration command has
// actually been sent (spec.md §4.6 step 4; this is a deliberate departure
// from the original implementation's eager increment, see DESIGN.md).
func (m *Manager) StartReconfiguration(ctx context.Context, connID, reason string) error {
	lock := m.lockFor(connID)
	lock.Lock()
	defer lock.Unlock()

	conn, ok := m.get(connID)
	if !ok {
		return coreerrors.New(coreerrors.NotFound, "StartReconfiguration")
	}
	next, err := nextStatus(conn.Status, EvReconfigRequested)
	if err != nil {
		return err
	}
	if conn.Metadata == nil {
		conn.Metadata = map[string]string{}
	}
	conn.Metadata["_reconfig_reason"] = reason
	return m.commitStatus(ctx, conn, next)
}

// CompleteReconfiguration transitions RECONFIGURING -> ACTIVE.
func (m *Manager) CompleteReconfiguration(ctx context.Context, connID string) error {
	return m.transition(ctx, connID, EvReconfigCompleted)
}

// FailReconfiguration transitions RECONFIGURING -> DEGRADED, the
// stay-degraded outcome of a failed bus dispatch (spec.md §4.6 step 5).
func (m *Manager) FailReconfiguration(ctx context.Context, connID string) error {
	return m.transition(ctx, connID, EvReconfigFailed)
}

// RecordReconfiguration records a successful reconfiguration's bookkeeping
// on the in-memory connection entry: bumps ReconfigCount, stamps
// LastReconfigTime. The store's connection record is not updated. Called by
// the QoT Monitor after a successful dispatch, before
// CompleteReconfiguration.
func (m *Manager) RecordReconfiguration(ctx context.Context, connID string, at time.Time) error {
	lock := m.lockFor(connID)
	lock.Lock()
	defer lock.Unlock()

	conn, ok := m.get(connID)
	if !ok {
		return coreerrors.New(coreerrors.NotFound, "RecordReconfiguration")
	}
	conn.ReconfigCount++
	conn.LastReconfigTime = at
	m.put(conn)
	return nil
}

// RecordSample appends a QoT telemetry sample to the connection's bounded
// FIFO (cap 100, spec.md §3/§4.6), trimming the oldest entries.
func (m *Manager) RecordSample(ctx context.Context, connID string, sample model.QoTSample) error {
	lock := m.lockFor(connID)
	lock.Lock()
	defer lock.Unlock()

	conn, ok := m.get(connID)
	if !ok {
		return coreerrors.New(coreerrors.NotFound, "RecordSample")
	}
	conn.Samples = append(conn.Samples, sample)
	const fifoCap = 100
	if len(conn.Samples) > fifoCap {
		conn.Samples = conn.Samples[len(conn.Samples)-fifoCap:]
	}
	m.put(conn)
	return nil
}

// Teardown releases every slot and interface held by the connection,
// deletes its record, and drops the in-memory entry. Idempotent and
// best-effort (spec.md §4.3): a connection already gone is a no-op success.
func (m *Manager) Teardown(ctx context.Context, connID string) error {
	lock := m.lockFor(connID)
	lock.Lock()
	defer lock.Unlock()

	conn, ok := m.get(connID)
	if !ok {
		return nil // idempotent
	}

	if _, err := nextStatus(conn.Status, EvTeardownRequested); err == nil {
		conn.Status = model.StatusTeardownInProgress
		if err := m.st.UpdateStatus(ctx, connID, conn.Status); err != nil {
			m.log.Warn().Err(err).Str("connection", connID).Msg("teardown: status update failed, continuing")
		}
	}

	if conn.SourceInterface != "" {
		if _, err := m.st.ReleaseInterface(ctx, conn.SourcePop, sourceRouterOf(conn), conn.SourceInterface); err != nil {
			m.log.Warn().Err(err).Str("connection", connID).Msg("teardown: release source interface failed")
		}
	}
	if conn.DestInterface != "" {
		if _, err := m.st.ReleaseInterface(ctx, conn.DestPop, destRouterOf(conn), conn.DestInterface); err != nil {
			m.log.Warn().Err(err).Str("connection", connID).Msg("teardown: release dest interface failed")
		}
	}
	for _, seg := range conn.PathSegments {
		if _, err := m.st.ReleaseSpectrumSlots(ctx, seg.LinkID, connID); err != nil {
			m.log.Warn().Err(err).Str("connection", connID).Str("link", seg.LinkID).Msg("teardown: release slots failed")
		}
		m.recordSlotMetrics(ctx, seg.LinkID)
	}

	if err := m.st.DeleteRecord(ctx, connID); err != nil {
		m.log.Warn().Err(err).Str("connection", connID).Msg("teardown: delete record failed")
	}
	m.remove(connID)
	m.recordStatusMetrics()

	return nil
}

func (m *Manager) transition(ctx context.Context, connID string, ev Event) error {
	lock := m.lockFor(connID)
	lock.Lock()
	defer lock.Unlock()

	conn, ok := m.get(connID)
	if !ok {
		return coreerrors.New(coreerrors.NotFound, "transition")
	}
	next, err := nextStatus(conn.Status, ev)
	if err != nil {
		return err
	}
	return m.commitStatus(ctx, conn, next)
}

func (m *Manager) commitStatus(ctx context.Context, conn *model.Connection, next model.ConnectionStatus) error {
	conn.Status = next
	if err := m.st.UpdateStatus(ctx, conn.ID, next); err != nil {
		return coreerrors.Wrap(coreerrors.StoreError, "commitStatus", err)
	}
	m.put(conn)
	m.recordStatusMetrics()
	return nil
}
