// Package controller wires the Resource Store, Path Computer, Connection
// Manager, Message Bus Client, Agent Registry, and QoT Monitor into one
// running control core and owns its startup/shutdown ordering. Grounded on
// the teacher's main/tegu.go (construct every manager, `go` each one, block
// forever) generalized into an explicit component with an ordered Stop
// instead of a never-decremented WaitGroup.
package controller

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/agentregistry"
	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/bus"
	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/config"
	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/connmgr"
	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/corelog"
	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/metrics"
	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/model"
	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/pathcompute"
	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/qot"
	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/store"
)

// sender is the subset of bus.Client that dispatchSetup depends on,
// narrowed the way internal/qot narrows its own Sender dependency so tests
// can supply a hand-written fake instead of a live broker connection.
type sender interface {
	Send(ctx context.Context, targetAgent string, value interface{}) error
}

// Controller is the assembled control core for one virtual operator.
type Controller struct {
	cfg *config.Config
	log zerolog.Logger
	met *metrics.Collectors
	reg *prometheus.Registry

	st       store.Store
	computer *pathcompute.Computer
	conns    *connmgr.Manager
	busc     *bus.Client
	send     sender
	agents   *agentregistry.Registry
	qotMon   *qot.Monitor

	wg sync.WaitGroup
}

// New builds every component and loads the topology/connection index from
// the store, but does not start any background goroutine (see Start).
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Controller, error) {
	reg := prometheus.NewRegistry()
	met := metrics.New(reg)

	st := store.NewRedisStore(cfg.Store.Host, cfg.Store.Port, cfg.Store.Password, cfg.Store.DB, cfg.Store.ConnectTimeout)

	pops, links, err := st.LoadTopology(ctx)
	if err != nil {
		return nil, err
	}

	computer := pathcompute.New(st, pathcompute.Config{
		SlotWidthGHz:       cfg.Path.SlotWidthGHz,
		SpectralEfficiency: cfg.Path.SpectralEfficiency,
		DefaultSlots:       cfg.Path.DefaultSpectrumSlots,
	})

	conns := connmgr.New(st, computer, pops, links, corelog.Component(log, "connmgr"), met)
	if err := conns.LoadFromStore(ctx); err != nil {
		return nil, err
	}

	busc, err := bus.New(bus.Config{
		BrokerAddress:    cfg.Bus.BrokerAddress,
		ConfigTopic:      cfg.Bus.ConfigTopic,
		MonitoringTopic:  cfg.Bus.MonitoringTopic,
		SendTimeout:      cfg.Bus.SendTimeout,
		RetryMax:         cfg.Bus.RetryMax,
		RetryBackoffBase: cfg.Bus.RetryBackoffBase,
	}, corelog.Component(log, "bus"), met)
	if err != nil {
		return nil, err
	}

	agents := agentregistry.New(cfg.Registry.HeartbeatTimeout, cfg.Registry.EvictAfter, corelog.Component(log, "agentregistry"), met)

	qotMon := qot.New(qot.Config{
		OSNRThresholdDB:     cfg.QoT.OSNRThresholdDB,
		CriticalOSNRDB:      cfg.QoT.CriticalOSNRDB,
		BERThreshold:        cfg.QoT.BERThreshold,
		PersistencySamples:  cfg.QoT.PersistencySamples,
		Cooldown:            cfg.QoT.CooldownSec,
		TxStepDB:            cfg.QoT.TxStepDB,
		TxMinDBm:            cfg.QoT.TxMinDBm,
		TxMaxDBm:            cfg.QoT.TxMaxDBm,
		AdjustMode:          cfg.QoT.AdjustMode,
		MaxReconfigurations: cfg.QoT.MaxReconfigurations,
		SampleFIFODepth:     cfg.QoT.SampleFIFODepth,
		EfficiencyMarginDB:  cfg.QoT.EfficiencyMarginDB,
		EfficiencyAdjust:    cfg.QoT.EfficiencyAdjust,
	}, conns, busc, agents, corelog.Component(log, "qot"), met)

	busc.OnHeartbeat(agents.OnHeartbeat)
	busc.OnTelemetry(qotMon.Ingest)
	busc.OnAck(func(_ context.Context, evt bus.AckEvent) {
		log.Debug().Str("command", evt.CommandID).Str("status", evt.Status).Msg("controller: command ack")
	})

	return &Controller{
		cfg:      cfg,
		log:      log,
		met:      met,
		reg:      reg,
		st:       st,
		computer: computer,
		conns:    conns,
		busc:     busc,
		send:     busc,
		agents:   agents,
		qotMon:   qotMon,
	}, nil
}

// Health is the aggregated self-check result of HealthCheck, mirroring the
// original system's quick_check.py/verify_phase2.py scripts without
// reintroducing an HTTP surface.
type Health struct {
	StoreHealthy bool
	BusHealthy   bool
	AgentsKnown  int
	AgentsOnline int
}

// HealthCheck aggregates store, bus, and agent-registry health into one
// struct for an operator or test harness to inspect directly.
func (c *Controller) HealthCheck(ctx context.Context) (Health, error) {
	h := Health{StoreHealthy: c.st.HealthCheck(ctx)}
	if hc, ok := c.send.(healthChecker); ok {
		h.BusHealthy = hc.Healthy()
	}
	for _, a := range c.agents.List() {
		h.AgentsKnown++
		if a.Status == model.AgentOnline {
			h.AgentsOnline++
		}
	}
	return h, nil
}

// healthChecker is the liveness probe bus.Client exposes; narrowed so
// HealthCheck only requires it of whatever satisfies the sender interface.
type healthChecker interface {
	Healthy() bool
}

// Registry exposes the Prometheus registry for an external HTTP exporter
// (out of scope here, spec §1's REST surface is a non-goal).
func (c *Controller) Registry() *prometheus.Registry { return c.reg }

// Connections exposes the Connection Manager for an external API layer.
func (c *Controller) Connections() *connmgr.Manager { return c.conns }

// Agents exposes the Agent Registry for an external API layer.
func (c *Controller) Agents() *agentregistry.Registry { return c.agents }

// Start launches the consumer loop, the agent reaper, and the QoT recovery
// sweep as background goroutines, then blocks until ctx is cancelled. On
// cancellation it performs the shutdown ordering of spec.md §5: stop the
// consumer loop first (bounded join), release the bus client, then release
// the store — in-flight FSM transactions (each serialized by its own
// per-connection lock) are never interrupted, only new work stops arriving.
func (c *Controller) Start(ctx context.Context) error {
	c.wg.Add(1)
	consumerDone := make(chan struct{})
	go func() {
		defer c.wg.Done()
		defer close(consumerDone)
		if err := c.busc.Run(ctx); err != nil {
			c.log.Error().Err(err).Msg("controller: bus consumer loop exited with error")
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.agents.RunReaper(ctx, c.cfg.Registry.ReapInterval)
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.qotMon.RunRecoverySweep(ctx, c.cfg.QoT.RecoverySweepPeriod)
	}()

	<-ctx.Done()

	select {
	case <-consumerDone:
	case <-time.After(5 * time.Second):
		c.log.Warn().Msg("controller: consumer loop did not stop within 5s, continuing shutdown")
	}

	if err := c.busc.Close(); err != nil {
		c.log.Warn().Err(err).Msg("controller: bus client close failed")
	}

	if closer, ok := c.st.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			c.log.Warn().Err(err).Msg("controller: store close failed")
		}
	}

	c.wg.Wait()
	return nil
}

// CreateConnection runs the Connection Manager's create procedure and, on
// success, dispatches the agent-side setup commands that spec.md §4.3 step 6
// calls "a separate setup call that triggers §4.4". A dispatch failure on
// either endpoint fails the connection back out of SETUP_IN_PROGRESS rather
// than leaving it stranded.
func (c *Controller) CreateConnection(ctx context.Context, req connmgr.CreateRequest) (*model.Connection, error) {
	conn, err := c.conns.CreateConnection(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := c.dispatchSetup(ctx, conn); err != nil {
		_ = c.conns.FailSetup(ctx, conn.ID)
		return nil, err
	}
	if err := c.conns.CompleteSetup(ctx, conn.ID); err != nil {
		return nil, err
	}

	conn, _ = c.conns.Get(conn.ID)
	return conn, nil
}

// dispatchSetup sends one setupConnection command per endpoint. Both must be
// accepted by the broker (sync producer, acks=all) for setup to proceed.
func (c *Controller) dispatchSetup(ctx context.Context, conn *model.Connection) error {
	srcRouter := routerOf(conn, true)
	dstRouter := routerOf(conn, false)

	srcAgent := c.agents.Resolve(conn.SourcePop, srcRouter)
	dstAgent := c.agents.Resolve(conn.DestPop, dstRouter)

	pathInfo := conn.PathSegments

	srcCmd := bus.SetupCommand(srcAgent, conn.ID, bus.SetupParameters{
		PopID: conn.SourcePop, RouterID: srcRouter, Interface: conn.SourceInterface,
		Direction: "source", Modulation: conn.Modulation, PathInfo: pathInfo,
	})
	dstCmd := bus.SetupCommand(dstAgent, conn.ID, bus.SetupParameters{
		PopID: conn.DestPop, RouterID: dstRouter, Interface: conn.DestInterface,
		Direction: "destination", Modulation: conn.Modulation, PathInfo: pathInfo,
	})

	if err := c.send.Send(ctx, srcAgent, srcCmd); err != nil {
		return err
	}
	if err := c.send.Send(ctx, dstAgent, dstCmd); err != nil {
		return err
	}
	return nil
}

// TeardownConnection releases every resource held by conn and drops its
// record; idempotent per spec.md §4.3.
func (c *Controller) TeardownConnection(ctx context.Context, connID string) error {
	return c.conns.Teardown(ctx, connID)
}

// routerOf reads the router id CreateRequest folded into Metadata (see
// connmgr.sourceRouterOf/destRouterOf); duplicated here rather than exported
// from connmgr to keep that detail private to the package that owns it.
func routerOf(conn *model.Connection, source bool) string {
	if conn.Metadata == nil {
		return ""
	}
	if source {
		return conn.Metadata["_source_router"]
	}
	return conn.Metadata["_dest_router"]
}
