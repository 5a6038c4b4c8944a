package bus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/coreerrors"
	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/metrics"
)

// Config carries the producer/consumer parameters of spec.md §4.4/§6.
type Config struct {
	BrokerAddress    string
	ConfigTopic      string // controller -> agent
	MonitoringTopic  string // agent -> controller
	SendTimeout      time.Duration
	RetryMax         int
	RetryBackoffBase time.Duration
}

// Client is the Message Bus Client. Produce is synchronous and
// partition-keyed for per-agent ordering; Consume runs as a background loop
// started by the caller via Run.
type Client struct {
	cfg Config
	log zerolog.Logger
	met *metrics.Collectors

	producer sarama.SyncProducer
	consumer sarama.Consumer

	heartbeatCBs []func(context.Context, HeartbeatEvent)
	telemetryCBs []func(context.Context, TelemetryEvent)
	ackCBs       []func(context.Context, AckEvent)
}

// New dials the broker and builds both the synchronous producer and the
// consumer used for the monitoring stream. acks=all, max_in_flight=1, and
// bounded exponential-backoff retries are set per spec.md §4.4.
func New(cfg Config, log zerolog.Logger, met *metrics.Collectors) (*Client, error) {
	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = cfg.RetryMax
	sc.Producer.Retry.Backoff = cfg.RetryBackoffBase
	base := cfg.RetryBackoffBase
	sc.Producer.Retry.BackoffFunc = func(retries, _ int) time.Duration {
		if retries < 1 {
			retries = 1
		}
		return base << uint(retries-1) // base, 2*base, 4*base, ...
	}
	sc.Producer.Return.Successes = true
	sc.Net.MaxOpenRequests = 1 // preserves per-agent ordering (max_in_flight=1)
	sc.Producer.Timeout = cfg.SendTimeout

	producer, err := sarama.NewSyncProducer([]string{cfg.BrokerAddress}, sc)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.BusError, "New", err)
	}

	cc := sarama.NewConfig()
	consumer, err := sarama.NewConsumer([]string{cfg.BrokerAddress}, cc)
	if err != nil {
		_ = producer.Close()
		return nil, coreerrors.Wrap(coreerrors.BusError, "New", err)
	}

	return &Client{cfg: cfg, log: log, met: met, producer: producer, consumer: consumer}, nil
}

// Healthy reports whether the broker still answers metadata requests,
// probing via the consumer's topic listing rather than a dedicated ping
// (sarama has no lighter-weight liveness call).
func (c *Client) Healthy() bool {
	_, err := c.consumer.Topics()
	return err == nil
}

// Close releases the producer and consumer.
func (c *Client) Close() error {
	var firstErr error
	if err := c.producer.Close(); err != nil {
		firstErr = err
	}
	if err := c.consumer.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Send produces value (JSON-marshaled) to the config topic, keyed by
// targetAgent for per-agent partition ordering. A confirmation is required
// within cfg.SendTimeout (spec.md §5 "bounded confirmation timeout").
func (c *Client) Send(ctx context.Context, targetAgent string, value interface{}) error {
	body, err := json.Marshal(value)
	if err != nil {
		return coreerrors.Wrap(coreerrors.Internal, "Send", err)
	}

	start := time.Now()
	msg := &sarama.ProducerMessage{
		Topic: c.cfg.ConfigTopic,
		Key:   sarama.StringEncoder(targetAgent),
		Value: sarama.ByteEncoder(body),
	}

	_, _, err = c.producer.SendMessage(msg)
	elapsed := time.Since(start)

	if c.met != nil {
		c.met.BusSendLatency.WithLabelValues(c.cfg.ConfigTopic).Observe(elapsed.Seconds())
	}
	if err != nil {
		if c.met != nil {
			c.met.BusSendFailures.WithLabelValues(c.cfg.ConfigTopic).Inc()
		}
		return coreerrors.Wrap(coreerrors.BusError, "Send", err)
	}
	return nil
}

// ---- command builders (spec.md §6) ----

func newCommand(cmdType CommandType, targetAgent string) Command {
	return Command{
		CommandID:   uuid.NewString(),
		Timestamp:   time.Now(),
		TargetAgent: targetAgent,
		Type:        cmdType,
	}
}

// SetupCommand builds a provisioning command for one connection endpoint.
func SetupCommand(targetAgent, connectionID string, p SetupParameters) Command {
	c := newCommand(CommandSetupConnection, targetAgent)
	c.ConnectionID = connectionID
	c.Parameters = p
	return c
}

// ReconfigureCommand builds a Tx-power/frequency adjustment command.
func ReconfigureCommand(targetAgent, connectionID, reason string, p ReconfigureParameters) Command {
	c := newCommand(CommandReconfigConnection, targetAgent)
	c.ConnectionID = connectionID
	c.Reason = reason
	c.Parameters = p
	return c
}

// InterfaceControlCommand builds an administrative up/down/admin_down
// command. action is duplicated onto the envelope and the parameters object
// per spec.md §6's literal shape.
func InterfaceControlCommand(targetAgent, action string, p InterfaceControlParameters) Command {
	c := newCommand(CommandInterfaceControl, targetAgent)
	c.Action = action
	p.Action = action
	c.Parameters = p
	return c
}

// DiscoveryCommand builds a broadcast with no target key; every agent on the
// topic is expected to respond with a heartbeat (spec.md §6 "no
// target_agent; agents respond on monitoring").
func DiscoveryCommand() Command {
	return newCommand(CommandDiscovery, "")
}
