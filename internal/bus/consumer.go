package bus

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/IBM/sarama"
)

// OnHeartbeat registers a callback for agentHealth/heartbeat records.
func (c *Client) OnHeartbeat(fn func(context.Context, HeartbeatEvent)) {
	c.heartbeatCBs = append(c.heartbeatCBs, fn)
}

// OnTelemetry registers a callback for telemetry/qotTelemetry records.
func (c *Client) OnTelemetry(fn func(context.Context, TelemetryEvent)) {
	c.telemetryCBs = append(c.telemetryCBs, fn)
}

// OnAck registers a callback for commandAck records.
func (c *Client) OnAck(fn func(context.Context, AckEvent)) {
	c.ackCBs = append(c.ackCBs, fn)
}

// Run consumes the monitoring topic until ctx is cancelled. It fans every
// partition's messages into one channel so callbacks always run from a
// single logical consumer thread, matching spec.md §4.4's "invoked from the
// consumer thread" contract.
func (c *Client) Run(ctx context.Context) error {
	partitions, err := c.consumer.Partitions(c.cfg.MonitoringTopic)
	if err != nil {
		return err
	}

	msgs := make(chan *sarama.ConsumerMessage, 256)
	for _, p := range partitions {
		pc, err := c.consumer.ConsumePartition(c.cfg.MonitoringTopic, p, sarama.OffsetNewest)
		if err != nil {
			return err
		}
		go func(pc sarama.PartitionConsumer) {
			defer pc.Close()
			for {
				select {
				case <-ctx.Done():
					return
				case m, ok := <-pc.Messages():
					if !ok {
						return
					}
					select {
					case msgs <- m:
					case <-ctx.Done():
						return
					}
				}
			}
		}(pc)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-msgs:
			c.dispatch(ctx, m.Value)
		}
	}
}

// dispatch parses one monitoring-stream record and routes it to the
// registered callback list for its type. Parse or callback failures are
// logged and swallowed — the poll loop never stops on a bad record
// (spec.md §4.4 "caught and logged without interrupting polling").
func (c *Client) dispatch(ctx context.Context, raw []byte) {
	var env map[string]interface{}
	if err := json.Unmarshal(raw, &env); err != nil {
		c.log.Warn().Err(err).Msg("bus: unparseable monitoring record")
		return
	}

	typ, _ := env["type"].(string)

	switch strings.ToLower(typ) {
	case "agenthealth", "heartbeat":
		evt := parseHeartbeat(env)
		for _, fn := range c.heartbeatCBs {
			c.safeCall(func() { fn(ctx, evt) })
		}
	case "telemetry", "qottelemetry":
		evt := parseTelemetry(env)
		for _, fn := range c.telemetryCBs {
			c.safeCall(func() { fn(ctx, evt) })
		}
	case "commandack":
		evt := parseAck(env)
		for _, fn := range c.ackCBs {
			c.safeCall(func() { fn(ctx, evt) })
		}
	default:
		c.log.Debug().Str("type", typ).Msg("bus: ignoring unrecognized monitoring record type")
	}
}

// safeCall runs fn, catching a panic so one misbehaving callback never kills
// the consumer loop (spec.md §4.4 "exceptions are caught and logged without
// interrupting polling").
func (c *Client) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Msg("bus: callback panicked")
		}
	}()
	fn()
}

// unwrapPayload returns env["payload"] if present and object-shaped,
// otherwise env itself (spec.md §4.4 "payload may be nested under payload").
func unwrapPayload(env map[string]interface{}) map[string]interface{} {
	if nested, ok := env["payload"].(map[string]interface{}); ok {
		return nested
	}
	return env
}

func str(m map[string]interface{}, key string) string {
	v, _ := m[key].(string)
	return v
}

func num(m map[string]interface{}, key string) float64 {
	v, _ := m[key].(float64)
	return v
}

func strList(m map[string]interface{}, key string) []string {
	raw, ok := m[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func obj(m map[string]interface{}, key string) map[string]interface{} {
	v, _ := m[key].(map[string]interface{})
	return v
}

// parseHeartbeat reads spec.md §6's inbound heartbeat shape:
// {type, agent_id, status, payload?:{pop_id, router_id, capabilities[],
// interfaces[]}}. agent_id/status sit on the envelope; pop_id/router_id are
// only present when the agent bothers to report them.
func parseHeartbeat(env map[string]interface{}) HeartbeatEvent {
	raw := strings.ToLower(str(env, "status"))
	status := "DEGRADED"
	switch raw {
	case "healthy", "ok", "up":
		status = "HEALTHY"
	}
	p := obj(env, "payload")
	if p == nil {
		p = env
	}
	return HeartbeatEvent{
		AgentID:      str(env, "agent_id"),
		Pop:          str(p, "pop_id"),
		Router:       str(p, "router_id"),
		RawStatus:    str(env, "status"),
		Status:       status,
		Capabilities: strList(p, "capabilities"),
		Interfaces:   strList(p, "interfaces"),
		ReceivedAt:   time.Now(),
	}
}

// parseTelemetry reads spec.md §6's inbound telemetry shape: {type, agent_id,
// connection_id, timestamp, osnr?, pre_fec_ber?, post_fec_ber?, tx_power?,
// rx_power?, temperature?, frequency?}.
func parseTelemetry(env map[string]interface{}) TelemetryEvent {
	p := unwrapPayload(env)
	return TelemetryEvent{
		AgentID:      str(env, "agent_id"),
		ConnectionID: str(p, "connection_id"),
		OSNRDB:       num(p, "osnr"),
		PreFECBER:    num(p, "pre_fec_ber"),
		PostFECBER:   num(p, "post_fec_ber"),
		TxPowerDBm:   num(p, "tx_power"),
		RxPowerDBm:   num(p, "rx_power"),
		TemperatureC: num(p, "temperature"),
		FrequencyGHz: num(p, "frequency"),
		ReceivedAt:   time.Now(),
	}
}

// parseAck reads spec.md §6's inbound ack shape: {type, command_id,
// agent_id, status}.
func parseAck(env map[string]interface{}) AckEvent {
	return AckEvent{
		CommandID:  str(env, "command_id"),
		AgentID:    str(env, "agent_id"),
		Status:     str(env, "status"),
		ReceivedAt: time.Now(),
	}
}
