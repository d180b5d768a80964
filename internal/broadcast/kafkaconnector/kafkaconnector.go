// Package kafkaconnector is an alternative broadcast.Connector that
// forwards setup and status traffic over a Kafka topic keyed by target
// host, demonstrating that the broadcast interfaces are transport
// agnostic. BroadcastPre and RemoteService.Invoke need a response, which
// a log-based transport has no natural way to return, so both always
// fail with ErrTransport on this connector.
package kafkaconnector

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"

	"firestige.xyz/chainproto/internal/core"
	"firestige.xyz/chainproto/internal/eventbus"
	"firestige.xyz/chainproto/internal/metrics"
	"firestige.xyz/chainproto/internal/model"
)

// envelope is the wire format for every message this connector writes,
// mirroring the versioned command envelope the teacher's Kafka command
// channel uses.
type envelope struct {
	Version string          `json:"version"`
	Kind    string          `json:"kind"`
	Target  string          `json:"target"`
	Payload json.RawMessage `json:"payload"`
}

// Connector writes setup and status messages to a single Kafka topic,
// using the target host as the partition key so all traffic for one
// host stays ordered.
type Connector struct {
	writer *kafka.Writer
}

// SASLConfig carries SASL authentication settings for the Kafka
// connector, mirroring config.SASLConfig one level down so this package
// doesn't import internal/config.
type SASLConfig struct {
	Enabled   bool
	Mechanism string // PLAIN | SCRAM-SHA-256 | SCRAM-SHA-512
	Username  string
	Password  string
}

// TLSConfig carries TLS settings for the Kafka connector.
type TLSConfig struct {
	Enabled            bool
	InsecureSkipVerify bool
}

// Config configures the Kafka connector.
type Config struct {
	Brokers []string
	Topic   string
	SASL    SASLConfig
	TLS     TLSConfig
}

// New builds a Connector. The writer is synchronous so a caller's error
// return reflects whether the broker actually accepted the write.
func New(cfg Config) (*Connector, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("%w: kafkaconnector: at least one broker is required", core.ErrConfigInvalid)
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("%w: kafkaconnector: topic is required", core.ErrConfigInvalid)
	}

	transport := &kafka.Transport{}
	useTransport := false

	if cfg.TLS.Enabled {
		transport.TLS = &tls.Config{InsecureSkipVerify: cfg.TLS.InsecureSkipVerify}
		useTransport = true
	}
	if cfg.SASL.Enabled {
		mechanism, err := buildSASLMechanism(cfg.SASL)
		if err != nil {
			return nil, err
		}
		transport.SASL = mechanism
		useTransport = true
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	if useTransport {
		w.Transport = transport
	}

	return &Connector{writer: w}, nil
}

func buildSASLMechanism(cfg SASLConfig) (sasl.Mechanism, error) {
	switch cfg.Mechanism {
	case "", "PLAIN":
		return plain.Mechanism{Username: cfg.Username, Password: cfg.Password}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, cfg.Username, cfg.Password)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, cfg.Username, cfg.Password)
	default:
		return nil, fmt.Errorf("%w: kafkaconnector: unsupported sasl mechanism %q", core.ErrConfigInvalid, cfg.Mechanism)
	}
}

func (c *Connector) write(ctx context.Context, kind, target string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: kafkaconnector: marshal payload: %v", core.ErrTransport, err)
	}
	env := envelope{Version: "v1", Kind: kind, Target: target, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%w: kafkaconnector: marshal envelope: %v", core.ErrTransport, err)
	}
	msg := kafka.Message{Key: []byte(target), Value: data, Time: time.Now()}
	if err := c.writer.WriteMessages(ctx, msg); err != nil {
		metrics.BroadcastErrorsTotal.WithLabelValues("kafka", kind).Inc()
		return fmt.Errorf("%w: kafkaconnector: write: %v", core.ErrTransport, err)
	}
	return nil
}

// BroadcastSetup implements broadcast.BroadcastSetup.
func (c *Connector) BroadcastSetup(ctx context.Context, host string, cfg model.NodeConfig) error {
	return c.write(ctx, "node_setup", host, cfg)
}

// BroadcastPre implements broadcast.BroadcastPre. Kafka delivery is
// fire-and-forget with no response channel, so the remote pre-stage
// result required by the pre-stage merge can never come back over this
// transport; same limitation as Invoke, see the package doc comment.
func (c *Connector) BroadcastPre(ctx context.Context, host, chainID string, pre []model.NodeConfig) (model.Data, error) {
	metrics.BroadcastErrorsTotal.WithLabelValues("kafka", "pre").Inc()
	return model.Data{}, fmt.Errorf("%w: kafkaconnector does not support synchronous BroadcastPre", core.ErrTransport)
}

// Invoke is intentionally unsupported over this transport; see the
// package doc comment.
func (c *Connector) Invoke(ctx context.Context, host, targetID, chainID string, data model.Data) (model.Data, error) {
	metrics.BroadcastErrorsTotal.WithLabelValues("kafka", "invoke").Inc()
	return model.Data{}, fmt.Errorf("%w: kafkaconnector does not support synchronous RemoteService.Invoke", core.ErrTransport)
}

// BroadcastStatus implements broadcast.NodeStatusBroadcast.
func (c *Connector) BroadcastStatus(ctx context.Context, host string, ev eventbus.StatusEvent) error {
	return c.write(ctx, "node_status", host, ev)
}

// Close closes the underlying writer.
func (c *Connector) Close() error {
	return c.writer.Close()
}
