// Package consumer receives advertisement envelopes from the BLE gateway
// over MQTT and feeds them into the ingest pipeline. The gateway owns the
// radio: adapter management, scanning and address resolution happen there,
// and each detected broadcast arrives here as one JSON envelope.
package consumer

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"ruuviair/internal/mqttclient"
	"ruuviair/internal/pipeline"
	"ruuviair/internal/protocol"
)

// envelope is the gateway's wire format, one message per advertisement.
// Topic layout: ruuvi/{address}/adv.
type envelope struct {
	Address        string `json:"address"`
	RSSI           int    `json:"rssi"`
	ManufacturerID uint16 `json:"manufacturer_id"`
	Data           string `json:"data"` // manufacturer data payload, hex
}

// Consumer subscribes to the gateway topic and hands advertisements to the
// pipeline.
type Consumer struct {
	client   *mqttclient.Client
	pipeline *pipeline.Pipeline
	topic    string
	qos      byte
	logger   *zap.Logger
}

// New creates a consumer. topic is the gateway's publish filter, e.g.
// "ruuvi/+/adv".
func New(client *mqttclient.Client, p *pipeline.Pipeline, topic string, qos byte, logger *zap.Logger) *Consumer {
	return &Consumer{
		client:   client,
		pipeline: p,
		topic:    topic,
		qos:      qos,
		logger:   logger,
	}
}

// Start subscribes and blocks until the context is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	handler := func(topic string, payload []byte) error {
		return c.handleMessage(ctx, topic, payload)
	}
	if err := c.client.Subscribe(c.topic, c.qos, handler); err != nil {
		return fmt.Errorf("failed to subscribe to advertisement topic: %w", err)
	}

	c.logger.Info("advertisement consumer started",
		zap.String("topic", c.topic),
	)

	<-ctx.Done()
	return nil
}

// Stop unsubscribes.
func (c *Consumer) Stop() error {
	if err := c.client.Unsubscribe(c.topic); err != nil {
		return err
	}
	c.logger.Info("advertisement consumer stopped")
	return nil
}

func (c *Consumer) handleMessage(ctx context.Context, topic string, payload []byte) error {
	adv, err := ParseEnvelope(topic, payload)
	if err != nil {
		return err
	}

	// Store errors are already counted and logged by the pipeline; the next
	// advertisement is the retry.
	if err := c.pipeline.Handle(ctx, adv); err != nil {
		return nil
	}
	return nil
}

// ParseEnvelope decodes one gateway message into a RawAdvertisement.
func ParseEnvelope(topic string, payload []byte) (protocol.RawAdvertisement, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return protocol.RawAdvertisement{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}

	// The topic carries the address too; trust the envelope, fall back to
	// the topic segment for gateways that omit it.
	if env.Address == "" {
		parts := strings.Split(topic, "/")
		if len(parts) >= 3 {
			env.Address = parts[1]
		}
	}

	data, err := hex.DecodeString(strings.TrimPrefix(env.Data, "0x"))
	if err != nil {
		return protocol.RawAdvertisement{}, fmt.Errorf("failed to decode payload hex: %w", err)
	}

	return protocol.RawAdvertisement{
		Address:        strings.ToUpper(env.Address),
		RSSI:           env.RSSI,
		ManufacturerID: env.ManufacturerID,
		Data:           data,
	}, nil
}
