package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	mylog "github.com/mohammed-shakir/h3-raster-store/internal/logger"
	"github.com/mohammed-shakir/h3-raster-store/internal/observability"
)

// Evicter drops a raster, and the local views built over it, from the registry.
type Evicter interface {
	RemoveTree(id string) int
}

type FollowerConfig struct {
	Brokers          []string
	Topic            string
	GroupID          string
	Origin           string
	SessionTimeout   time.Duration
	Heartbeat        time.Duration
	RebalanceTimeout time.Duration
}

// Follower consumes lifecycle events published by other instances and
// evicts the rasters they created or deleted, so the next request reopens
// the persisted header.
type Follower struct {
	cfg  FollowerConfig
	reg  Evicter
	log  *slog.Logger
	zlog *zerolog.Logger
}

func NewFollower(cfg FollowerConfig, reg Evicter, zl *zerolog.Logger) *Follower {
	if zl == nil {
		nop := zerolog.Nop()
		zl = &nop
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 30 * time.Second
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 3 * time.Second
	}
	if cfg.RebalanceTimeout <= 0 {
		cfg.RebalanceTimeout = 30 * time.Second
	}
	return &Follower{cfg: cfg, reg: reg, log: mylog.NewSlog(zl), zlog: zl}
}

// Start joins the consumer group and blocks until ctx is cancelled.
func (f *Follower) Start(ctx context.Context) error {
	if f.reg == nil {
		return errors.New("events: follower needs a registry")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Group.Session.Timeout = f.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = f.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = f.cfg.RebalanceTimeout
	// only changes made after this instance started matter
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(f.cfg.Brokers, f.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("events: create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: f.ProcessOne}
	f.log.Info("raster event follower starting",
		"brokers", f.cfg.Brokers, "topic", f.cfg.Topic, "group", f.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			f.log.Info("raster event follower shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{f.cfg.Topic}, handler); err != nil {
				f.zlog.Error().Err(err).
					Strs("brokers", f.cfg.Brokers).
					Str("topic", f.cfg.Topic).
					Msg("kafka consumer error")
				select {
				case <-ctx.Done():
				case <-time.After(2 * time.Second):
				}
			}
		}
	}
}

// ProcessOne applies a single lifecycle event. Undecodable messages are
// logged and skipped so they cannot wedge the partition.
func (f *Follower) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		observability.ObserveEventApplied("unknown", "error")
		mylog.FromContext(ctx, f.zlog).Warn().
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Err(err).
			Msg("undecodable raster event")
		return nil
	}

	if ev.Origin != "" && ev.Origin == f.cfg.Origin {
		observability.ObserveEventApplied(ev.Op, "skipped")
		return nil
	}
	switch ev.Op {
	case OpCreated, OpDeleted:
	default:
		// clones and masks live only in the publishing instance
		observability.ObserveEventApplied(ev.Op, "skipped")
		return nil
	}

	evicted := f.reg.RemoveTree(ev.RasterID)
	observability.ObserveEventApplied(ev.Op, "evicted")
	mylog.FromContext(mylog.WithRasterID(ctx, ev.RasterID), f.zlog).Debug().
		Str("op", ev.Op).
		Str("origin", ev.Origin).
		Int("evicted", evicted).
		Msg("raster evicted by remote event")
	return nil
}

type messageProcessor func(context.Context, *sarama.ConsumerMessage) error

type groupHandler struct {
	process messageProcessor
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim marks each message only after it was processed.
func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("claim context done: %w", ctx.Err())
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.process(ctx, msg); err != nil {
				return fmt.Errorf("process failed (topic=%s, part=%d, off=%d): %w",
					msg.Topic, msg.Partition, msg.Offset, err)
			}
			sess.MarkMessage(msg, "")
		}
	}
}
