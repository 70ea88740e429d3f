package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"realtime/internal/events"
	"realtime/internal/models"
)

const (
	notifyChannel    = "realtime:notify"
	broadcastChannel = "realtime:broadcast"
	usageChannel     = "realtime:usage"
)

// Bridge connects the realtime core to the rest of the product over
// Redis pub/sub. The HTTP CRUD API publishes notify/broadcast commands
// here instead of calling the admin endpoints; the bridge in turn
// publishes usage-counter updates for dashboard consumers. Redis is a
// transport only, nothing is ever read back as state.
type Bridge struct {
	log        *zap.Logger
	rdb        *redis.Client
	router     *events.Router
	instanceID string
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewBridge(log *zap.Logger, redisAddr string, router *events.Router) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		log:        log,
		rdb:        redis.NewClient(&redis.Options{Addr: redisAddr}),
		router:     router,
		instanceID: uuid.New().String(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// InstanceID identifies this process on the usage channel.
func (b *Bridge) InstanceID() string { return b.instanceID }

// Start subscribes to the command channels in the background and wires
// the usage listener. Call once at startup.
func (b *Bridge) Start() {
	b.router.SetUsageListener(b.publishUsage)
	go b.subscribe()
}

func (b *Bridge) Stop() {
	b.cancel()
	_ = b.rdb.Close()
}

func (b *Bridge) subscribe() {
	pubsub := b.rdb.Subscribe(b.ctx, notifyChannel, broadcastChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	b.log.Info("subscribed to command channels",
		zap.String("instanceId", b.instanceID))

	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.handleMessage(msg.Channel, []byte(msg.Payload))
		}
	}
}

func (b *Bridge) handleMessage(channel string, payload []byte) {
	switch channel {
	case notifyChannel:
		var cmd models.NotifyCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			b.log.Warn("bad notify command", zap.Error(err))
			return
		}
		if cmd.UserID == "" || cmd.Event == "" {
			b.log.Warn("notify command missing userId or event")
			return
		}
		if !b.router.SendToUser(cmd.UserID, models.Frame{Type: cmd.Event, Data: cmd.Data}) {
			b.log.Debug("notify target not connected", zap.String("userId", cmd.UserID))
		}
	case broadcastChannel:
		var cmd models.BroadcastCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			b.log.Warn("bad broadcast command", zap.Error(err))
			return
		}
		if cmd.DocumentID == "" || cmd.Event == "" {
			b.log.Warn("broadcast command missing documentId or event")
			return
		}
		b.router.BroadcastToRoom(cmd.DocumentID, models.Frame{Type: cmd.Event, Data: cmd.Data})
	}
}

// publishUsage pushes counter updates onto the usage channel. Failures
// are logged and dropped; counters remain authoritative in-process.
func (b *Bridge) publishUsage(documentID, action string, counters models.DocumentUsage) {
	update := models.UsageUpdate{
		InstanceID: b.instanceID,
		DocumentID: documentID,
		Action:     action,
		Counters:   counters,
		Timestamp:  time.Now(),
	}
	data, err := json.Marshal(update)
	if err != nil {
		b.log.Warn("marshal usage update", zap.Error(err))
		return
	}
	if err := b.rdb.Publish(b.ctx, usageChannel, data).Err(); err != nil {
		b.log.Warn("publish usage update", zap.Error(err))
	}
}
