package meeting

import (
	"context"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

const roomChannelPrefix = "meeting:"

// RedisLayer fans room broadcasts out across gateway processes over redis
// pub/sub, so participants of one meeting may land on different instances.
type RedisLayer struct {
	hub    *Hub
	client *redis.Client
	logger *slog.Logger

	pubsub *redis.PubSub
	cancel context.CancelFunc

	mu   sync.Mutex
	refs map[string]int
}

// NewRedisLayer connects the hub to redis pub/sub. The returned layer must
// be installed on the hub before any room is joined.
func NewRedisLayer(ctx context.Context, hub *Hub, client *redis.Client, logger *slog.Logger) *RedisLayer {
	if logger == nil {
		logger = slog.Default()
	}
	runCtx, cancel := context.WithCancel(ctx)
	l := &RedisLayer{
		hub:    hub,
		client: client,
		logger: logger,
		pubsub: client.Subscribe(runCtx),
		cancel: cancel,
		refs:   make(map[string]int),
	}
	go l.receive(runCtx)
	return l
}

func (l *RedisLayer) receive(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-l.pubsub.Channel():
			if !ok {
				return
			}
			roomID := msg.Channel[len(roomChannelPrefix):]
			l.hub.DeliverLocal(roomID, []byte(msg.Payload))
		}
	}
}

func (l *RedisLayer) Publish(ctx context.Context, roomID string, payload []byte) error {
	return l.client.Publish(ctx, roomChannelPrefix+roomID, payload).Err()
}

func (l *RedisLayer) Subscribe(roomID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refs[roomID]++
	if l.refs[roomID] == 1 {
		if err := l.pubsub.Subscribe(context.Background(), roomChannelPrefix+roomID); err != nil {
			l.logger.Warn("redis subscribe failed", "room", roomID, "error", err)
		}
	}
}

func (l *RedisLayer) Unsubscribe(roomID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.refs[roomID] == 0 {
		return
	}
	l.refs[roomID]--
	if l.refs[roomID] == 0 {
		delete(l.refs, roomID)
		if err := l.pubsub.Unsubscribe(context.Background(), roomChannelPrefix+roomID); err != nil {
			l.logger.Warn("redis unsubscribe failed", "room", roomID, "error", err)
		}
	}
}

func (l *RedisLayer) Close() error {
	l.cancel()
	return l.pubsub.Close()
}
