package redis

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/martin-1103/gbika-sub001/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const (
	presenceKey       = "livechat:instances"
	unregisterTimeout = 2 * time.Second
)

// Presence keeps this relay instance's heartbeat in a shared Redis hash so
// staff can see which instances are live and how many sockets each holds.
// An entry older than three heartbeats is treated as gone.
type Presence struct {
	rdb         *goredis.Client
	clock       clockwork.Clock
	instanceID  string
	version     string
	heartbeat   time.Duration
	connections func() int
}

func NewPresence(rdb *goredis.Client, clock clockwork.Clock, instanceID, version string, heartbeat time.Duration, connections func() int) *Presence {
	return &Presence{
		rdb:         rdb,
		clock:       clock,
		instanceID:  instanceID,
		version:     version,
		heartbeat:   heartbeat,
		connections: connections,
	}
}

// Run registers immediately, then on every heartbeat tick. It blocks until
// ctx is cancelled and removes the entry on the way out.
func (p *Presence) Run(ctx context.Context) {
	p.beat(ctx)

	ticker := p.clock.NewTicker(p.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			p.beat(ctx)
		case <-ctx.Done():
			p.unregister()
			return
		}
	}
}

func (p *Presence) beat(ctx context.Context) {
	if err := p.register(ctx); err != nil {
		slog.WarnContext(ctx, "Presence heartbeat failed", "instance_id", p.instanceID, "error", err)
	}
}

func (p *Presence) register(ctx context.Context) error {
	data, err := json.Marshal(domain.InstanceInfo{
		InstanceID:  p.instanceID,
		Version:     p.version,
		Connections: p.connections(),
		HeartbeatAt: p.clock.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal heartbeat: %w", err)
	}

	if err := p.rdb.HSet(ctx, presenceKey, p.instanceID, data).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", presenceKey, err)
	}
	return nil
}

func (p *Presence) unregister() {
	ctx, cancel := context.WithTimeout(context.Background(), unregisterTimeout)
	defer cancel()

	if err := p.rdb.HDel(ctx, presenceKey, p.instanceID).Err(); err != nil {
		slog.Warn("Failed to remove presence entry", "instance_id", p.instanceID, "error", err)
	}
}

// Instances returns the live instances ordered by ID.
func (p *Presence) Instances(ctx context.Context) ([]domain.InstanceInfo, error) {
	entries, err := p.rdb.HGetAll(ctx, presenceKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: hgetall %s: %w", domain.ErrUnavailable, presenceKey, err)
	}

	cutoff := p.clock.Now().Add(-3 * p.heartbeat)
	live := make([]domain.InstanceInfo, 0, len(entries))
	for id, data := range entries {
		var info domain.InstanceInfo
		if err := json.Unmarshal([]byte(data), &info); err != nil {
			slog.WarnContext(ctx, "Skipping malformed presence entry", "instance_id", id, "error", err)
			continue
		}
		if info.HeartbeatAt.Before(cutoff) {
			continue
		}
		live = append(live, info)
	}

	slices.SortFunc(live, func(a, b domain.InstanceInfo) int {
		return cmp.Compare(a.InstanceID, b.InstanceID)
	})
	return live, nil
}
