package heartbeat

import (
	"context"
	"encoding/json"
	"time"

	"hbridge-go/bus"
	"hbridge-go/types"
)

var (
	topicConfigHeartbeat = bus.T("config", "heartbeat")
	topicHALState        = bus.T("hal", "state")
	TopicBeat            = bus.T("heartbeat")
)

const defaultInterval = time.Second

// Beat is published on each interval.
type Beat struct {
	Seq     uint32 `json:"seq"`
	UptimeS uint32 `json:"uptime_s"`
	HAL     string `json:"hal"` // last hal/state as level/status
}

type Service struct {
	start time.Time
	seq   uint32
	hal   string
}

func (s *Service) beat(conn *bus.Connection, now time.Time) {
	s.seq++
	b := Beat{Seq: s.seq, UptimeS: uint32(now.Sub(s.start) / time.Second), HAL: s.hal}
	println("[heartbeat]", b.Seq, "up", b.UptimeS, "s hal", b.HAL)
	conn.Publish(&bus.Message{Topic: TopicBeat, Payload: b})
}

// interval reads interval_s from a config payload; the bool is false when
// the payload carries no usable value.
func interval(payload any) (time.Duration, bool) {
	var cfg types.HeartbeatConfig
	switch p := payload.(type) {
	case types.HeartbeatConfig:
		cfg = p
	default:
		raw, err := json.Marshal(payload)
		if err != nil || json.Unmarshal(raw, &cfg) != nil {
			return 0, false
		}
	}
	if cfg.IntervalS <= 0 {
		return 0, false
	}
	return time.Duration(cfg.IntervalS) * time.Second, true
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)
	halSub := conn.Subscribe(topicHALState)
	defer conn.Unsubscribe(halSub)

	tick := time.NewTicker(defaultInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			println("[heartbeat] stopping")
			return
		case now := <-tick.C:
			s.beat(conn, now)
		case msg := <-cfgSub.Channel():
			if iv, ok := interval(msg.Payload); ok {
				tick.Reset(iv)
				println("[heartbeat] interval set to", int(iv/time.Second), "s")
			}
		case msg := <-halSub.Channel():
			if st, ok := msg.Payload.(types.HALState); ok {
				s.hal = st.Level + "/" + st.Status
			}
		}
	}
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	s.start = time.Now()
	go s.serviceLoop(ctx, conn)
	return nil
}
