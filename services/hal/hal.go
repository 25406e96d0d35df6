// services/hal/hal.go
package hal

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"hbridge-go/bus"
	"hbridge-go/errcode"
	"hbridge-go/types"
	"hbridge-go/x/timex"
)

// DefaultTick is the engine step period when the config does not set one.
const DefaultTick = 10 * time.Millisecond

var (
	TopicConfig     = bus.T("config", "hal")
	TopicState      = bus.T("hal", "state")
	TopicCapability = bus.T("hal", "capability")
)

// -----------------------------------------------------------------------------
// Entry point
// -----------------------------------------------------------------------------

// Run serves H-bridge devices until ctx is cancelled. Configuration arrives
// (retained) on config/hal; controls on hal/capability/<kind>/<id>/control/<method>.
// pwms or i2cs may be nil if the platform has none.
func Run(ctx context.Context, conn *bus.Connection, pwms PWMFactory, i2cs I2CBusFactory) {
	h := &service{
		conn:      conn,
		pool:      newChannelPool(pwms, i2cs),
		clk:       timex.NewMonotonic(),
		devices:   map[string]devEntry{},
		capToDev:  map[capKey]string{},
		nextCapID: map[types.Kind]int{},
		tick:      DefaultTick,
	}
	h.loop(ctx)
}

// -----------------------------------------------------------------------------
// Types
// -----------------------------------------------------------------------------

type devEntry struct {
	adaptor Adaptor
	typ     string
	caps    map[types.Kind]int // kind -> numeric capability id
}

type capKey struct {
	kind types.Kind
	id   int
}

type service struct {
	conn *bus.Connection
	pool *channelPool
	clk  timex.Clock

	devices   map[string]devEntry
	order     []string // device ids, stable tick order
	capToDev  map[capKey]string
	nextCapID map[types.Kind]int

	tick       time.Duration
	timer      *time.Timer
	configured bool // a config/hal document has been applied
}

// -----------------------------------------------------------------------------
// Main loop
// -----------------------------------------------------------------------------

func (s *service) loop(ctx context.Context) {
	cfgSub := s.conn.Subscribe(TopicConfig)
	ctrlSub := s.conn.Subscribe(TopicCapability.Append(bus.WildOne, bus.WildOne, "control", bus.WildOne))
	defer s.conn.Unsubscribe(cfgSub)
	defer s.conn.Unsubscribe(ctrlSub)
	defer s.closeAll()

	s.publishState("idle", "awaiting_config", nil)

	s.timer = time.NewTimer(time.Hour)
	stopTimer(s.timer)

	for {
		select {
		case <-ctx.Done():
			s.publishState("stopped", "context_cancelled", nil)
			return

		case msg, ok := <-cfgSub.Channel():
			if !ok {
				return
			}
			if msg.Payload == nil {
				continue
			}
			var cfg types.HALConfig
			if err := decodeJSON(msg.Payload, &cfg); err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			err := s.applyConfig(cfg)
			s.configured = true
			s.armTimer()
			if err != nil {
				s.publishState("error", "apply_config_failed", err)
				continue
			}
			s.publishState("ready", "configured", nil)

		case msg, ok := <-ctrlSub.Channel():
			if !ok {
				return
			}
			s.handleControl(msg)

		case <-s.timer.C:
			for _, id := range s.order {
				s.devices[id].adaptor.Tick()
			}
			s.flush()
			s.armTimer()
		}
	}
}

func (s *service) armTimer() {
	if len(s.devices) == 0 {
		stopTimer(s.timer)
		return
	}
	resetTimer(s.timer, s.tick)
}

// hal/capability/<kind>/<id:int>/control/<method>
func (s *service) handleControl(msg *bus.Message) {
	if msg.Topic.Len() < 6 {
		return
	}
	if !s.configured {
		s.replyErr(msg, errcode.HALNotReady)
		return
	}
	kind, _ := msg.Topic.At(2).(string)
	idNum, ok := asInt(msg.Topic.At(3))
	if !ok || kind == "" {
		s.replyErr(msg, errcode.InvalidTopic)
		return
	}
	devID, ok := s.capToDev[capKey{kind: types.Kind(kind), id: idNum}]
	if !ok {
		s.replyErr(msg, errcode.UnknownCapability)
		return
	}
	method, _ := msg.Topic.At(5).(string)

	ent := s.devices[devID]
	res, err := ent.adaptor.Control(types.Kind(kind), method, msg.Payload)
	if err != nil {
		if err == ErrUnsupported {
			err = errcode.Unsupported
		}
		s.replyErr(msg, err)
		return
	}
	s.replyOK(msg, res)
	s.flushDevice(devID, ent)
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// applyConfig builds new devices and removes those no longer listed.
// Devices already present are kept as they are. A device that fails to
// build is skipped; the first such error is returned.
func (s *service) applyConfig(cfg types.HALConfig) error {
	s.tick = tickPeriod(cfg.TickMs)

	var firstErr error
	seen := map[string]struct{}{}

	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		seen[d.ID] = struct{}{}

		if _, exists := s.devices[d.ID]; exists {
			continue
		}
		ad, err := s.build(d)
		if err != nil {
			println("[hal] device", d.ID, "("+d.Type+") not built:", err.Error())
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		entry := devEntry{adaptor: ad, typ: d.Type, caps: map[types.Kind]int{}}
		for _, ci := range ad.Capabilities() {
			id := s.nextCapID[ci.Kind]
			s.nextCapID[ci.Kind]++

			entry.caps[ci.Kind] = id
			s.capToDev[capKey{kind: ci.Kind, id: id}] = d.ID

			info := ci.Info
			info.Device = d.ID
			s.pubRet(capTopic(ci.Kind, id, "info"), info)
			s.pubRet(capTopic(ci.Kind, id, "state"),
				types.CapabilityStatus{Link: types.LinkUp, TS: timex.NowMs()})
		}
		s.devices[d.ID] = entry
		s.flushDevice(d.ID, entry)
	}

	// Tidy-up: remove devices not in config
	for devID := range s.devices {
		if _, ok := seen[devID]; !ok {
			s.remove(devID)
		}
	}

	s.order = s.order[:0]
	for id := range s.devices {
		s.order = append(s.order, id)
	}
	sort.Strings(s.order)

	return firstErr
}

func (s *service) build(d *types.HALDevice) (Adaptor, error) {
	if d.ID == "" {
		return nil, &errcode.E{C: errcode.InvalidParams, Msg: "device id required"}
	}
	b, ok := findBuilder(d.Type)
	if !ok {
		return nil, &errcode.E{C: errcode.UnknownBuilder, Msg: d.Type}
	}
	return b.Build(BuildInput{
		DeviceID: d.ID,
		Type:     d.Type,
		Params:   d.Params,
		Channels: s.pool,
		Clock:    s.clk,
	})
}

func (s *service) remove(devID string) {
	ent := s.devices[devID]
	if err := ent.adaptor.Close(); err != nil {
		println("[hal] close", devID, "failed:", err.Error())
	}
	for kind, id := range ent.caps {
		s.pubRet(capTopic(kind, id, "info"), nil)
		s.pubRet(capTopic(kind, id, "value"), nil)
		s.pubRet(capTopic(kind, id, "state"),
			types.CapabilityStatus{Link: types.LinkDown, TS: timex.NowMs()})
		delete(s.capToDev, capKey{kind: kind, id: id})
	}
	s.pool.Release(devID)
	delete(s.devices, devID)
}

func (s *service) closeAll() {
	for id := range s.devices {
		s.remove(id)
	}
}

// -----------------------------------------------------------------------------
// Publishing
// -----------------------------------------------------------------------------

func (s *service) flush() {
	for _, id := range s.order {
		s.flushDevice(id, s.devices[id])
	}
}

func (s *service) flushDevice(devID string, ent devEntry) {
	for _, rd := range ent.adaptor.Poll() {
		id, ok := ent.caps[rd.Kind]
		if !ok {
			continue
		}
		s.pubRet(capTopic(rd.Kind, id, rd.Topic), rd.Payload)
	}
}

func (s *service) publishState(level, status string, err error) {
	st := types.HALState{Level: level, Status: status, TS: timex.NowMs()}
	if err != nil {
		st.Error = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(TopicState, st, true))
}

func (s *service) replyOK(req *bus.Message, result any) {
	if !req.CanReply() {
		return
	}
	s.conn.Reply(req, types.OKReply{OK: true, Result: result}, false)
}

func (s *service) replyErr(req *bus.Message, err error) {
	if !req.CanReply() {
		return
	}
	s.conn.Reply(req, types.ErrorReply{OK: false, Error: string(errcode.Of(err))}, false)
}

func capTopic(kind types.Kind, id int, rest ...bus.Token) bus.Topic {
	return TopicCapability.Append(string(kind), id).Append(rest...)
}

func (s *service) pubRet(t bus.Topic, p any) {
	s.conn.Publish(s.conn.NewMessage(t, p, true))
}

// -----------------------------------------------------------------------------
// Decoding
// -----------------------------------------------------------------------------

func decodeJSON[T any](src any, dst *T) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		// Accept maps, structs, numbers… by marshaling then decoding to T.
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, dst)
	}
}

func asInt(t any) (int, bool) {
	switch v := t.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint:
		return int(v), true
	case uint8:
		return int(v), true
	case uint16:
		return int(v), true
	case uint32:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	default:
		return 0, false
	}
}
