package main

import (
	"sort"
	"strconv"
	"sync"

	"hbridge-go/bus"
	"hbridge-go/types"
)

type capRef struct {
	kind types.Kind
	id   int
}

// directory maps configured device ids to their capability addresses by
// following the retained hal/capability/+/+/info topics.
type directory struct {
	mu   sync.Mutex
	devs map[string]capRef
}

func newDirectory() *directory { return &directory{devs: map[string]capRef{}} }

func (d *directory) follow(conn *bus.Connection) {
	sub := conn.Subscribe(bus.T("hal", "capability", bus.WildOne, bus.WildOne, "info"))
	go func() {
		for m := range sub.Channel() {
			kind, _ := m.Topic.At(2).(string)
			id, ok := m.Topic.At(3).(int)
			if !ok {
				if s, isStr := m.Topic.At(3).(string); isStr {
					id, _ = strconv.Atoi(s)
				}
			}
			d.update(capRef{kind: types.Kind(kind), id: id}, m.Payload)
		}
	}()
}

func (d *directory) update(ref capRef, payload any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	info, ok := payload.(types.Info)
	if !ok {
		// cleared: drop whichever device held this address
		for name, r := range d.devs {
			if r == ref {
				delete(d.devs, name)
			}
		}
		return
	}
	d.devs[info.Device] = ref
}

func (d *directory) lookup(name string) (capRef, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.devs[name]
	return r, ok
}

func (d *directory) names() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.devs))
	for k := range d.devs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
