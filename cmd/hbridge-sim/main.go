// hbridge-sim runs the H-bridge HAL against simulated host outputs and
// offers an interactive shell for driving it over the bus.
package main

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"hbridge-go/bus"
	"hbridge-go/drivers/hbridge"
	"hbridge-go/services/config"
	"hbridge-go/services/hal"
	"hbridge-go/services/hal/platform"
	"hbridge-go/types"
	"hbridge-go/x/strx"

	"github.com/abiosoft/ishell/v2"
)

const requestTimeout = 2 * time.Second

type sim struct {
	conn *bus.Connection
	dir  *directory
	pwms *platform.HostPWM
	i2cs *platform.HostI2CFactory
}

func (s *sim) call(ctx context.Context, device, method string, payload any) (any, error) {
	ref, ok := s.dir.lookup(device)
	if !ok {
		return nil, errors.New("unknown device " + device)
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	t := bus.T("hal", "capability", string(ref.kind), ref.id, "control", method)
	reply, err := s.conn.RequestWait(ctx, s.conn.NewMessage(t, payload, false))
	if err != nil {
		return nil, err
	}
	switch r := reply.Payload.(type) {
	case types.OKReply:
		return r.Result, nil
	case types.ErrorReply:
		return nil, errors.New(r.Error)
	}
	return reply.Payload, nil
}

func parseFloat(s string) (float32, error) {
	f, err := strconv.ParseFloat(s, 32)
	return float32(f), err
}

func main() {
	e, err := config.LoadEnv()
	if err != nil {
		println("[sim] env:", err.Error())
		return
	}
	hbridge.Debug = e.Debug
	e.Device = strx.Coalesce(e.Device, platform.DeviceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bus.NewBus(32)
	s := &sim{
		conn: b.NewConnection("sim"),
		dir:  newDirectory(),
		pwms: platform.DefaultPWMFactory(),
		i2cs: platform.DefaultI2CFactory(),
	}
	s.dir.follow(s.conn)

	go hal.Run(ctx, b.NewConnection("hal"), s.pwms, s.i2cs)
	config.NewConfigService(e).Start(
		context.WithValue(ctx, config.CtxDeviceKey, e.Device), b.NewConnection("config"))

	shell := ishell.New()
	shell.Println("H-bridge simulator (device config: " + e.Device + ")")
	shell.ShowPrompt(true)

	devices := func([]string) []string { return s.dir.names() }
	show := func(c *ishell.Context, res any, err error) {
		if err != nil {
			c.Err(err)
			return
		}
		c.Printf("%+v\n", res)
	}

	shell.AddCmd(&ishell.Cmd{
		Name: "devices",
		Help: "list configured devices",
		Func: func(c *ishell.Context) {
			for _, n := range s.dir.names() {
				ref, _ := s.dir.lookup(n)
				c.Printf("%-12s %s/%d\n", n, ref.kind, ref.id)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name:      "set",
		Completer: devices,
		Help:      "set <device> <off|a|b|short> [duty]",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Println(c.Cmd.Help)
				return
			}
			p := types.MotorSet{Mode: c.Args[1], Duty: 1}
			if len(c.Args) > 2 {
				d, err := parseFloat(c.Args[2])
				if err != nil {
					c.Err(err)
					return
				}
				p.Duty = d
			}
			res, err := s.call(ctx, c.Args[0], "set", p)
			show(c, res, err)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name:      "transition",
		Completer: devices,
		Help:      "transition <device> <mode> <duty> [rate_per_ms] [buildup_ms] [full_short_ms]",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 3 {
				c.Println(c.Cmd.Help)
				return
			}
			duty, err := parseFloat(c.Args[2])
			if err != nil {
				c.Err(err)
				return
			}
			p := types.MotorTransition{Mode: c.Args[1], Duty: duty}
			if len(c.Args) > 3 {
				r, err := parseFloat(c.Args[3])
				if err != nil {
					c.Err(err)
					return
				}
				p.RatePerMs = &r
			}
			for i, dst := range []**uint32{&p.ShortBuildupMs, &p.FullShortMs} {
				if len(c.Args) <= 4+i {
					break
				}
				n, err := strconv.ParseUint(c.Args[4+i], 10, 32)
				if err != nil {
					c.Err(err)
					return
				}
				v := uint32(n)
				*dst = &v
			}
			res, err := s.call(ctx, c.Args[0], "transition", p)
			show(c, res, err)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name:      "brake",
		Completer: devices,
		Help:      "brake <device>",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Println(c.Cmd.Help)
				return
			}
			res, err := s.call(ctx, c.Args[0], "brake", nil)
			show(c, res, err)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name:      "speed",
		Completer: devices,
		Help:      "speed <device> <level> [reverse]",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Println(c.Cmd.Help)
				return
			}
			lvl, err := strconv.Atoi(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			p := types.MotorSpeed{Level: lvl}
			p.Reverse = len(c.Args) > 2 && strings.HasPrefix(c.Args[2], "rev")
			res, err := s.call(ctx, c.Args[0], "speed", p)
			show(c, res, err)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name:      "valve",
		Completer: devices,
		Help:      "valve <device> <on|off>",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Println(c.Cmd.Help)
				return
			}
			res, err := s.call(ctx, c.Args[0], "set", types.ValveSet{On: c.Args[1] == "on"})
			show(c, res, err)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name:      "status",
		Completer: devices,
		Help:      "status <device>",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Println(c.Cmd.Help)
				return
			}
			method := "status"
			if ref, ok := s.dir.lookup(c.Args[0]); ok && ref.kind == types.KindValve {
				method = "get"
			}
			res, err := s.call(ctx, c.Args[0], method, nil)
			show(c, res, err)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "pins",
		Help: "show simulated output levels",
		Func: func(c *ishell.Context) {
			for n := 0; n < 30; n++ {
				if ch, ok := s.pwms.Get(n); ok && ch.Writes() > 0 {
					c.Printf("gpio%-3d %.3f (%d writes)\n", n, ch.Level(), ch.Writes())
				}
			}
			for name, b := range s.i2cs.Buses {
				h, ok := b.(*platform.HostI2C)
				if !ok || h.Reg(0x40, 0xFE) == 0 {
					continue
				}
				for ch := uint8(0); ch < 16; ch++ {
					if l := h.PCA9685Level(0x40, ch); l > 0 {
						c.Printf("%s/0x40/%-2d %.3f\n", name, ch, l)
					}
				}
			}
		},
	})

	shell.Run()
	shell.Close()
}
