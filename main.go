package main

import (
	"context"
	"time"

	"hbridge-go/bus"
	"hbridge-go/drivers/hbridge"
	"hbridge-go/services/config"
	"hbridge-go/services/hal"
	"hbridge-go/services/hal/platform"
	"hbridge-go/services/heartbeat"
	"hbridge-go/x/strx"
)

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("[main] boot")

	e, err := config.LoadEnv()
	if err != nil {
		println("[main] env:", err.Error())
	}
	hbridge.Debug = e.Debug
	e.Device = strx.Coalesce(e.Device, platform.DeviceName)

	ctx := context.WithValue(context.Background(), config.CtxDeviceKey, e.Device)
	b := bus.NewBus(8)

	go hal.Run(ctx, b.NewConnection("hal"), platform.DefaultPWMFactory(), platform.DefaultI2CFactory())

	hb := &heartbeat.Service{}
	if err := hb.Start(ctx, b.NewConnection("heartbeat")); err != nil {
		println("[main] heartbeat:", err.Error())
	}

	config.NewConfigService(e).Start(ctx, b.NewConnection("config"))

	<-ctx.Done()
}
