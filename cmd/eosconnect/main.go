package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/eosconnect/eosconnect/pkg/battery"
	"github.com/eosconnect/eosconnect/pkg/control"
	"github.com/eosconnect/eosconnect/pkg/evcc"
	"github.com/eosconnect/eosconnect/pkg/forecast"
	"github.com/eosconnect/eosconnect/pkg/inverter"
	"github.com/eosconnect/eosconnect/pkg/load"
	"github.com/eosconnect/eosconnect/pkg/log"
	"github.com/eosconnect/eosconnect/pkg/mqtt"
	"github.com/eosconnect/eosconnect/pkg/optimizer"
	"github.com/eosconnect/eosconnect/pkg/price"
	"github.com/eosconnect/eosconnect/pkg/scheduler"
	"github.com/eosconnect/eosconnect/pkg/server"
	"github.com/eosconnect/eosconnect/pkg/types"

	"github.com/joho/godotenv"
	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
)

func main() {
	// flags may come from a .env file next to the binary
	_ = godotenv.Load()

	// init the ports
	prices := price.Configured()
	loads := load.Configured()
	batteries := battery.Configured()
	evccClient := evcc.Configured()
	pvForecast := forecast.Configured()
	settings, driver := inverter.Configured(evccClient)
	backend := optimizer.Configured()
	broker := mqtt.Configured()

	ctrl := control.New(driver, settings, batteries)
	sched := scheduler.Configured(scheduler.Deps{
		Backend:    backend,
		Prices:     prices,
		Loads:      loads,
		Battery:    batteries,
		Forecast:   pvForecast,
		EVCC:       evccClient,
		Controller: ctrl,
		Inverter:   driver,
		Settings:   settings,
	})
	srv := server.Configured(sched, ctrl, batteries, evccClient, driver, settings)

	// parse flags
	lflag.Configure()

	// a leading positional argument overrides the working directory; lflag's
	// CLI source ignores arguments it does not know
	if len(os.Args) > 1 && !strings.HasPrefix(os.Args[1], "-") {
		sched.SetWorkDir(os.Args[1])
	}
	srv.SetWorkDir(sched.WorkDir())

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// the MQTT command topic goes through the same validation as the HTTP
	// override endpoint, with the charge power converted from W to kW
	broker.SetOverrideHandler(func(mode int, duration string, chargePowerW float64) {
		if duration == "" {
			duration = "02:00"
		}
		var d time.Duration
		if mode >= 0 {
			var err error
			d, err = control.ParseOverrideDuration(duration)
			if err != nil {
				log.Ctx(ctx).WarnContext(ctx, "ignoring override command", "error", err)
				return
			}
		}
		if err := ctrl.ApplyOverride(mode, d, chargePowerW/1000); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "ignoring override command", "error", err)
			return
		}
		sched.Reevaluate(ctx)
	})
	if broker.Enabled() {
		if err := broker.Connect(ctx); err != nil {
			// the paho client keeps retrying in the background
			log.Ctx(ctx).WarnContext(ctx, "initial mqtt connect failed", "error", err)
		}
		sched.SetPublisher(broker)
	}

	// start the port pollers
	go batteries.Run(ctx)
	go pvForecast.Run(ctx)
	if evccClient.Enabled() {
		go evccClient.Run(ctx)
	}

	// give the pollers a head start so the first optimization sees data
	warmup := 3*time.Second + time.Duration(pvForecast.Planes())*time.Second
	log.Ctx(ctx).InfoContext(ctx, "waiting for ports to initialize",
		slog.Duration("warmup", warmup),
	)
	select {
	case <-time.After(warmup):
	case <-ctx.Done():
		return
	}

	// state changes outside the optimization cycle feed straight into the
	// control state machine
	evccClient.SetOnChange(func(bool, types.ChargeMode) { sched.Reevaluate(ctx) })
	batteries.SetObserver(func(float64) { sched.Reevaluate(ctx) })

	sched.Run(ctx)
	defer func() {
		shutdownCtx := context.Background()
		sched.Shutdown(shutdownCtx)
		broker.Shutdown()
	}()

	// Run blocks until the context is canceled or an error happens
	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
