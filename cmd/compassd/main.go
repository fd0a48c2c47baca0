// Command compassd serves the heading of an orientation sensor over HTTP,
// a websocket and the rotctld protocol.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/w1xm/compass_interface/compass"
	"github.com/w1xm/compass_interface/config"
	imodbus "github.com/w1xm/compass_interface/internal/modbus"
	"github.com/w1xm/compass_interface/modbusimu"
	"github.com/w1xm/compass_interface/orientation"
	"github.com/w1xm/compass_interface/sensor"
	"github.com/w1xm/compass_interface/sensorlink"
	"github.com/w1xm/compass_interface/sensorlink/simulator"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	configPath = flag.String("config", "compass.yaml", "path to YAML configuration")
	staticDir  = flag.String("static_dir", "", "directory containing static files (overrides config)")
	debug      = flag.Bool("debug", false, "enable debug logging")
	simRate    = flag.Float64("sim_rate", 6, "simulator rotation rate in degrees per second")
)

func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

func openSource(ctx context.Context, cfg config.SensorConfig, eventCallback sensor.EventCallback) (sensor.Source, error) {
	switch cfg.Source {
	case "tcp":
		return sensorlink.ConnectTCP(ctx, cfg.Address, eventCallback), nil
	case "serial":
		return sensorlink.OpenSerial(ctx, cfg.Port, cfg.Baud, eventCallback), nil
	case "modbus":
		return modbusimu.Connect(ctx, &imodbus.Client{
			Port:     cfg.Port,
			BaudRate: cfg.Baud,
			SlaveId:  cfg.SlaveId,
			URL:      cfg.URL,
			Password: cfg.Password,
		}, eventCallback)
	case "simulator":
		sim, conn := simulator.New()
		sim.SetRate(*simRate)
		go func() {
			if err := sim.Run(ctx); err != nil && ctx.Err() == nil {
				zap.S().Errorf("simulator: %v", err)
			}
		}()
		link, _ := sensorlink.Attach(ctx, conn, eventCallback)
		return link, nil
	}
	return nil, fmt.Errorf("unknown sensor source %q", cfg.Source)
}

func main() {
	flag.Parse()

	logger, err := newLogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	defer zap.ReplaceGlobals(logger)()

	cfg, err := config.Load(*configPath)
	if err != nil {
		zap.S().Fatal(err)
	}
	if *staticDir != "" {
		cfg.StaticDir = *staticDir
	}
	if err := cfg.Validate(); err != nil {
		zap.S().Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := NewServer()
	c, err := compass.New(cfg.Compass.Settings, nil, server.statusCallback)
	if err != nil {
		zap.S().Fatal(err)
	}
	server.compass = c
	rotation, err := orientation.ParseDisplayRotation(cfg.Compass.DisplayRotation)
	if err != nil {
		zap.S().Fatal(err)
	}
	if err := c.SetRotation(rotation); err != nil {
		zap.S().Fatal(err)
	}
	if fix, ok := cfg.Location.Fix(); ok {
		fix.Time = time.Now()
		if err := c.SetFix(&fix); err != nil {
			zap.S().Fatal(err)
		}
	}

	source, err := openSource(ctx, cfg.Sensor, c.HandleEvent)
	if err != nil {
		zap.S().Fatal(err)
	}
	server.source = source

	srv := &http.Server{
		Handler:      server.Router(cfg.StaticDir),
		Addr:         cfg.Addr,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	var rotctld interface{ Close() error }
	if cfg.Rotctld != "" {
		ln, err := server.ListenRotctld(cfg.Rotctld)
		if err != nil {
			zap.S().Fatalf("listening for rotctld: %v", err)
		}
		zap.S().Infof("rotctld listening on %v", ln.Addr())
		rotctld = ln
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zap.S().Infof("listening on %v", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		zap.S().Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if rotctld != nil {
			err = multierr.Append(err, rotctld.Close())
		}
		return err
	})
	if err := g.Wait(); err != nil {
		zap.S().Fatal(err)
	}
}
