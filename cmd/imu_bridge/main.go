// Command imu_bridge exposes a Modbus IMU on a local serial port to remote
// compass daemons over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goburrow/modbus"
	"github.com/gorilla/mux"
	imodbus "github.com/w1xm/compass_interface/internal/modbus"
	"github.com/w1xm/compass_interface/modbusimu"
	"github.com/w1xm/compass_interface/orientation"
	"go.uber.org/zap"
)

var (
	addr       = flag.String("addr", "127.0.0.1:8503", "address to listen on")
	password   = flag.String("password", "", "password to require on remote connections")
	serialPort = flag.String("serial", "", "IMU serial port name")
	baud       = flag.Int("baud", 9600, "IMU baud rate")
	slaveID    = flag.Uint("slave", 1, "IMU Modbus slave id")
	simulate   = flag.Bool("simulate", false, "serve a simulated IMU instead of a serial port")
	simRate    = flag.Float64("sim_rate", 6, "simulated rotation rate in degrees per second")
)

// simulateIMU turns the device's published orientation at rate degrees per
// second until ctx is done.
func simulateIMU(ctx context.Context, device *imodbus.Device, rate float64, step time.Duration) error {
	ticker := time.NewTicker(step)
	defer ticker.Stop()
	// A heading of exactly north has no rotation axis.
	heading := 0.5
	for {
		regs := modbusimu.Encode(orientation.FromHeadingPitch(heading, 0), 3)
		if err := device.SetInputRegisters(modbusimu.RegisterVector, regs...); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		heading = math.Mod(heading+rate*step.Seconds(), 360)
		if heading < 0 {
			heading += 360
		}
	}
}

func newRouter(transporter modbus.Transporter, password string) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/api/send", &imodbus.SendHandler{Transporter: transporter, Password: password}).Methods(http.MethodPost)
	return r
}

func main() {
	flag.Parse()
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	defer zap.ReplaceGlobals(logger)()

	if *slaveID > 247 {
		zap.S().Fatalf("invalid slave id %d", *slaveID)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var transporter modbus.Transporter
	switch {
	case *simulate:
		device := imodbus.NewDevice(byte(*slaveID), modbusimu.RegisterCount)
		go func() {
			if err := simulateIMU(ctx, device, *simRate, 25*time.Millisecond); err != nil {
				zap.S().Error(err)
			}
		}()
		transporter = device
	case *serialPort != "":
		handler := imodbus.NewRTUHandler(*serialPort, *baud, byte(*slaveID))
		defer handler.Close()
		transporter = handler
	default:
		zap.S().Fatal("one of -serial or -simulate is required")
	}

	srv := &http.Server{
		Handler:      newRouter(transporter, *password),
		Addr:         *addr,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	zap.S().Infof("listening on %v", srv.Addr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		zap.S().Fatal(err)
	}
}
