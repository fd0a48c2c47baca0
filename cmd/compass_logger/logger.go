// Command compass_logger records the compass daemon's status stream in
// InfluxDB.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/w1xm/compass_interface/config"
	"go.uber.org/zap"
)

const measurement = "compass.status"

var configPath = flag.String("config", "compass.yaml", "path to YAML configuration")

func main() {
	flag.Parse()
	logger, err := zap.NewProduction()
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
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Create client
	client := influxdb2.NewClient(cfg.Influx.Server, cfg.Influx.Token)
	defer client.Close()
	// Get non-blocking write client
	writeApi := client.WriteApi(cfg.Influx.Org, cfg.Influx.Bucket)
	defer writeApi.Close()
	// Get errors channel
	errorsCh := writeApi.Errors()
	// Create go proc for reading and logging errors
	go func() {
		for err := range errorsCh {
			zap.S().Warnf("write error: %v", err)
		}
	}()
	zap.S().Infof("recording %s into %s/%s", cfg.Influx.Compass, cfg.Influx.Server, cfg.Influx.Bucket)
	for ctx.Err() == nil {
		if err := logData(ctx, cfg.Influx.Compass, writeApi); err != nil && ctx.Err() == nil {
			zap.S().Info(err)
		}
		select {
		case <-ctx.Done():
		case <-time.After(1 * time.Second):
		}
	}
}

func flattenStatus(fields map[string]interface{}, status interface{}, prefix string) {
	switch status := status.(type) {
	case map[string]interface{}:
		for k, v := range status {
			flattenStatus(fields, v, prefix+"."+k)
		}
	case []interface{}:
		for k, v := range status {
			flattenStatus(fields, v, fmt.Sprintf("%s.%d", prefix, k))
		}
	case nil:
	default:
		fields[prefix[1:]] = status
	}
}

// statusFields flattens one status message. The status's own timestamp
// becomes the point time; messages without one are stamped with now.
func statusFields(data []byte, now time.Time) (map[string]interface{}, time.Time, error) {
	var status interface{}
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, time.Time{}, err
	}
	fields := make(map[string]interface{})
	flattenStatus(fields, status, "")
	ts := now
	if s, ok := fields["time"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil && !t.IsZero() {
			ts = t
		}
		delete(fields, "time")
	}
	return fields, ts, nil
}

func logData(ctx context.Context, url string, writeApi api.WriteApi) error {
	defer writeApi.Flush()
	var dialer websocket.Dialer
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		fields, ts, err := statusFields(data, time.Now())
		if err != nil {
			zap.S().Debugf("skipping message: %v", err)
			continue
		}
		if len(fields) == 0 {
			continue
		}
		p := influxdb2.NewPoint(measurement,
			nil,
			fields,
			ts,
		)
		// write asynchronously
		writeApi.WritePoint(p)
	}
}
