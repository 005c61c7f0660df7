// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sink

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementName is the InfluxDB measurement that samples are written to.
const MeasurementName = "timing_measurements"

// InfluxConfig locates the InfluxDB bucket.
type InfluxConfig struct {
	URL    string `yaml:"url" validate:"required,url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org" validate:"required"`
	Bucket string `yaml:"bucket" validate:"required"`
}

// Influx writes samples to InfluxDB.
//
// # Description
//
// Samples are buffered and written in one blocking request per Flush. Each
// sample becomes a point:
//
//	timing_measurements,run_id=<uuid>,position=<i>,symbol=<s> measurement=<f>,accepted=<b>,trial="<t>",sample=<n>i
//
// # Thread Safety
//
// Safe for concurrent use.
type Influx struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking

	mu      sync.Mutex
	pending []*write.Point
}

// NewInflux connects a sink to the bucket in cfg.
func NewInflux(cfg InfluxConfig) (*Influx, error) {
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, errors.New("influx sink: url, org and bucket are required")
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Influx{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}, nil
}

// NewInfluxWithAPI creates a sink around an existing write API.
func NewInfluxWithAPI(writeAPI api.WriteAPIBlocking) *Influx {
	return &Influx{writeAPI: writeAPI}
}

// Record buffers s as a point.
func (i *Influx) Record(_ context.Context, s Sample) error {
	p := influxdb2.NewPointWithMeasurement(MeasurementName).
		AddTag("run_id", s.RunID).
		AddTag("position", strconv.Itoa(s.Position)).
		AddTag("symbol", s.Symbol).
		AddField("measurement", s.Measurement).
		AddField("accepted", s.Accepted).
		AddField("trial", s.Trial).
		AddField("sample", s.Sample).
		SetTime(s.Time)

	i.mu.Lock()
	i.pending = append(i.pending, p)
	i.mu.Unlock()
	return nil
}

// Flush writes the buffered points. When the write fails because ctx was
// cancelled or timed out the points are kept for the next Flush; any other
// failure drops them so that one unreachable server does not grow the
// buffer without bound.
func (i *Influx) Flush(ctx context.Context) error {
	i.mu.Lock()
	points := i.pending
	i.pending = nil
	i.mu.Unlock()

	if len(points) == 0 {
		return nil
	}
	if err := i.writeAPI.WritePoint(ctx, points...); err != nil {
		if ctx.Err() != nil {
			i.mu.Lock()
			i.pending = append(points, i.pending...)
			i.mu.Unlock()
		}
		return fmt.Errorf("write %d points: %w", len(points), err)
	}
	return nil
}

// Close flushes and closes the client.
func (i *Influx) Close(ctx context.Context) error {
	err := i.Flush(ctx)
	if i.client != nil {
		i.client.Close()
	}
	return err
}

var (
	_ Sink = (*Influx)(nil)
	_ Sink = (*Memory)(nil)
	_ Sink = Nop{}
)
