// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package export sends evaluation reports to external systems: InfluxDB for
// dashboards and Google Cloud Storage for archiving.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/AleutianAI/CodeGraphEval/services/eval"
)

// Measurement is the InfluxDB measurement attempts are written to.
const Measurement = "graphrag_evaluations"

// InfluxConfig configures an InfluxSink.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string

	// Timeout bounds each write. Zero means 10 seconds.
	Timeout time.Duration
}

// InfluxSink writes one point per attempt to InfluxDB.
//
// Thread Safety:
//
//	InfluxSink is safe for concurrent use.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	bucket   string
	timeout  time.Duration
}

var _ eval.Sink = (*InfluxSink)(nil)

// NewInfluxSink creates a sink. It does not contact the server.
func NewInfluxSink(cfg InfluxConfig) (*InfluxSink, error) {
	if cfg.URL == "" {
		return nil, errors.New("influx url is required")
	}
	if cfg.Org == "" || cfg.Bucket == "" {
		return nil, errors.New("influx org and bucket are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	opts := influxdb2.DefaultOptions().SetHTTPRequestTimeout(uint(cfg.Timeout.Seconds()))
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		bucket:   cfg.Bucket,
		timeout:  cfg.Timeout,
	}, nil
}

// Record implements eval.Sink.
func (s *InfluxSink) Record(ctx context.Context, report *eval.Report) error {
	points := Points(report)
	if len(points) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("write %d points to influx bucket %s: %w", len(points), s.bucket, err)
	}
	slog.Info("Wrote evaluation points to InfluxDB", "bucket", s.bucket, "points", len(points), "run_id", report.RunID)
	return nil
}

// Close releases the client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

// Points converts a report to InfluxDB points, one per attempt.
//
// Tags are run_id, scenario, mode and attempt. Fields are passed,
// attribute_count, duration_ms, error and one field per metric score,
// named after the metric in snake case. Skipped metrics have no field.
func Points(report *eval.Report) []*write.Point {
	var points []*write.Point
	for _, sc := range report.Scenarios {
		for _, a := range sc.Attempts {
			p := influxdb2.NewPointWithMeasurement(Measurement).
				AddTag("run_id", report.RunID).
				AddTag("scenario", sc.ID).
				AddTag("mode", report.Mode).
				AddTag("attempt", strconv.Itoa(a.Number)).
				AddField("passed", a.Passed()).
				AddField("attribute_count", a.AttributeCount).
				AddField("duration_ms", a.Duration.Milliseconds()).
				SetTime(report.StartedAt.Add(time.Duration(a.Number) * time.Microsecond))
			if report.Models.Agent != "" {
				p.AddTag("model", report.Models.Agent)
			}
			if a.Err != "" {
				p.AddField("error", a.Err)
			}
			for _, m := range a.Metrics {
				if m.Skipped || m.Error != "" {
					continue
				}
				p.AddField(fieldName(m.Name), m.Score)
			}
			points = append(points, p)
		}
	}
	return points
}

// fieldName turns "PathAccuracy" or "answer_relevancy" into snake case.
func fieldName(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case r >= 'A' && r <= 'Z':
			if i > 0 && !strings.HasSuffix(b.String(), "_") {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
		case r == ' ' || r == '-':
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
