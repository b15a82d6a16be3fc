// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/CodeGraphEval/services/eval"
)

func sampleReport() *eval.Report {
	return &eval.Report{
		RunID:     "run-1",
		StartedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Mode:      "native",
		Models:    eval.Models{Agent: "claude-test"},
		Scenarios: []eval.ScenarioResult{
			{
				ID: "enterprise-path",
				Attempts: []eval.Attempt{{
					Number:         1,
					AttributeCount: 0,
					Duration:       1500 * time.Millisecond,
					Checks:         []eval.CheckResult{{Name: "class_path", Passed: true}},
					Metrics: []eval.MetricResult{
						{Name: "PathAccuracy", Score: 0.9, Threshold: 0.8, Passed: true},
						{Name: "AnswerRelevancy", Skipped: true},
					},
				}},
			},
			{
				ID: "enterprise-attributes",
				Attempts: []eval.Attempt{
					{Number: 1, AttributeCount: 3},
					{Number: 2, Err: "rate limited"},
				},
			},
		},
	}
}

func TestPoints(t *testing.T) {
	points := Points(sampleReport())
	require.Len(t, points, 3)

	p := points[0]
	assert.Equal(t, Measurement, p.Name())

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, map[string]string{
		"run_id":   "run-1",
		"scenario": "enterprise-path",
		"mode":     "native",
		"attempt":  "1",
		"model":    "claude-test",
	}, tags)

	fields := map[string]any{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, true, fields["passed"])
	assert.Equal(t, int64(0), fields["attribute_count"])
	assert.Equal(t, int64(1500), fields["duration_ms"])
	assert.Equal(t, 0.9, fields["path_accuracy"])
	assert.NotContains(t, fields, "answer_relevancy", "skipped metrics are not written")

	failed := map[string]any{}
	for _, f := range points[2].FieldList() {
		failed[f.Key] = f.Value
	}
	assert.Equal(t, false, failed["passed"])
	assert.Equal(t, "rate limited", failed["error"])
	assert.NotEqual(t, points[1].Time(), points[2].Time(), "attempts of one run get distinct timestamps")
}

func TestFieldName(t *testing.T) {
	assert.Equal(t, "path_accuracy", fieldName("PathAccuracy"))
	assert.Equal(t, "answer_relevancy", fieldName("answer_relevancy"))
	assert.Equal(t, "response_format", fieldName("Response Format"))
	assert.Equal(t, "faithfulness", fieldName("faithfulness"))
}

func TestInfluxSink_Record(t *testing.T) {
	var (
		mu    sync.Mutex
		body  string
		query string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		body, query = string(data), r.URL.RawQuery
		mu.Unlock()
		assert.Equal(t, "/api/v2/write", r.URL.Path)
		assert.Equal(t, "Token secret", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink, err := NewInfluxSink(InfluxConfig{URL: srv.URL, Token: "secret", Org: "aleutian", Bucket: "evals"})
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Record(context.Background(), sampleReport()))

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, query, "bucket=evals")
	assert.Contains(t, query, "org=aleutian")
	lines := strings.Split(strings.TrimSpace(body), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], Measurement+","))
	assert.Contains(t, lines[0], "scenario=enterprise-path")
	assert.Contains(t, lines[0], "path_accuracy=0.9")
	assert.Contains(t, lines[1], "attribute_count=3i")
}

func TestInfluxSink_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"code":"unauthorized","message":"bad token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	sink, err := NewInfluxSink(InfluxConfig{URL: srv.URL, Org: "o", Bucket: "b"})
	require.NoError(t, err)
	defer sink.Close()

	err = sink.Record(context.Background(), sampleReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "influx bucket b")
}

func TestNewInfluxSink_Validation(t *testing.T) {
	_, err := NewInfluxSink(InfluxConfig{Org: "o", Bucket: "b"})
	assert.Error(t, err)
	_, err = NewInfluxSink(InfluxConfig{URL: "http://localhost:8086"})
	assert.Error(t, err)
}

type bufferWriter struct {
	bytes.Buffer
	closed   bool
	closeErr error
}

func (w *bufferWriter) Close() error {
	w.closed = true
	return w.closeErr
}

func TestGCSUploader_Record(t *testing.T) {
	var (
		object string
		buf    = &bufferWriter{}
	)
	u := &GCSUploader{
		bucket: "eval-archive",
		prefix: "/codegraph/",
		newWriter: func(_ context.Context, name string) io.WriteCloser {
			object = name
			return buf
		},
	}

	require.NoError(t, u.Record(context.Background(), sampleReport()))
	assert.Equal(t, "codegraph/run-1.json", object)
	assert.True(t, buf.closed)
	assert.Equal(t, "gs://eval-archive/codegraph/run-1.json", u.URL("run-1"))

	got, err := eval.ParseReport(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
	assert.NoError(t, u.Close())
}

func TestGCSUploader_CloseError(t *testing.T) {
	u := &GCSUploader{
		bucket: "b",
		newWriter: func(context.Context, string) io.WriteCloser {
			return &bufferWriter{closeErr: errors.New("permission denied")}
		},
	}
	assert.Equal(t, "run-1.json", u.ObjectName("run-1"))

	err := u.Record(context.Background(), sampleReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestNewGCSUploader_Validation(t *testing.T) {
	_, err := NewGCSUploader(context.Background(), GCSConfig{})
	assert.Error(t, err)

	_, err = NewGCSUploader(context.Background(), GCSConfig{Bucket: "b", CredentialsFile: "/nonexistent/key.json"})
	assert.Error(t, err)
}
