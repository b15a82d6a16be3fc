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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/AleutianAI/CodeGraphEval/services/eval"
)

// GCSConfig configures a GCSUploader.
type GCSConfig struct {
	// Bucket is the destination bucket. Required.
	Bucket string

	// Prefix is prepended to object names.
	Prefix string

	// CredentialsFile is a service account key. Empty uses application
	// default credentials.
	CredentialsFile string
}

// GCSUploader archives JSON reports to gs://<bucket>/<prefix>/<run-id>.json.
type GCSUploader struct {
	client    *storage.Client
	bucket    string
	prefix    string
	newWriter func(ctx context.Context, object string) io.WriteCloser
}

var _ eval.Sink = (*GCSUploader)(nil)

// NewGCSUploader creates an uploader.
func NewGCSUploader(ctx context.Context, cfg GCSConfig) (*GCSUploader, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		if _, err := os.Stat(cfg.CredentialsFile); err != nil {
			return nil, fmt.Errorf("service account key not found at path: %s: %w", cfg.CredentialsFile, err)
		}
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	u := &GCSUploader{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}
	u.newWriter = func(ctx context.Context, object string) io.WriteCloser {
		w := client.Bucket(u.bucket).Object(object).NewWriter(ctx)
		w.ContentType = "application/json"
		w.CacheControl = "no-cache, no-store, must-revalidate"
		return w
	}
	return u, nil
}

// ObjectName returns the object a report is stored under.
func (u *GCSUploader) ObjectName(runID string) string {
	return path.Join(strings.Trim(u.prefix, "/"), runID+".json")
}

// URL returns the gs:// URL of a report.
func (u *GCSUploader) URL(runID string) string {
	return fmt.Sprintf("gs://%s/%s", u.bucket, u.ObjectName(runID))
}

// Record implements eval.Sink by uploading the report.
func (u *GCSUploader) Record(ctx context.Context, report *eval.Report) error {
	data, err := report.JSON()
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	object := u.ObjectName(report.RunID)
	w := u.newWriter(ctx, object)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write GCS object %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for %s: %w", object, err)
	}
	slog.Info("Uploaded report", "url", u.URL(report.RunID), "bytes", len(data))
	return nil
}

// Close releases the storage client.
func (u *GCSUploader) Close() error {
	if u.client == nil {
		return nil
	}
	return u.client.Close()
}
