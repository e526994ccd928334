// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
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
	"fmt"
	"log/slog"
	"os"
	"path"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/AleutianAI/wayfinder/services/planner/resolve"
)

// GCSExporter writes exports to gs://<bucket>/<prefix>/<run id>/.
//
// Thread Safety: Safe for concurrent use.
type GCSExporter struct {
	client *storage.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// NewGCSExporter connects to Google Cloud Storage. With an empty
// saKeyPath the client uses application default credentials.
func NewGCSExporter(ctx context.Context, bucket, prefix, saKeyPath string, logger *slog.Logger) (*GCSExporter, error) {
	if bucket == "" {
		return nil, fmt.Errorf("export: empty GCS bucket")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var opts []option.ClientOption
	if saKeyPath != "" {
		if _, err := os.Stat(saKeyPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s", saKeyPath)
		}
		opts = append(opts, option.WithCredentialsFile(saKeyPath))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &GCSExporter{client: client, bucket: bucket, prefix: prefix, logger: logger}, nil
}

// ExportContext implements Exporter.
func (e *GCSExporter) ExportContext(ctx context.Context, runID string, c *resolve.Context) (string, error) {
	data, err := c.MarshalCanonical()
	if err != nil {
		return "", fmt.Errorf("marshal context: %w", err)
	}
	return e.upload(ctx, runID, contextName, data)
}

// ExportSpecification implements Exporter.
func (e *GCSExporter) ExportSpecification(ctx context.Context, runID string, s *resolve.Specification) (string, error) {
	data, err := s.MarshalCanonical()
	if err != nil {
		return "", fmt.Errorf("marshal specification: %w", err)
	}
	return e.upload(ctx, runID, specName, data)
}

func (e *GCSExporter) upload(ctx context.Context, runID, name string, data []byte) (string, error) {
	objectPath := path.Join(e.prefix, runID, name)
	obj := e.client.Bucket(e.bucket).Object(objectPath)

	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	w.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to write GCS object %s: %w", objectPath, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer for %s: %w", objectPath, err)
	}

	url := fmt.Sprintf("gs://%s/%s", e.bucket, objectPath)
	e.logger.Info("exported", "run_id", runID, "object", url, "bytes", len(data))
	return url, nil
}

// Close releases the storage client.
func (e *GCSExporter) Close() error {
	return e.client.Close()
}
