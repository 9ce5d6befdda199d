// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gcs mirrors release assets into a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/AleutianAI/relforge/pkg/logging"
)

// ErrNoBucket is returned by NewClient when no bucket is configured.
var ErrNoBucket = errors.New("gcs: bucket is required")

// Config describes the mirror destination.
type Config struct {
	ProjectID string
	Bucket    string

	// CredentialsFile is a service account key. Empty uses Application
	// Default Credentials.
	CredentialsFile string

	// Prefix is prepended to every object name.
	Prefix string
}

type Client struct {
	storageClient *storage.Client
	ProjectID     string
	BucketName    string
	Prefix        string

	logger *logging.Logger

	// newWriter opens an object writer; replaced in tests.
	newWriter func(ctx context.Context, object string) io.WriteCloser
}

// NewClient creates a mirror client.
//
// # Outputs
//
//   - *Client: Call Close when done
//   - error: ErrNoBucket, a missing key file, or a storage client failure
func NewClient(ctx context.Context, cfg Config, logger *logging.Logger) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}
	if logger == nil {
		logger = logging.Nop()
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		if _, err := os.Stat(cfg.CredentialsFile); err != nil {
			return nil, fmt.Errorf("service account key not found at path: %s: %w", cfg.CredentialsFile, err)
		}
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	storageClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	c := &Client{
		storageClient: storageClient,
		ProjectID:     cfg.ProjectID,
		BucketName:    cfg.Bucket,
		Prefix:        cfg.Prefix,
		logger:        logger,
	}
	c.newWriter = c.bucketWriter
	return c, nil
}

// Close releases the storage client.
func (c *Client) Close() error {
	if c.storageClient == nil {
		return nil
	}
	return c.storageClient.Close()
}

// ObjectName returns the object name for a local asset under tag.
//
//	c.ObjectName("v0.0.7", "build/Release/Product-0.0.7-win64.zip")
//	// "<prefix>/v0.0.7/Product-0.0.7-win64.zip"
func (c *Client) ObjectName(tag, localPath string) string {
	return path.Join(c.Prefix, tag, filepath.Base(localPath))
}

// URL returns the gs:// URL for an object.
func (c *Client) URL(object string) string {
	return fmt.Sprintf("gs://%s/%s", c.BucketName, object)
}

// UploadFile copies one local file to object.
func (c *Client) UploadFile(ctx context.Context, localPath, object string) error {
	localFile, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open the local file: %s: %w", localPath, err)
	}
	defer localFile.Close()

	writer := c.newWriter(ctx, object)
	if _, err := io.Copy(writer, localFile); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to copy local file %s to GCS object %s: %w", localPath, object, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for %s: %w", object, err)
	}
	c.logger.Info("mirrored asset", "path", localPath, "url", c.URL(object))
	return nil
}

// Mirror uploads every asset under tag and returns the gs:// URLs written.
// It continues past individual failures and reports them joined.
func (c *Client) Mirror(ctx context.Context, tag string, assets []string) ([]string, error) {
	var (
		urls []string
		errs []error
	)
	for _, a := range assets {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		object := c.ObjectName(tag, a)
		if err := c.UploadFile(ctx, a, object); err != nil {
			errs = append(errs, err)
			continue
		}
		urls = append(urls, c.URL(object))
	}
	return urls, errors.Join(errs...)
}

func (c *Client) bucketWriter(ctx context.Context, object string) io.WriteCloser {
	w := c.storageClient.Bucket(c.BucketName).Object(object).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	w.CacheControl = "no-cache, no-store, must-revalidate"
	return w
}
