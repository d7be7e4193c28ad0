// Package store provides the object store client the mirror runs against.
//
// The Client wraps an S3-compatible bucket with the handful of operations the
// mirror needs: small-object put/get, file upload/download, paginated listing,
// existence checks, conditional writes, and a one-way directory sync.
package store

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/capitolarchive/crmirror/internal/store/errors"
	"github.com/capitolarchive/crmirror/internal/store/storeapi"
	"github.com/capitolarchive/crmirror/internal/store/storetypes"
)

// Client provides thread-safe access to the object store.
type Client struct {
	// api is the underlying AWS SDK S3 client
	api storeapi.API

	// config holds the resolved AWS configuration
	config aws.Config

	// clientCfg holds the option-assembled client settings
	clientCfg storetypes.ClientConfig

	// mu protects concurrent access to client configuration
	mu sync.RWMutex

	// fs is the filesystem abstraction for file operations
	fs billy.Filesystem

	// logger receives structured operation logs
	logger *slog.Logger
}

// New creates a new store client with the provided options.
// Credentials come from the static key pair when one is configured, falling
// back to the default AWS credential chain otherwise.
//
// Example:
//
//	client, err := store.New(
//	    store.WithEndpoint("https://nyc3.digitaloceanspaces.com"),
//	    store.WithStaticCredentials(keyID, secret),
//	)
func New(opts ...storetypes.Option) (*Client, error) {
	clientCfg := storetypes.ClientConfig{
		MaxRetries:  3,
		Concurrency: 5,
	}
	for _, opt := range opts {
		opt(&clientCfg)
	}

	var cfg aws.Config
	var err error

	switch {
	case clientCfg.CustomAWSConfig != nil:
		cfg = *clientCfg.CustomAWSConfig
	case clientCfg.AccessKeyID != "":
		cfg, err = config.LoadDefaultConfig(context.Background(),
			config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(clientCfg.AccessKeyID, clientCfg.SecretAccessKey, ""),
			),
		)
	default:
		cfg, err = config.LoadDefaultConfig(context.Background())
	}
	if err != nil {
		return nil, errors.NewError("client initialization", err)
	}

	if clientCfg.Region != "" {
		cfg.Region = clientCfg.Region
	} else if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	if clientCfg.MaxRetries > 0 {
		cfg.RetryMaxAttempts = clientCfg.MaxRetries
	}

	var s3Opts []func(*s3.Options)

	if clientCfg.Endpoint != "" {
		endpoint := clientCfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}

	if clientCfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	if clientCfg.Timeout > 0 {
		httpClient := &http.Client{
			Timeout: clientCfg.Timeout,
		}
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.HTTPClient = httpClient
		})
	}

	filesystem := clientCfg.Filesystem
	if filesystem == nil {
		filesystem = osfs.New("/")
	}

	logger := clientCfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		api:       s3.NewFromConfig(cfg, s3Opts...),
		config:    cfg,
		clientCfg: clientCfg,
		fs:        filesystem,
		logger:    logger,
	}, nil
}

// NewWithAPI creates a store client with a custom API implementation.
// This is primarily used for testing with mocked clients.
func NewWithAPI(api storeapi.API, opts ...storetypes.Option) *Client {
	clientCfg := storetypes.ClientConfig{
		MaxRetries:  3,
		Concurrency: 5,
	}
	for _, opt := range opts {
		opt(&clientCfg)
	}

	filesystem := clientCfg.Filesystem
	if filesystem == nil {
		filesystem = osfs.New("/")
	}

	logger := clientCfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		api:       api,
		config:    aws.Config{},
		clientCfg: clientCfg,
		fs:        filesystem,
		logger:    logger,
	}
}

// SetFilesystem swaps the filesystem implementation after creation.
// Useful for pointing tests at an in-memory filesystem.
func (c *Client) SetFilesystem(filesystem billy.Filesystem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fs = filesystem
}

// getFilesystem returns the current filesystem under the read lock.
func (c *Client) getFilesystem() billy.Filesystem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fs
}

// getClientConfig returns a copy of the client settings under the read lock.
func (c *Client) getClientConfig() storetypes.ClientConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clientCfg
}
