package storage

import (
	"context"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"

	"github.com/rkvd/rkvd/internal/storage/durable"
	"github.com/rkvd/rkvd/internal/storage/memory"
	"github.com/rkvd/rkvd/internal/storage/remote"
)

// Kind names a selectable backend implementation.
type Kind string

const (
	KindMemory  Kind = "memory"
	KindDurable Kind = "durable"
	KindRemote  Kind = "remote"
)

// Config carries every field any backend might need; the factory
// validates only the fields the selected Kind actually requires.
type Config struct {
	Backend Kind

	ExpirySweepInterval time.Duration // memory only

	DurablePath string // durable only

	RemoteBucket string // remote only
	RemotePrefix string
	RemoteRegion string
}

// New builds the configured backend, validating backend-specific
// required fields before construction.
func New(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Backend {
	case "", KindMemory:
		interval := cfg.ExpirySweepInterval
		if interval <= 0 {
			interval = 60 * time.Second
		}
		return memory.New(interval), nil

	case KindDurable:
		if cfg.DurablePath == "" {
			return nil, errors.New("durable backend requires a storage path")
		}
		return durable.Open(cfg.DurablePath)

	case KindRemote:
		if cfg.RemoteBucket == "" {
			return nil, errors.New("remote backend requires a bucket name")
		}
		awsCfgOpts := []func(*awsconfig.LoadOptions) error{}
		if cfg.RemoteRegion != "" {
			awsCfgOpts = append(awsCfgOpts, awsconfig.WithRegion(cfg.RemoteRegion))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsCfgOpts...)
		if err != nil {
			return nil, errors.Wrap(err, "load aws config")
		}
		client := s3.NewFromConfig(awsCfg)
		return remote.New(client, cfg.RemoteBucket, cfg.RemotePrefix), nil

	default:
		return nil, errors.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
