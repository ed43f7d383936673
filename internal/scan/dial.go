package scan

import (
	"context"
	"time"

	"github.com/girste/blueteam/internal/backend"
	"github.com/girste/blueteam/internal/config"
	"github.com/girste/blueteam/internal/util"
)

// LocalTarget scans the machine blueteam runs on.
const LocalTarget = "local"

// Credentials are secrets gathered at startup, never stored in config.
type Credentials struct {
	Password   string // SSH and sudo password
	Passphrase string // private key passphrase
}

// RemoteOptionsFromConfig builds the SSH settings shared by every remote target.
func RemoteOptionsFromConfig(cfg *config.Config, creds Credentials) backend.RemoteOptions {
	mode, err := backend.ParseElevation(cfg.Elevation)
	if err != nil {
		mode = backend.ElevationAuto
	}
	return backend.RemoteOptions{
		KeyFile:               util.ExpandHome(cfg.SSH.KeyFile),
		Passphrase:            creds.Passphrase,
		Password:              creds.Password,
		UseAgent:              cfg.SSH.Agent,
		StrictHostKeyChecking: cfg.SSH.StrictHostKeyChecking,
		KnownHosts:            util.ExpandHome(cfg.SSH.KnownHosts),
		Timeout:               time.Duration(cfg.SSH.TimeoutSeconds) * time.Second,
		Elevation:             mode,
		Workers:               cfg.SSH.RemoteWorkers,
		Connections:           cfg.SSH.RemoteConnections,
	}
}

// NewDialer returns a DialFunc that opens the local backend for LocalTarget
// and an SSH backend for everything else.
func NewDialer(cfg *config.Config, creds Credentials) DialFunc {
	opts := RemoteOptionsFromConfig(cfg, creds)
	return func(ctx context.Context, target string) (backend.Backend, error) {
		if target == LocalTarget || target == "" {
			return backend.NewLocal(), nil
		}
		t, err := backend.ParseTarget(target, cfg.SSH.User, cfg.SSH.Port)
		if err != nil {
			return nil, err
		}
		r, err := backend.Dial(ctx, t, opts)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
}
