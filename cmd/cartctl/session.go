package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/utafrali/EcommerceGo/pkg/cartsync"
	"github.com/utafrali/EcommerceGo/pkg/cartsync/identity"
	"github.com/utafrali/EcommerceGo/pkg/cartsync/remote"
	"github.com/utafrali/EcommerceGo/pkg/cartsync/store"
	pkgconfig "github.com/utafrali/EcommerceGo/pkg/config"
	"github.com/utafrali/EcommerceGo/pkg/database"
	"github.com/utafrali/EcommerceGo/pkg/httpclient"
	"github.com/utafrali/EcommerceGo/pkg/logger"
)

type config struct {
	StateFile     string        `env:"STATE_FILE" envDefault:".cartsync/cart.json"`
	RemoteURL     string        `env:"REMOTE_URL" envDefault:"http://localhost:8003"`
	RemoteTimeout time.Duration `env:"REMOTE_TIMEOUT" envDefault:"10s"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"warn"`
	JSON          bool          `env:"JSON"`

	// RedisAddr keeps the cart in Redis under DeviceID instead of StateFile.
	RedisAddr string        `env:"REDIS_ADDR"`
	DeviceID  string        `env:"DEVICE_ID" envDefault:"default"`
	RedisTTL  time.Duration `env:"REDIS_TTL" envDefault:"720h"`
}

func loadConfig() (config, error) {
	var cfg config
	if err := pkgconfig.LoadPrefixed("CARTSYNC_", &cfg); err != nil {
		return config{}, err
	}
	return cfg, nil
}

// session is one invocation's manager plus where its identity is kept.
type session struct {
	manager      *cartsync.Manager
	identityPath string
	closers      []func() error
}

func (s *session) Close() {
	for _, c := range s.closers {
		_ = c()
	}
}

// openSession restores the cart and, when a user was signed in on a previous
// run, resumes their session from the account cart. The guest merge already
// ran when they logged in, so it is not repeated here.
func openSession(ctx context.Context, cfg config, logOut io.Writer) (*session, error) {
	l := logger.NewWithWriter("cartctl", cfg.LogLevel, logOut)

	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = cfg.RemoteTimeout

	s := &session{identityPath: cfg.StateFile + ".identity"}

	var st store.Store = store.NewFileStore(cfg.StateFile, l)
	if cfg.RedisAddr != "" {
		redisCfg := database.DefaultRedisConfig()
		redisCfg.Addr = cfg.RedisAddr
		rdb, err := database.NewRedisClient(ctx, redisCfg, l)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, rdb.Close)
		st = store.NewRedisStore(rdb, cfg.DeviceID, cfg.RedisTTL, l)
	}

	m := cartsync.New(
		st,
		remote.NewDefaultHTTPClient(cfg.RemoteURL, httpCfg, l),
		cartsync.WithLogger(l),
		cartsync.WithTaskTimeout(cfg.RemoteTimeout+5*time.Second),
	)
	if err := m.Start(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("restore cart: %w", err)
	}
	s.manager = m

	id, err := s.loadIdentity()
	if err != nil {
		s.Close()
		return nil, err
	}
	if id.Authenticated() {
		if err := m.Resume(ctx, id); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

type identityFile struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

func (s *session) loadIdentity() (identity.Identity, error) {
	data, err := os.ReadFile(s.identityPath)
	if errors.Is(err, fs.ErrNotExist) {
		return identity.Guest(), nil
	}
	if err != nil {
		return identity.Identity{}, fmt.Errorf("read identity: %w", err)
	}

	var f identityFile
	if err := json.Unmarshal(data, &f); err != nil {
		return identity.Identity{}, fmt.Errorf("decode identity %s: %w", s.identityPath, err)
	}
	return identity.User(f.UserID, f.Token), nil
}

func (s *session) saveIdentity(id identity.Identity) error {
	if !id.Authenticated() {
		if err := os.Remove(s.identityPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove identity: %w", err)
		}
		return nil
	}

	data, err := json.Marshal(identityFile{UserID: id.UserID, Token: id.Token})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.identityPath), 0o700); err != nil {
		return fmt.Errorf("create identity dir: %w", err)
	}
	if err := os.WriteFile(s.identityPath, data, 0o600); err != nil {
		return fmt.Errorf("write identity: %w", err)
	}
	return nil
}
