package cli

import (
	"fmt"
	"log/slog"

	"github.com/aretw0/tendril/pkg/adapters/memory"
	"github.com/aretw0/tendril/pkg/adapters/redis"
	"github.com/aretw0/tendril/pkg/config"
	"github.com/aretw0/tendril/pkg/persistence/middleware"
	"github.com/aretw0/tendril/pkg/ports"
	"github.com/aretw0/tendril/pkg/session"
)

type storeSetup struct {
	store ports.SessionStore
	opts  []session.Option
}

// newStore builds the configured driver wrapped in the persistence middleware.
// PII masking runs before encryption so masked values are what gets sealed.
func newStore(cfg config.Config, logger *slog.Logger) (storeSetup, func() error, error) {
	var (
		setup  storeSetup
		closer func() error
	)

	switch cfg.Store.Driver {
	case config.DriverRedis:
		rc := cfg.Store.Redis
		opts := []redis.Option{redis.WithPrefix(rc.Prefix)}
		if rc.TTL > 0 {
			opts = append(opts, redis.WithTTL(rc.TTL))
		}
		rs := redis.New(rc.Addr, rc.Password, rc.DB, opts...)
		setup.store = rs
		setup.opts = append(setup.opts,
			session.WithLocker(redis.NewLocker(rs.Client(), rc.Prefix+"lock:")),
			session.WithLockTTL(cfg.Store.LockTTL),
		)
		closer = rs.Client().Close
		logger.Debug("Using redis session store", "addr", rc.Addr, "prefix", rc.Prefix)
	case config.DriverMemory:
		setup.store = memory.NewStore()
	default:
		return setup, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	var mws []middleware.Middleware
	if len(cfg.Store.PIIKeys) > 0 {
		mws = append(mws, middleware.NewPIIMiddleware(cfg.Store.PIIKeys))
	}
	if cfg.Store.EncryptionKey != "" {
		enc, err := encryptionConfig(cfg.Store)
		if err != nil {
			if closer != nil {
				_ = closer()
			}
			return setup, nil, err
		}
		mws = append(mws, middleware.NewEncryptionMiddleware(enc))
	}
	setup.store = middleware.Chain(setup.store, mws...)
	return setup, closer, nil
}

func encryptionConfig(sc config.StoreConfig) (middleware.EncryptionConfig, error) {
	active, err := config.ParseKey(sc.EncryptionKey)
	if err != nil {
		return middleware.EncryptionConfig{}, fmt.Errorf("store.encryptionKey: %w", err)
	}
	enc := middleware.EncryptionConfig{ActiveKey: active}
	for i, k := range sc.FallbackKeys {
		key, err := config.ParseKey(k)
		if err != nil {
			return middleware.EncryptionConfig{}, fmt.Errorf("store.fallbackKeys[%d]: %w", i, err)
		}
		enc.FallbackKeys = append(enc.FallbackKeys, key)
	}
	return enc, nil
}
