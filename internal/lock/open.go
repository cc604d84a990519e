package lock

import (
	"fmt"

	"github.com/juanibiapina/testrun/internal/config"
	"github.com/juanibiapina/testrun/internal/logging"
	"github.com/juanibiapina/testrun/internal/paths"
)

// Open returns the locker selected by cfg. The sqlite backend keeps its
// database under runsDir so all processes sharing the root share the lock.
func Open(cfg config.LockConfig, runsDir string) (Locker, error) {
	switch cfg.Backend {
	case config.LockBackendRedis:
		client, err := NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		if err := CheckRedisConnection(client); err != nil {
			client.Close()
			return nil, err
		}
		logging.Logger.Debug("using redis lock", "key", cfg.Key)
		return NewRedisLocker(client, cfg.Key), nil
	case config.LockBackendSQLite, "":
		path := paths.GetLockDatabasePath(runsDir)
		logging.Logger.Debug("using sqlite lock", "path", path, "key", cfg.Key)
		return OpenSQLiteLocker(path, cfg.Key)
	default:
		return nil, fmt.Errorf("unknown lock backend %q", cfg.Backend)
	}
}
