package session

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	TypeMemory = "memory"
	TypeSQLite = "sqlite"
	TypeRedis  = "redis"
)

// Config selects and configures the result store.
type Config struct {
	Type             string        `yaml:"type" validate:"oneof=memory sqlite redis"`
	ConnectionString string        `yaml:"connectionString"`
	Namespace        string        `yaml:"namespace"`
	TTL              time.Duration `yaml:"ttl" validate:"gte=0"`
}

func NewStore(config Config) (store Store, err error) {
	switch config.Type {
	case TypeMemory, "":
		store = NewMemoryStore(config.TTL)
	case TypeSQLite:
		connectionString := config.ConnectionString
		if connectionString == "" {
			connectionString = ":memory:"
		}
		store, err = NewSQLiteStore(connectionString, config.TTL)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
	case TypeRedis:
		options, err := redis.ParseURL(config.ConnectionString)
		if err != nil {
			return nil, fmt.Errorf("invalid redis connection string: %w", err)
		}
		namespace := config.Namespace
		if namespace == "" {
			namespace = "faceswap"
		}
		store = NewRedisStore(redis.NewClient(options), namespace, config.TTL)
	default:
		return nil, fmt.Errorf("unsupported session store: %s", config.Type)
	}

	if err := store.Ping(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("session store %s is not reachable: %w", config.Type, err)
	}

	slog.Info("session store ready", "type", config.Type, "ttl", config.TTL)
	return store, nil
}
