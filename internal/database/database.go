package database

import (
	"context"
	"log"
	"sync"
	"time"

	"number-lookup-api/configs"

	"github.com/go-redis/redis/v8"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Manager owns the shared Redis client (the single backing store for
// records, credentials, cache entries and rate-limit state) and, when
// configured, the gorm connection to an upstream MySQL feed used only by
// the bulk loader.
type Manager struct {
	Redis *redis.Client

	sourceDB  *gorm.DB
	sourceMu  sync.Mutex
	sourceErr error
}

var (
	instance *Manager
	once     sync.Once
)

func GetManager() *Manager {
	once.Do(func() {
		instance = &Manager{}
		instance.initialize()
	})
	return instance
}

func (m *Manager) initialize() {
	opts, err := redis.ParseURL(configs.AppConfig.RedisURL)
	if err != nil {
		opts = &redis.Options{
			Addr: configs.AppConfig.RedisURL,
			DB:   0,
		}
	}

	m.Redis = redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.Redis.Ping(ctx).Err(); err != nil {
		log.Printf("Redis connection failed (will keep retrying per request): %v", err)
	} else {
		log.Println("Redis connection established successfully")
	}
}

// SourceDB lazily opens the configured MySQL feed. The connection is only
// needed while an admin-triggered load is running, so failures here never
// affect the serving path.
func (m *Manager) SourceDB() (*gorm.DB, error) {
	m.sourceMu.Lock()
	defer m.sourceMu.Unlock()

	if m.sourceDB != nil || m.sourceErr != nil {
		return m.sourceDB, m.sourceErr
	}

	db, err := gorm.Open(mysql.Open(configs.AppConfig.SourceMySQLDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		m.sourceErr = err
		return nil, err
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxIdleConns(2)
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	m.sourceDB = db
	log.Println("Source MySQL connection established successfully")
	return db, nil
}

// Ping checks the backing store, used by the health endpoint.
func (m *Manager) Ping(ctx context.Context) error {
	return m.Redis.Ping(ctx).Err()
}
