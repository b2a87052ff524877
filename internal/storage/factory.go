// internal/storage/factory.go
package storage

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/trueagi-io/Vereya-sub001/internal/config"
	"github.com/trueagi-io/Vereya-sub001/internal/database"
	gormstorage "github.com/trueagi-io/Vereya-sub001/internal/storage/gorm"
	"github.com/trueagi-io/Vereya-sub001/internal/storage/memory"
	"github.com/trueagi-io/Vereya-sub001/internal/storage/websocket"
)

// NewBackend creates a storage backend based on configuration. The
// returned backend is not yet initialized.
func NewBackend(cfg config.StorageConfig, platformVersion string, log zerolog.Logger) (Backend, error) {
	switch cfg.Type {
	case "", "memory":
		return memory.New(), nil
	case "sqlite":
		return gormstorage.New(database.NewManager(log, cfg.SQLitePath), gormstorage.ModeSqlite, platformVersion), nil
	case "postgres":
		return gormstorage.New(database.NewManager(log, cfg.SQLitePath), gormstorage.ModePostgres, platformVersion), nil
	case "websocket":
		return websocket.New(websocket.Config{URL: cfg.WebSocket.URL, Secret: cfg.WebSocket.Secret}), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
