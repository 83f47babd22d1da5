package main

import (
	"fmt"
	"strings"

	"github.com/doggo-app/locshare/internal/config"
	"github.com/doggo-app/locshare/internal/database"
	"github.com/doggo-app/locshare/internal/storage"
	"github.com/doggo-app/locshare/internal/storage/memory"
	pgstorage "github.com/doggo-app/locshare/internal/storage/postgres"
	sqlitestorage "github.com/doggo-app/locshare/internal/storage/sqlite"
	wsstorage "github.com/doggo-app/locshare/internal/storage/websocket"
)

// initStorage creates and initializes the configured backend.
func initStorage(storageCfg config.StorageConfig, serverCfg config.ServerConfig) (storage.Backend, error) {
	backend, err := createStorageBackend(storageCfg, serverCfg)
	if err != nil {
		Logger.Error("Failed to create storage backend", "error", err)
		return nil, err
	}
	if err := backend.Init(); err != nil {
		Logger.Error("Failed to initialize storage backend", "error", err)
		return nil, err
	}
	Logger.Info("Storage ready", "type", storageCfg.Type)
	return backend, nil
}

func createStorageBackend(storageCfg config.StorageConfig, serverCfg config.ServerConfig) (storage.Backend, error) {
	switch storageCfg.Type {
	case "postgres":
		Logger.Info("Postgres storage backend initialized")
		return pgstorage.New(pgstorage.Dependencies{
			Manager:            database.NewManager(componentLogger("database")),
			LogManager:         SlogManager,
			ChildPrefix:        storageCfg.ChildPrefix,
			SubscriptionBuffer: storageCfg.SubscriptionBuffer,
		}), nil

	case "sqlite":
		backend, err := sqlitestorage.New(storageCfg.SQLite, storageCfg.ChildPrefix, storageCfg.SubscriptionBuffer, SlogManager)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		Logger.Info("SQLite storage backend initialized", "dumpPath", storageCfg.SQLite.DumpPath)
		return backend, nil

	case "websocket":
		wsURL := httpToWS(serverCfg.URL) + "/ws"
		Logger.Info("WebSocket storage backend initialized", "url", wsURL)
		return wsstorage.New(wsstorage.Config{
			URL:                wsURL,
			Secret:             serverCfg.Secret,
			SubscriptionBuffer: storageCfg.SubscriptionBuffer,
		}, Logger), nil

	case "memory", "":
		Logger.Info("Memory storage backend initialized")
		return memory.New(storageCfg.Memory, storageCfg.SubscriptionBuffer), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
	}
}

// httpToWS converts an HTTP(S) URL to a WebSocket URL.
func httpToWS(httpURL string) string {
	s := strings.TrimRight(httpURL, "/")
	s = strings.Replace(s, "https://", "wss://", 1)
	s = strings.Replace(s, "http://", "ws://", 1)
	return s
}
