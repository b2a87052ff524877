package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"github.com/trueagi-io/Vereya-sub001/internal/config"
	"github.com/trueagi-io/Vereya-sub001/internal/storage"
	"github.com/trueagi-io/Vereya-sub001/internal/storage/memory"
	"github.com/trueagi-io/Vereya-sub001/internal/worker"
)

func initStorage() error {
	storageCfg := config.GetStorageConfig()

	backend, err := storage.NewBackend(storageCfg, viper.GetString("version"), zeroLogger)
	if err != nil {
		Logger.Error("Failed to create storage backend", "error", err)
		return err
	}
	if err := backend.Init(); err != nil {
		Logger.Error("Failed to initialize storage backend", "type", storageCfg.Type, "error", err)
		return err
	}
	storageBackend = backend

	deps := worker.Dependencies{
		Backend: storageBackend,
		Logger:  Logger,
	}
	if influxManager != nil {
		deps.Diagnostics = influxManager
	}
	historyManager = worker.NewManager(deps, worker.DefaultQueueLimit)
	historyManager.Start()

	Logger.Info("Storage backend initialized", "type", storageCfg.Type)
	return nil
}

// dumpMemoryHistory writes what the memory backend collected next to the
// log file so a run without a database still leaves a record.
func dumpMemoryHistory() {
	mem, ok := storageBackend.(*memory.Backend)
	if !ok {
		return
	}
	path := filepath.Join(viper.GetString("logsDir"),
		fmt.Sprintf("%s_history_%s.json", ProcessName, SessionStartTime.Format("20060102_150405")))
	f, err := os.Create(path)
	if err != nil {
		Logger.Error("Failed to create history dump", "path", path, "error", err)
		return
	}
	defer f.Close()
	if err := mem.Export(f); err != nil {
		Logger.Error("Failed to write history dump", "path", path, "error", err)
		return
	}
	Logger.Info("History written", "path", path)
}

// printHistory writes every stored mission of the configured backend as
// JSON.
func printHistory(w io.Writer) error {
	storageCfg := config.GetStorageConfig()
	backend, err := storage.NewBackend(storageCfg, viper.GetString("version"), zeroLogger)
	if err != nil {
		return err
	}
	reader, ok := backend.(storage.Reader)
	if !ok {
		return fmt.Errorf("storage type %q cannot be read back", storageCfg.Type)
	}
	if _, isMemory := backend.(*memory.Backend); isMemory {
		return fmt.Errorf("storage type %q keeps no history between runs", storageCfg.Type)
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer backend.Close()

	missions, err := reader.Missions()
	if err != nil {
		return fmt.Errorf("failed to read missions: %w", err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(missions)
}
