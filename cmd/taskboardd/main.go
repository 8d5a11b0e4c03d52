package main

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/agentworkforce/taskboard/internal/httpapi"
	"github.com/agentworkforce/taskboard/internal/taskboard"
)

func main() {
	addr := os.Getenv("TASKBOARD_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	root := strings.TrimSpace(os.Getenv("TASKBOARD_ROOT"))
	if root == "" {
		root = ".taskboard"
	}

	logger := log.New(os.Stderr, "taskboardd ", log.LstdFlags)
	store, err := taskboard.NewStoreWithOptions(taskboard.StoreOptions{
		Root:           root,
		Logger:         logger,
		JournalDSN:     os.Getenv("TASKBOARD_JOURNAL_DSN"),
		DebounceWindow: durationEnv("TASKBOARD_DEBOUNCE_WINDOW", 0),
	})
	if err != nil {
		log.Fatalf("failed to open store at %s: %v", root, err)
	}
	defer store.Close()
	for _, warning := range store.MigrationWarnings() {
		logger.Printf("migration: %s", warning.String())
	}

	server := httpapi.NewServerWithConfig(store, httpapi.ServerConfig{
		AuthToken:    os.Getenv("TASKBOARD_TOKEN"),
		MaxBodyBytes: int64Env("TASKBOARD_MAX_BODY_BYTES", 0),
		Logger:       logger,
	})

	log.Printf("taskboardd serving %s on %s", root, addr)
	if err := http.ListenAndServe(addr, server); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func int64Env(name string, fallback int64) int64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %s", name, raw, fallback.String())
		return fallback
	}
	return value
}
