package taskboard

import (
	"strings"
	"sync"
)

type JournalFactory func(dsn string) (EventJournal, error)

var journalFactoryRegistry = struct {
	mu        sync.RWMutex
	factories map[string]JournalFactory
}{
	factories: map[string]JournalFactory{},
}

// RegisterJournalFactory installs a factory for a custom DSN scheme,
// overriding any built-in handling for that scheme.
func RegisterJournalFactory(scheme string, factory JournalFactory) {
	scheme = normalizeJournalScheme(scheme)
	if scheme == "" || factory == nil {
		return
	}
	journalFactoryRegistry.mu.Lock()
	defer journalFactoryRegistry.mu.Unlock()
	journalFactoryRegistry.factories[scheme] = factory
}

func lookupJournalFactory(scheme string) (JournalFactory, bool) {
	scheme = normalizeJournalScheme(scheme)
	journalFactoryRegistry.mu.RLock()
	defer journalFactoryRegistry.mu.RUnlock()
	factory, ok := journalFactoryRegistry.factories[scheme]
	return factory, ok
}

func normalizeJournalScheme(scheme string) string {
	return strings.ToLower(strings.TrimSpace(scheme))
}
