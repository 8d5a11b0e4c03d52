package taskboard

import (
	"fmt"
	"net/url"
	"strings"
)

// BuildJournalFromDSN resolves a journal backend from a DSN. Supported
// schemes: file:// (or a bare path), memory://, postgres://. Registered
// custom schemes take precedence. An empty DSN yields no journal.
func BuildJournalFromDSN(dsn string) (EventJournal, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	if factory, ok := lookupJournalFactory(scheme); ok {
		return factory(dsn)
	}
	switch scheme {
	case "", "file":
		path, pathErr := dsnPath(parsed, dsn)
		if pathErr != nil {
			return nil, pathErr
		}
		return NewFileJournal(path)
	case "memory", "mem", "inmem":
		return NewInMemoryJournal(), nil
	case "postgres", "postgresql":
		return NewPostgresJournal(dsn)
	default:
		return nil, fmt.Errorf("unsupported journal scheme: %s", scheme)
	}
}

func dsnPath(parsed *url.URL, raw string) (string, error) {
	if parsed == nil {
		return "", ErrInvalidInput
	}
	if strings.TrimSpace(parsed.Scheme) == "" {
		if strings.TrimSpace(raw) == "" {
			return "", ErrInvalidInput
		}
		return strings.TrimSpace(raw), nil
	}
	path := strings.TrimSpace(parsed.Path)
	if path == "" {
		path = strings.TrimSpace(parsed.Opaque)
	}
	if path == "" {
		path = strings.TrimSpace(parsed.Host)
	}
	if path == "" {
		return "", ErrInvalidInput
	}
	return path, nil
}
