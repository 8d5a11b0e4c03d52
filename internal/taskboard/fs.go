package taskboard

import (
	"os"
	"path/filepath"
	"strings"
)

// Logger is the printf-style sink accepted by every component; nil disables
// logging.
type Logger interface {
	Printf(format string, args ...any)
}

func logf(logger Logger, format string, args ...any) {
	if logger == nil {
		return
	}
	logger.Printf(format, args...)
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(mode); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}

// isTempArtifact reports whether name is a scratch file left by atomic
// writes or editor swaps; such entries never count as store content.
func isTempArtifact(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~")
}
