package lanview

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// InitLogger installs a tint handler as the default slog logger.
func InitLogger(config *Config) {
	slog.SetDefault(slog.New(newLogHandler(os.Stdout, config.GetSlogLevel())))
}

func newLogHandler(w io.Writer, level slog.Level) slog.Handler {
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := getProjectRoot(filename)

	// Source paths are shown relative to the module root.
	replaceAttr := func(groups []string, a slog.Attr) slog.Attr {
		if a.Key != slog.SourceKey {
			return a
		}
		source, ok := a.Value.Any().(*slog.Source)
		if !ok {
			return a
		}
		if projectRoot != "" && strings.HasPrefix(source.File, projectRoot) {
			source.File = source.File[len(projectRoot)+1:]
		}
		return slog.Any(a.Key, source)
	}

	return tint.NewHandler(w, &tint.Options{
		Level:       level,
		AddSource:   true,
		NoColor:     !isTerminal(w),
		TimeFormat:  time.RFC3339,
		ReplaceAttr: replaceAttr,
	})
}

// getProjectRoot walks up from this file to the module root, two
// directories above internal/lanview.
func getProjectRoot(file string) string {
	dir := filepath.Dir(file)
	if filepath.Base(dir) != "lanview" {
		return ""
	}
	internal := filepath.Dir(dir)
	if filepath.Base(internal) != "internal" {
		return ""
	}
	return filepath.Dir(internal)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}
