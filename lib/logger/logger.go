package logger

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"

	logFileName = "keyadmin.log"
)

// SetupLogger writes to stdout in the local environment and appends to
// keyadmin.log inside logDir otherwise.
func SetupLogger(env, logDir string) *slog.Logger {
	out := io.Writer(os.Stdout)
	if env != envLocal {
		logPath := filepath.Join(logDir, logFileName)
		logFile, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatal("error opening log file: ", err)
		}
		log.Printf("env: %s; log file: %s", env, logPath)
		out = logFile
	}

	logger, err := New(env, out)
	if err != nil {
		log.Fatal(err)
	}
	return logger
}

func New(env string, out io.Writer) (*slog.Logger, error) {
	switch env {
	case envLocal, envDev:
		return slog.New(
			slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}),
		), nil
	case envProd:
		return slog.New(
			slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelInfo}),
		), nil
	default:
		return nil, fmt.Errorf("invalid environment: %s", env)
	}
}

// ParseLevel maps debug, info, warn and error to slog levels; anything else
// is treated as error.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
