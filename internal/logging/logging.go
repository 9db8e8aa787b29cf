package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/saltyorg/opsboard/internal/config"
)

const (
	DefaultLogFileName = "opsboard.log"
	DefaultMaxSizeMB   = 25
	DefaultMaxBackups  = 5
	DefaultMaxAgeDays  = 14
	DefaultCompress    = true

	timeFormat = "2006-01-02 15:04:05"
)

// LevelForVerbosity maps the -v count to a zerolog level.
func LevelForVerbosity(verbosity int) zerolog.Level {
	switch {
	case verbosity <= 0:
		return zerolog.InfoLevel
	case verbosity == 1:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

// Console installs a console-only logger. Used before the database is open.
func Console(verbosity int) {
	zerolog.SetGlobalLevel(LevelForVerbosity(verbosity))
	log.Logger = zerolog.New(consoleWriter(os.Stdout, false)).With().Timestamp().Logger()
}

// Apply sets the global level and installs console plus rotating file output.
// Rotation limits come from settings when loader is non-nil.
func Apply(verbosity int, loader *config.Loader, logFilePath string) {
	zerolog.SetGlobalLevel(LevelForVerbosity(verbosity))

	console := consoleWriter(os.Stdout, false)
	log.Logger = zerolog.New(console).With().Timestamp().Logger()

	if logFilePath == "" {
		logFilePath = DefaultLogFileName
	}
	if err := ensureLogDir(logFilePath); err != nil {
		log.Error().Err(err).Str("path", logFilePath).Msg("Failed to prepare log directory; logging to console only")
		return
	}

	file := consoleWriter(RotatingFile(loader, logFilePath), true)
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(console, file)).With().Timestamp().Logger()
}

// RotatingFile builds the lumberjack writer for path using rotation settings.
func RotatingFile(loader *config.Loader, path string) *lumberjack.Logger {
	maxSize := loader.Int(config.KeyLogMaxSizeMB, DefaultMaxSizeMB)
	if maxSize <= 0 {
		maxSize = DefaultMaxSizeMB
	}
	maxBackups := loader.Int(config.KeyLogMaxBackups, DefaultMaxBackups)
	if maxBackups < 0 {
		maxBackups = DefaultMaxBackups
	}
	maxAge := loader.Int(config.KeyLogMaxAgeDays, DefaultMaxAgeDays)
	if maxAge < 0 {
		maxAge = DefaultMaxAgeDays
	}

	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		MaxAge:     maxAge,
		Compress:   loader.Bool(config.KeyLogCompress, DefaultCompress),
	}
}

// FilePathForDB returns a log file path that lives alongside the database file.
func FilePathForDB(dbPath string) string {
	if dbPath == "" {
		return DefaultLogFileName
	}
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return filepath.Join(filepath.Dir(dbPath), DefaultLogFileName)
	}
	return filepath.Join(filepath.Dir(abs), DefaultLogFileName)
}

func consoleWriter(out io.Writer, noColor bool) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: out, TimeFormat: timeFormat, NoColor: noColor}
}

func ensureLogDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
