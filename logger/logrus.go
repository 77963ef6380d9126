package logger

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/honeycombio/firehose/config"
)

// LogrusLogger is a Logger implementation that writes logs to stderr using
// the Logrus package to get nice formatting. Stdout is left for records.
type LogrusLogger struct {
	Config config.Config `inject:""`

	// Output overrides stderr, mostly for tests.
	Output io.Writer

	logger *logrus.Logger
	level  *logrus.Level
}

var _ = Logger((*LogrusLogger)(nil))

type LogrusEntry struct {
	entry *logrus.Entry
	level logrus.Level
}

func (l *LogrusLogger) Start() error {
	l.logger = logrus.New()
	l.logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if l.Output != nil {
		l.logger.SetOutput(l.Output)
	}
	// a level set before Start wins over the config
	if l.level == nil && l.Config != nil {
		if lvl := l.Config.GetLoggerLevel(); lvl != config.UnknownLevel {
			if err := l.SetLevel(lvl.String()); err != nil {
				return err
			}
		}
	}
	if l.level != nil {
		l.logger.SetLevel(*l.level)
	}
	return nil
}

func (l *LogrusLogger) Debug() Entry {
	return l.entry(logrus.DebugLevel)
}

func (l *LogrusLogger) Info() Entry {
	return l.entry(logrus.InfoLevel)
}

func (l *LogrusLogger) Warn() Entry {
	return l.entry(logrus.WarnLevel)
}

func (l *LogrusLogger) Error() Entry {
	return l.entry(logrus.ErrorLevel)
}

func (l *LogrusLogger) entry(level logrus.Level) Entry {
	if l.logger == nil || !l.logger.IsLevelEnabled(level) {
		return nullEntry
	}
	return &LogrusEntry{
		entry: logrus.NewEntry(l.logger),
		level: level,
	}
}

func (l *LogrusLogger) SetLevel(level string) error {
	logrusLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	// record the choice and set it if we're already initialized
	l.level = &logrusLevel
	if l.logger != nil {
		l.logger.SetLevel(logrusLevel)
	}
	return nil
}

func (l *LogrusEntry) WithField(key string, value any) Entry {
	return &LogrusEntry{
		entry: l.entry.WithField(key, value),
		level: l.level,
	}
}

func (l *LogrusEntry) WithString(key string, value string) Entry {
	return l.WithField(key, value)
}

func (l *LogrusEntry) WithFields(fields map[string]any) Entry {
	return &LogrusEntry{
		entry: l.entry.WithFields(fields),
		level: l.level,
	}
}

func (l *LogrusEntry) Logf(f string, args ...any) {
	l.entry.Logf(l.level, f, args...)
}
