package logger

type NullLogger struct{}

var _ = Logger((*NullLogger)(nil))

// nullEntry is returned by loggers for disabled levels.
var nullEntry = &NullLoggerEntry{}

func (n *NullLogger) Debug() Entry          { return nullEntry }
func (n *NullLogger) Info() Entry           { return nullEntry }
func (n *NullLogger) Warn() Entry           { return nullEntry }
func (n *NullLogger) Error() Entry          { return nullEntry }
func (n *NullLogger) SetLevel(string) error { return nil }

type NullLoggerEntry struct{}

func (n *NullLoggerEntry) WithField(key string, value any) Entry     { return n }
func (n *NullLoggerEntry) WithString(key string, value string) Entry { return n }
func (n *NullLoggerEntry) WithFields(fields map[string]any) Entry    { return n }
func (n *NullLoggerEntry) Logf(string, ...any)                       {}
