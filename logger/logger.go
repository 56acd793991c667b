package logger

// Logger is the minimal structured logging contract the module depends on.
// Keys and values alternate in keyvals.
type Logger interface {
	Error(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Debug(msg string, keyvals ...any)
}
