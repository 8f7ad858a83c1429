package core

// Logger is the app-wide logging contract.
// Args may carry errors, maps of extra fields, or the Person the log entry is about.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Person identifies the authenticated caller attached to a log entry.
type Person struct {
	ID       string
	Username string
	Email    string
}

// NopLogger discards everything. Fatal still panics so misconfigurations are not lost in tests.
type NopLogger struct{}

var _ Logger = NopLogger{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
func (NopLogger) Fatal(msg string, _ ...interface{}) {
	panic(msg)
}
