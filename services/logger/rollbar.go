package logsvc

import (
	"fmt"
	"log"
	"strings"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/drowsiness/core"
)

type RollbarLogger struct {
	std *log.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{std: std}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// entry is a log call split into what rollbar and the std logger need.
type entry struct {
	line   string
	report []interface{}
}

// prepare reads args as `key, value` pairs. The first error value is reported as the error,
// the pairs as custom data, and a core.Person argument as the rollbar person.
func (l RollbarLogger) prepare(msg string, args []interface{}) entry {
	var (
		person *core.Person
		err    error
		line   strings.Builder
	)
	extras := make(map[string]interface{}, len(args)/2)
	line.WriteString(msg)

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if p, ok := arg.(core.Person); ok {
			if person == nil { // only set one Person
				person = &p
			}
			continue
		}
		if e, ok := arg.(error); ok {
			if err == nil {
				err = e
			}
			fmt.Fprintf(&line, " error=%v", e)
			continue
		}
		if key, ok := arg.(string); ok && i+1 < len(args) {
			val := args[i+1]
			i++
			if e, ok := val.(error); ok && err == nil {
				err = e
			}
			extras[key] = val
			fmt.Fprintf(&line, " %s=%v", key, val)
			continue
		}
		extras[fmt.Sprintf("arg%d", i)] = arg
		fmt.Fprintf(&line, " %+v", arg)
	}

	if person != nil {
		rollbar.SetPerson(person.ID, person.Username, person.Email)
	} else {
		rollbar.ClearPerson()
	}

	report := make([]interface{}, 0, 3)
	if err != nil {
		report = append(report, err)
	}
	report = append(report, msg)
	if len(extras) > 0 {
		report = append(report, extras)
	}
	return entry{line: line.String(), report: report}
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	e := l.prepare(msg, args)
	rollbar.Debug(e.report...)
	l.std.Println("DEBUG", e.line)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	e := l.prepare(msg, args)
	rollbar.Info(e.report...)
	l.std.Println("INFO", e.line)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	e := l.prepare(msg, args)
	rollbar.Warning(e.report...)
	l.std.Println("WARN", e.line)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	e := l.prepare(msg, args)
	rollbar.Error(e.report...)
	l.std.Println("ERROR", e.line)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	e := l.prepare(msg, args)
	rollbar.Critical(e.report...)
	rollbar.Wait()
	l.std.Fatal("FATAL ", e.line)
}
