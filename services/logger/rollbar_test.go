package logsvc

import (
	"bytes"
	"log"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/drowsiness/core"
)

func TestRollbarLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewRollbarLogger(log.New(&buf, "", 0), core.NewTestConfig())
	logger.Enable(false)

	logger.Warn("dropping frame", "session", "s1", "error", errors.New("bad json"), core.Person{ID: "u1"})
	assert.Equal(t, "WARN dropping frame session=s1 error=bad json\n", buf.String())
}

func TestRollbarLogger_prepare(t *testing.T) {
	l := RollbarLogger{}
	err := errors.New("boom")

	e := l.prepare("finish failed", []interface{}{"session", "s1", "error", err, 42})
	assert.Equal(t, "finish failed session=s1 error=boom 42", e.line)
	assert.Equal(t, []interface{}{
		err,
		"finish failed",
		map[string]interface{}{"session": "s1", "error": err, "arg4": 42},
	}, e.report)

	e = l.prepare("could not save", []interface{}{err, "session", "s1"})
	assert.Equal(t, "could not save error=boom session=s1", e.line)
	assert.Equal(t, []interface{}{err, "could not save", map[string]interface{}{"session": "s1"}}, e.report)

	e = l.prepare("hello", nil)
	assert.Equal(t, []interface{}{"hello"}, e.report)
}
