package logging

import (
	"errors"
	"testing"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var _ cron.Logger = CronLogger{}

func TestCronLoggerRoutesErrors(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	cl := NewCronLogger(zap.New(core))

	cl.Info("wake", "now", "09:00")
	cl.Error(errors.New("boom"), "panic", "job", "reminders")

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, "wake", entries[0].Message)
		assert.Equal(t, zap.ErrorLevel, entries[1].Level)
		assert.Equal(t, "boom", entries[1].ContextMap()["error"])
		assert.Equal(t, "cron", entries[1].LoggerName)
	}
}

func TestNewByEnv(t *testing.T) {
	assert.NotNil(t, New("production"))
	assert.NotNil(t, New("dev"))
}
