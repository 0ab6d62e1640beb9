package sai

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/saiset-co/sai-org-registry/logger"
	"github.com/saiset-co/sai-org-registry/types"
)

type namedLogger struct {
	types.Logger
	types.LifecycleManager
}

func TestLoggerFallsBackToNop(t *testing.T) {
	SetContainer(nil)
	assert.NotNil(t, Logger())

	container := InitContainer()
	SetContainer(container)
	assert.NotNil(t, Logger())

	wired := namedLogger{Logger: logger.NewNop()}
	container.SetLogger(wired)
	assert.Equal(t, types.LoggerManager(wired), Logger())
}
