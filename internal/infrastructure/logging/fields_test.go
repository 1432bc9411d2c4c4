package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestCallFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	logger.Info("full", Call("rename", "alice", "bob", "document", "/a.txt")...)
	logger.Info("bare", Call("index", "alice", "anonymous", "", "")...)

	entries := logs.AllUntimed()
	assert.Equal(t, map[string]interface{}{
		KeyOperation: "rename",
		KeyPrincipal: "alice",
		KeyCaller:    "bob",
		KeyAdapter:   "document",
		KeyPath:      "/a.txt",
	}, entries[0].ContextMap())
	assert.Equal(t, map[string]interface{}{
		KeyOperation: "index",
		KeyPrincipal: "alice",
		KeyCaller:    "anonymous",
	}, entries[1].ContextMap())
}

func TestFieldKeys(t *testing.T) {
	assert.Equal(t, KeyRequestID, RequestID("01J").Key)
	assert.Equal(t, KeyPath, Path("/x").Key)
	assert.Equal(t, KeyAdapter, Adapter("release").Key)
	assert.Equal(t, KeyPrincipal, Principal("alice").Key)
}
