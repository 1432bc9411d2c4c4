// Package logging provides structured logging using uber/zap.
//
// Production loggers write JSON; development loggers write colored console
// output. The level can be changed at runtime with SetLevel. Request-scoped
// lines use the shared field helpers so every component logs the same keys:
//
//	logger, _ := logging.New(logging.Config{Level: "info"})
//	logger.Warn("Operation rejected", logging.Call("rename", "alice", "alice", "document", "/a.txt")...)
package logging
