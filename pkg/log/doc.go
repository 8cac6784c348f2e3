/*
Package log provides structured logging for Warden using zerolog.

The package wraps zerolog behind a small API: Init configures the global
logger (level, JSON or console output), and WithComponent and WithNodeID
derive child loggers carrying the standard context fields.

Initialize once in main before any other package logs:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	flusherLog := log.WithComponent("flusher")
	flusherLog.Info().Int("events", n).Msg("batch persisted")
*/
package log
