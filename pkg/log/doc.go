/*
Package log provides structured JSON logging for the hub using zerolog.

A single global logger is configured once via Init and read by every other
package; component-scoped child loggers are derived from it via
WithComponent, WithServerID, and WithServiceName so every log line carries
the context of the actor or request that produced it.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})

	log.Info("hub starting")

	collectorLog := log.WithServerID("10.0.0.5:51243")
	collectorLog.Warn().Err(err).Msg("poll failed")

Fatal logs at fatal level and calls os.Exit(1); it is reserved for startup
failures the hub cannot recover from (bad config, unreachable storage
backend), never for steady-state errors.
*/
package log
