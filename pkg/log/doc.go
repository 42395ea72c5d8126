/*
Package log wraps zerolog in a package-level Logger plus a small set of
component-scoped helpers, used by the Manager and the Reconciler; the
Scheduler and the storage packages do not log.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	logger := log.WithComponent("reconciler")
	logger.Info().Str("instance_id", id).Msg("allocated")
*/
package log
