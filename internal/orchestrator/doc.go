// Package orchestrator is the entry point for device insight requests. It
// composes the snapshot cache, the query router and the failover dispatcher:
//
//   - orchestrator.go: Orchestrator type, constructor, lifecycle (Init/Cleanup).
//   - config.go: Config and package defaults; New applies defaults.
//   - insights.go: the four insight operations and their shared template.
//   - providers.go: provider registration passthroughs and cache invalidation.
//   - templates.go: static fallback advice derived from snapshot thresholds.
//   - status.go: GetStatus reporting.
//   - events.go: event publishing (memory, zerolog, noop).
//   - errors.go: ErrEmptyPrompt and helpers.
//
// Every insight operation returns a structured result. Backend failures are
// absorbed by failover and the fallback templates; only malformed input and
// configuration errors (unknown data source) are returned as Go errors.
package orchestrator
