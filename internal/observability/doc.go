// Package observability records what Fanya Focus does to the task list and
// the advisor in an append-only JSON Lines log. Usage metrics and alerts are
// derived from that log on demand.
package observability
