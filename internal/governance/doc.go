// Package governance provides fault-isolation primitives for the execution
// pipeline: per-agent circuit breakers and the manager that scopes them to a
// (tenant, agent) pair.
package governance
