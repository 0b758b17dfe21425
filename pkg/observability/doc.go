/*
Package observability turns the engine's lifecycle hooks into logs and
Prometheus metrics, and instruments the runtime collaborators (model invoker,
tool executor) with latency histograms.

Hooks are pure observers: nothing here can change what the engine decides.
*/
package observability
