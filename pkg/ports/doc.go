/*
Package ports defines the driven ports (interfaces) around the Tendril core.

The core itself performs no I/O. These interfaces describe what a host needs to
drive it: collaborators that do the actual work and storage for sessions.

# Key Interfaces

  - Orchestrator: the stateless decision core (implemented by tendril.Engine).
  - ModelInvoker, ToolExecutor, GuardrailEvaluator: external collaborators called by a host.
  - SessionStore: persists conversations between invocations.
  - DistributedLocker: serializes access to a session across replicas.
*/
package ports
