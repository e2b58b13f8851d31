/*
Package ports defines the driven ports (interfaces) of the flujos engine.

These interfaces decouple the core logic from external implementations, allowing
the engine to work with various storage backends and side-effect services.

# Key Interfaces

  - FlowStore: persists flow definitions with optimistic versioning.
  - InstanceStore: persists conversation instances so they survive restarts.
  - LogStore: the append-only execution trace.
  - DistributedLocker: serializes access to a conversation across replicas.
  - AI, KnowledgeSearch, DataStore, Tasks, Calendar, Handoff, Messenger: the side effects
    node handlers perform.
*/
package ports
