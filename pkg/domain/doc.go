/*
Package domain contains the core domain models of the flujos engine.

It defines the conversational flow graph (Flow, Node, Edge), the typed payload carried by
each node kind (NodeData), the routing conditions attached to edges (Condition), and the
runtime records produced while a flow executes (Instance, LogEntry). This package is kept
pure and free of I/O so it can be shared by the stores, the runtime and the HTTP adapter.

# Key Entities

  - Flow: a directed graph plus its trigger, channel scope and lifecycle state.
  - Node: a typed step. Its Datos field is a sum type with one variant per NodeType.
  - Edge: a directed connection. Its Condicion field selects when the edge is taken.
  - Instance: one running, suspended or finished execution of a flow for one user on one channel.
  - LogEntry: one append-only trace row per node visit.
*/
package domain
