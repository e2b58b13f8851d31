/*
Package session serializes work per conversation.

Inbound messages for the same (canal, identificador_usuario) pair must never execute
concurrently, while different conversations proceed in parallel. The Manager provides
that guarantee in-process with reference-counted mutexes and, when configured with a
ports.DistributedLocker, across replicas.
*/
package session
