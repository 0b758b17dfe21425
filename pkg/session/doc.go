/*
Package session serializes access to persisted conversations.

The orchestration core is stateless; hosts that keep sessions between
invocations use a Manager to make read-modify-write cycles safe across
goroutines and, with a DistributedLocker, across replicas.
*/
package session
