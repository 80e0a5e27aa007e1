// Package store holds the persistence primitives shared by the job
// backends: the DBTX abstraction, transactions and the common store errors.
package store
