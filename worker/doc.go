// Package worker runs claim workers inside one process. A Pool starts N
// goroutines, each with its own worker ID, that poll the job service for
// the next claimable job, move it to running, execute the registered
// handler through middleware and record the outcome. An optional loop does
// the same for pending transactions.
//
// Workers coordinate with every other process only through the store: the
// pool holds no lock state of its own.
package worker
