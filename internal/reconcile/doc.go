// Package reconcile runs the daemon loop.
//
// Each poll the [Reconciler] reads the current interface addresses, compares
// every configured network with the address it last saw and adds, removes
// or reinstalls that network's firewall entries. Control requests are
// handled on the same goroutine, so the rule model and the kernel tables
// are never touched concurrently.
package reconcile
