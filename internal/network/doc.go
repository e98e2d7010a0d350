// Package network reads the kernel's interface-address table.
//
// A [Resolver] performs one netlink address dump per call and returns the
// primary IPv4 address of every interface as a [model.Cidr]. The reconciler
// polls it once per cycle and compares the result against its cached
// per-network state.
//
// Netlink access goes through the [Netlinker] interface so tests can
// substitute [MockNetlinker]. On Linux, [OpenNetlinker] returns a
// handle-backed implementation, optionally bound to a named network
// namespace.
package network
