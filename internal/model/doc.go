// Package model is the in-memory firewall model: defaults, zones and their
// networks, inter-zone forwardings, redirects, filter rules and includes.
//
// A Model is built once per configuration load with every zone reference
// already resolved. Apart from Network.Addr, which the reconciler updates as
// interfaces gain and lose addresses, a Model is read-only after load.
package model
