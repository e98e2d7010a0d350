//go:build linux

package network

import (
	"fmt"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
)

// HandleNetlinker implements Netlinker over a netlink socket that stays
// open for the life of the process.
type HandleNetlinker struct {
	h  *netlink.Handle
	ns netns.NsHandle
}

// OpenNetlinker opens a netlink handle. A non-empty nsName binds the
// handle to that named network namespace.
func OpenNetlinker(nsName string) (*HandleNetlinker, error) {
	ns := netns.None()
	if nsName != "" {
		var err error
		ns, err = netns.GetFromName(nsName)
		if err != nil {
			return nil, fmt.Errorf("open netns %s: %w", nsName, err)
		}
	}

	var (
		h   *netlink.Handle
		err error
	)
	if ns.IsOpen() {
		h, err = netlink.NewHandleAt(ns)
	} else {
		h, err = netlink.NewHandle()
	}
	if err != nil {
		if ns.IsOpen() {
			ns.Close()
		}
		return nil, fmt.Errorf("open netlink handle: %w", err)
	}
	return &HandleNetlinker{h: h, ns: ns}, nil
}

// NamespaceFd returns the namespace file descriptor, or -1 for the
// current namespace.
func (n *HandleNetlinker) NamespaceFd() int {
	if !n.ns.IsOpen() {
		return -1
	}
	return int(n.ns)
}

func (n *HandleNetlinker) LinkList() ([]netlink.Link, error) {
	return n.h.LinkList()
}

func (n *HandleNetlinker) AddrList(link netlink.Link, family int) ([]netlink.Addr, error) {
	return n.h.AddrList(link, family)
}

// Close releases the netlink socket and namespace handle.
func (n *HandleNetlinker) Close() error {
	n.h.Delete()
	if n.ns.IsOpen() {
		return n.ns.Close()
	}
	return nil
}
