//go:build !linux

package network

import "github.com/vishvananda/netlink"

// HandleNetlinker is unavailable off Linux.
type HandleNetlinker struct{}

// OpenNetlinker always fails off Linux.
func OpenNetlinker(nsName string) (*HandleNetlinker, error) {
	return nil, ErrUnsupported
}

func (n *HandleNetlinker) NamespaceFd() int { return -1 }

func (n *HandleNetlinker) LinkList() ([]netlink.Link, error) {
	return nil, ErrUnsupported
}

func (n *HandleNetlinker) AddrList(link netlink.Link, family int) ([]netlink.Addr, error) {
	return nil, ErrUnsupported
}

func (n *HandleNetlinker) Close() error { return nil }
