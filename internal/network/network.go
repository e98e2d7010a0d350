package network

import (
	"errors"
	"fmt"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"grimm.is/zonefwd/internal/logging"
	"grimm.is/zonefwd/internal/model"
)

// FamilyV4 is the address family the daemon manages.
const FamilyV4 = unix.AF_INET

// ifaSecondary mirrors IFA_F_SECONDARY from linux/if_addr.h.
const ifaSecondary = 0x01

// ErrUnsupported is returned by platforms without netlink.
var ErrUnsupported = errors.New("netlink not supported on this platform")

// Netlinker is the subset of netlink the resolver needs.
type Netlinker interface {
	LinkList() ([]netlink.Link, error)
	AddrList(link netlink.Link, family int) ([]netlink.Addr, error)
}

// Address is one address sighted in the kernel table.
type Address struct {
	Index  int
	Ifname string
	Cidr   model.Cidr
	Label  string
}

// Resolver polls interface addresses.
type Resolver struct {
	nl     Netlinker
	logger *logging.Logger
}

// NewResolver creates a resolver over nl.
func NewResolver(nl Netlinker, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{nl: nl, logger: logger.WithComponent("resolver")}
}

// Resolve dumps the address table for family. Secondary addresses are
// skipped, so each interface contributes at most its primary address.
// Any netlink failure fails the whole poll.
func (r *Resolver) Resolve(family int) ([]Address, error) {
	links, err := r.nl.LinkList()
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	names := make(map[int]string, len(links))
	for _, l := range links {
		attrs := l.Attrs()
		if attrs == nil {
			continue
		}
		names[attrs.Index] = attrs.Name
	}

	addrs, err := r.nl.AddrList(nil, family)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}

	seen := make(map[string]bool)
	out := make([]Address, 0, len(addrs))
	for _, a := range addrs {
		if a.IPNet == nil {
			continue
		}
		if family == FamilyV4 && a.IP.To4() == nil {
			continue
		}
		name, ok := names[a.LinkIndex]
		if !ok {
			// Link vanished between the two dumps.
			r.logger.Debug("address on unknown link", "index", a.LinkIndex, "addr", a.IPNet.String())
			continue
		}
		key := name
		if a.Label != "" {
			key = a.Label
		}
		// Secondaries only count when they carry their own alias label.
		if a.Flags&ifaSecondary != 0 && key == name {
			continue
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, Address{
			Index:  a.LinkIndex,
			Ifname: name,
			Cidr:   model.CidrFromIPNet(a.IPNet),
			Label:  a.Label,
		})
	}
	return out, nil
}

// Lookup returns the address of ifname, or the empty Cidr. The primary
// address of a matching interface wins; alias networks such as "eth0:1"
// resolve through their address label.
func Lookup(list []Address, ifname string) model.Cidr {
	if ifname == "" {
		return model.Cidr{}
	}
	for _, a := range list {
		if a.Ifname == ifname && (a.Label == "" || a.Label == a.Ifname) {
			return a.Cidr
		}
	}
	for _, a := range list {
		if a.Label == ifname {
			return a.Cidr
		}
	}
	return model.Cidr{}
}
