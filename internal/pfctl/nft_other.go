//go:build !linux

package pfctl

import "errors"

// NewKernelBackend is only available on Linux.
func NewKernelBackend(prefix string, netnsFd int) (Backend, error) {
	return nil, errors.New("nftables backend requires linux")
}
