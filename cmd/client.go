package cmd

import (
	"errors"
	"fmt"

	"grimm.is/zonefwd/internal/brand"
	"grimm.is/zonefwd/internal/config"
	"grimm.is/zonefwd/internal/ctlplane"
	"grimm.is/zonefwd/internal/logging"
)

var (
	// ErrConnect is returned when the daemon's socket cannot be reached.
	ErrConnect = errors.New("unable to connect to daemon")
	// ErrCommand is returned for any failed or malformed reply.
	ErrCommand = errors.New("command failed")
)

// SocketPath picks the control socket a client talks to: an explicit
// path wins, then the daemon block of configFile, then the default.
func SocketPath(socket, configFile string) string {
	if socket != "" {
		return socket
	}
	if configFile == "" {
		configFile = brand.GetConfigPath()
	}
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		logging.Debug("using default control socket", "config", configFile, "error", err)
		return brand.GetSocketPath()
	}
	return cfg.Daemon.Socket
}

// RunCommand sends one control command to the daemon listening on socket.
func RunCommand(socket string, t ctlplane.Type, name string) error {
	if (t == ctlplane.TypeAddIf || t == ctlplane.TypeDelIf) && name == "" {
		return fmt.Errorf("usage: %s <network>", t)
	}

	c, err := ctlplane.Dial(socket)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnect, err)
	}
	defer c.Close()

	if err := c.Do(t, name); err != nil {
		return fmt.Errorf("%w: %w", ErrCommand, err)
	}
	return nil
}
