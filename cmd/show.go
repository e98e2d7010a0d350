package cmd

import (
	"fmt"

	"grimm.is/zonefwd/internal/brand"
	"grimm.is/zonefwd/internal/config"
)

// RunShow prints the ruleset the daemon would install for configFile,
// using the current interface addresses. The kernel is not modified.
func RunShow(configFile, netns string, verbose bool) error {
	if configFile == "" {
		configFile = brand.GetConfigPath()
	}
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if netns == "" {
		netns = cfg.Daemon.Netns
	}

	logger := cliLogger(verbose)
	out, err := Render(cfg.Model, liveAddresses(netns, logger), logger)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}
