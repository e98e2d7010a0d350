package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/pmezard/go-difflib/difflib"

	"grimm.is/zonefwd/internal/config"
	"grimm.is/zonefwd/internal/network"
)

// ErrDiffers is returned by RunDiff when the rulesets differ.
var ErrDiffers = errors.New("rulesets differ")

// RunDiff renders the rulesets of two configuration files against the
// same interface addresses and prints a unified diff.
func RunDiff(w io.Writer, oldFile, newFile, netns string, verbose bool) error {
	oldCfg, err := config.LoadFile(oldFile)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", oldFile, err)
	}
	newCfg, err := config.LoadFile(newFile)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", newFile, err)
	}
	if netns == "" {
		netns = newCfg.Daemon.Netns
	}

	logger := cliLogger(verbose)
	addrs := liveAddresses(netns, logger)
	return diffRulesets(w, oldFile, newFile, oldCfg, newCfg, addrs)
}

func diffRulesets(w io.Writer, oldName, newName string, oldCfg, newCfg *config.Config, addrs []network.Address) error {
	logger := cliLogger(false)
	a, err := Render(oldCfg.Model, addrs, logger)
	if err != nil {
		return err
	}
	b, err := Render(newCfg.Model, addrs, logger)
	if err != nil {
		return err
	}

	if a == b {
		Printer.Fprintln(w, "No changes detected.")
		return nil
	}

	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: oldName,
		ToFile:   newName,
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return err
	}
	fmt.Fprint(w, text)
	return ErrDiffers
}
