package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"grimm.is/zonefwd/internal/brand"
	"grimm.is/zonefwd/internal/config"
	"grimm.is/zonefwd/internal/model"
)

// RunCheck validates the configuration file. With format set it prints
// the canonically formatted file instead of the summary.
func RunCheck(configFile string, verbose, format bool) error {
	if len(configFile) == 0 {
		return fmt.Errorf("usage: %s check [-v] [-fmt] <config-file>\nExample: %s check -v %s", brand.BinaryName, brand.BinaryName, brand.GetConfigPath())
	}

	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	if format {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return err
		}
		os.Stdout.Write(config.Format(data))
		return nil
	}

	m := cfg.Model
	c := countSections(m)
	Printer.Printf("Configuration valid!\n")
	Printer.Printf("Zones: %d\n", c.zones)
	Printer.Printf("Networks: %d\n", len(m.Networks()))
	Printer.Printf("Forwardings: %d\n", c.forwardings)
	Printer.Printf("Redirects: %d\n", c.redirects)
	Printer.Printf("Rules: %d\n", c.rules)
	Printer.Printf("Includes: %d\n", c.includes)

	if verbose {
		Printer.Println()
		printSummary(m)
	}
	return nil
}

type sectionCounts struct {
	zones, forwardings, redirects, rules, includes int
}

// countSections tallies the loaded sections by kind. tcp+udp rules and
// redirects count once per protocol.
func countSections(m *model.Model) sectionCounts {
	var c sectionCounts
	for _, s := range m.Sections {
		switch s.(type) {
		case *model.Zone:
			c.zones++
		case *model.Forwarding:
			c.forwardings++
		case *model.Redirect:
			c.redirects++
		case *model.Rule:
			c.rules++
		case *model.Include:
			c.includes++
		}
	}
	return c
}

func printSummary(m *model.Model) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)

	Printer.Fprintln(w, "ZONE\tNETWORKS\tINPUT\tOUTPUT\tFORWARD\tMASQ\tMTU_FIX")
	for _, z := range m.Zones {
		var nets []string
		for _, n := range z.Networks {
			nets = append(nets, n.Name+"("+n.Ifname+")")
		}
		Printer.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\t%t\n", z.Name, strings.Join(nets, ","),
			z.EffectivePolicy(model.DirInput, m.Defaults),
			z.EffectivePolicy(model.DirOutput, m.Defaults),
			z.EffectivePolicy(model.DirForward, m.Defaults),
			z.Masq, z.MTUFix)
	}
	Printer.Fprintln(w)
	w.Flush()

	Printer.Fprintln(w, "FROM\tTO\tMASQ\tMTU_FIX")
	for _, z := range m.Zones {
		for _, f := range z.Forwardings {
			Printer.Fprintf(w, "%s\t%s\t%t\t%t\n", f.Src.Name, f.Dest.Name, f.Masq, f.MTUFix)
		}
	}
	Printer.Fprintln(w)
	w.Flush()
}
