package main

import (
	"errors"
	"flag"
	"os"

	"grimm.is/zonefwd/cmd"
	"grimm.is/zonefwd/internal/brand"
	"grimm.is/zonefwd/internal/ctlplane"
	"grimm.is/zonefwd/internal/i18n"
)

var printer = i18n.NewCLIPrinter()

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "ctl":
		// Run the daemon in the foreground
		ctlFlags := flag.NewFlagSet("ctl", flag.ExitOnError)
		configFile := ctlFlags.String("config", brand.GetConfigPath(), "Configuration file")
		ctlFlags.StringVar(configFile, "c", brand.GetConfigPath(), "Configuration file (short)")

		dryRun := ctlFlags.Bool("dry-run", false, "Dry run - print rules without applying")
		ctlFlags.BoolVar(dryRun, "n", false, "Dry run (short)")

		netns := ctlFlags.String("netns", "", "Manage the named network namespace")
		verbose := ctlFlags.Bool("v", false, "Debug logging")
		ctlFlags.Parse(os.Args[2:])

		opts := cmd.CtlOptions{ConfigFile: *configFile, Netns: *netns, DryRun: *dryRun, Verbose: *verbose}
		if err := cmd.RunCtl(opts); err != nil {
			printer.Fprintf(os.Stderr, "Control daemon failed: %v\n", err)
			os.Exit(1)
		}

	case "flush", "build", "reload", "addif", "delif":
		runClient(os.Args[1], os.Args[2:])

	case "check":
		checkFlags := flag.NewFlagSet("check", flag.ExitOnError)
		verbose := checkFlags.Bool("verbose", false, "Verbose output")
		checkFlags.BoolVar(verbose, "v", false, "Verbose output (short)")
		format := checkFlags.Bool("fmt", false, "Print the formatted configuration")
		checkFlags.Parse(os.Args[2:])

		configFile := brand.GetConfigPath()
		if len(checkFlags.Args()) > 0 {
			configFile = checkFlags.Arg(0)
		}

		if err := cmd.RunCheck(configFile, *verbose, *format); err != nil {
			printer.Fprintf(os.Stderr, "Check failed: %v\n", err)
			os.Exit(1)
		}

	case "show":
		showFlags := flag.NewFlagSet("show", flag.ExitOnError)
		netns := showFlags.String("netns", "", "Read addresses from the named network namespace")
		verbose := showFlags.Bool("v", false, "Debug logging")
		showFlags.Parse(os.Args[2:])

		if err := cmd.RunShow(showFlags.Arg(0), *netns, *verbose); err != nil {
			printer.Fprintf(os.Stderr, "Show failed: %v\n", err)
			os.Exit(1)
		}

	case "diff":
		diffFlags := flag.NewFlagSet("diff", flag.ExitOnError)
		netns := diffFlags.String("netns", "", "Read addresses from the named network namespace")
		verbose := diffFlags.Bool("v", false, "Debug logging")
		diffFlags.Parse(os.Args[2:])

		if diffFlags.NArg() != 2 {
			printer.Println("Usage: " + brand.BinaryName + " diff <old-config> <new-config>")
			os.Exit(1)
		}
		if err := cmd.RunDiff(os.Stdout, diffFlags.Arg(0), diffFlags.Arg(1), *netns, *verbose); err != nil {
			if !errors.Is(err, cmd.ErrDiffers) {
				printer.Fprintf(os.Stderr, "%v\n", err)
			}
			os.Exit(1)
		}

	case "log":
		if err := cmd.RunLog(os.Args[2:]); err != nil {
			printer.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}

	case "version":
		printer.Printf("%s %s (commit %s, built %s)\n", brand.Name, brand.Version, brand.GitCommit, brand.BuildTime)

	case "help", "-h", "--help":
		printUsage()

	default:
		printer.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// runClient sends one control command and exits non-zero on any failure
// with a fixed message.
func runClient(name string, args []string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	socket := fs.String("socket", "", "Control socket path (default: daemon.socket from the config)")
	configFile := fs.String("config", "", "Configuration file to read the socket path from")
	fs.StringVar(configFile, "c", "", "Configuration file (shorthand)")
	fs.Parse(args)

	t, _ := ctlplane.ParseType(name)
	err := cmd.RunCommand(cmd.SocketPath(*socket, *configFile), t, fs.Arg(0))
	switch {
	case err == nil:
		return
	case errors.Is(err, cmd.ErrConnect):
		printer.Fprintln(os.Stderr, "Unable to connect to daemon")
	case errors.Is(err, cmd.ErrCommand):
		printer.Fprintln(os.Stderr, "Command failed")
	default:
		printer.Fprintf(os.Stderr, "%v\n", err)
	}
	os.Exit(1)
}

func printUsage() {
	printer.Printf(`%s - %s

Usage:
  %s <command> [options]

Daemon:
  ctl [-config file] [-dry-run] [-netns name] [-v]
                      Run the daemon in the foreground

Control (talks to a running daemon):
  Options -socket path and -config file select the socket. It defaults to
  daemon.socket in the configuration, else %s.
  flush               Remove every rule and chain
  build               Rebuild the ruleset from the cached addresses
  reload              Reload the configuration and rebuild
  addif <network>     Reinstall one network's rules
  delif <network>     Remove one network's rules

Offline:
  check [-v] [-fmt] <file>      Validate a configuration
  show [-netns name] <file>     Print the ruleset for the current addresses
  diff <old> <new>              Compare the rulesets of two configurations
  log [-n lines] [-kind k]      Show recent audit events
  version                       Print version information
`, brand.Name, brand.Description, brand.BinaryName, brand.GetSocketPath())
}
