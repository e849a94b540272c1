// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/xml"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sapcc/go-api-declarations/bininfo"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap/zapcore"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/ironcore-dev/netconf-ospf/internal/config"
	"github.com/ironcore-dev/netconf-ospf/internal/device"
	"github.com/ironcore-dev/netconf-ospf/internal/deviceutil"
	"github.com/ironcore-dev/netconf-ospf/internal/netconfext"
	"github.com/ironcore-dev/netconf-ospf/internal/provider"
	_ "github.com/ironcore-dev/netconf-ospf/internal/provider/brocade/nos"
)

const name = "netconf-ospf"

func main() {
	bininfo.HandleVersionArgument()
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

type flags struct {
	username     string
	password     string
	area         string
	rbridgeID    int
	configFile   string
	providerName string
	dryRun       bool
}

func usage(fs *flag.FlagSet) func() {
	return func() {
		w := fs.Output()
		fmt.Fprintf(w, "Usage: %s [flags] <ip_addr> <interface>\n\n", name)
		fmt.Fprintf(w, "Enables OSPF on a Brocade switch interface over NETCONF.\n\n")
		fmt.Fprintf(w, "Arguments:\n")
		fmt.Fprintf(w, "  ip_addr      Management IP address of the switch\n")
		fmt.Fprintf(w, "  interface    Ten gigabit ethernet interface, e.g. 1/0/1\n\n")
		fmt.Fprintf(w, "Flags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(w, "\nExample:\n")
		fmt.Fprintf(w, "  %s -username=admin -password=secret -area=0.0.0.10 -rbridge_id=2 192.168.1.1 2/0/48\n", name)
	}
}

// parseInterspersed parses flags that may appear before, between or after the positional arguments.
// Everything after a "--" terminator is positional.
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		rest := fs.Args()
		if n := len(args) - len(rest); n > 0 && args[n-1] == "--" {
			return append(positional, rest...), nil
		}
		if len(rest) == 0 {
			return positional, nil
		}
		positional = append(positional, rest[0])
		args = rest[1:]
	}
}

func validatePositionalArgs(args []string) (address, iface string, err error) {
	if len(args) != 2 {
		return "", "", fmt.Errorf("exactly two positional arguments (ip_addr interface) are required, got %d", len(args))
	}
	return args[0], args[1], nil
}

// run executes the command and returns the process exit code.
// Session failures are reported on stdout and do not change the exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = usage(fs)

	var f flags
	fs.StringVar(&f.username, "username", deviceutil.DefaultUsername, "Username to log into the switch")
	fs.StringVar(&f.password, "password", deviceutil.DefaultPassword, "Password to log into the switch")
	fs.StringVar(&f.area, "area", provider.DefaultArea, "OSPF area to attach the interface to")
	fs.IntVar(&f.rbridgeID, "rbridge_id", provider.DefaultRBridgeID, "Routing bridge to enable OSPF on")
	fs.StringVar(&f.configFile, "config", "", "Path to a device file with connection settings and OSPF defaults")
	fs.StringVar(&f.providerName, "provider", "", "The provider to use for the device. Available providers: "+strings.Join(provider.Providers(), ", "))
	fs.BoolVar(&f.dryRun, "dry-run", false, "Print the configuration documents instead of sending them to the switch")
	opts := zap.Options{
		Development: true,
		TimeEncoder: zapcore.ISO8601TimeEncoder,
		DestWriter:  stderr,
	}
	opts.BindFlags(fs)

	positional, err := parseInterspersed(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	address, iface, err := validatePositionalArgs(positional)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n\n", err)
		fs.Usage()
		return 2
	}

	log := zap.New(zap.UseFlagOptions(&opts)).WithName(name)
	ctx = logf.IntoContext(ctx, log)

	cfg := new(config.Config)
	if f.configFile != "" {
		if cfg, err = config.Load(f.configFile); err != nil {
			fmt.Fprintf(stderr, "Error loading config: %v\n", err)
			return 1
		}
	}

	set := make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })

	conn := cfg.Connection(address)
	if set["username"] {
		conn.Username = f.username
	}
	if set["password"] {
		conn.Password = f.password
	}
	area := cfg.OSPFArea()
	if set["area"] {
		area = f.area
	}
	rbridgeID := cfg.OSPFRBridgeID()
	if set["rbridge_id"] {
		rbridgeID = f.rbridgeID
	}
	providerName := cfg.Provider
	if set["provider"] {
		providerName = f.providerName
	}

	dev, err := device.New(conn, device.WithProvider(providerName), device.WithOutput(stdout))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if f.dryRun {
		log.Info("Dry run, not connecting to device", "address", dev.Address())
		docs, err := dev.OSPFDocuments(iface, device.WithArea(area), device.WithRBridgeID(rbridgeID))
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		if err := printDocuments(stdout, docs); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	// Errors are reported on stdout by the device.
	_ = dev.Connect(ctx)
	_, _ = dev.ApplyOSPF(ctx, iface, device.WithArea(area), device.WithRBridgeID(rbridgeID))
	_ = dev.Close(ctx)
	return 0
}

// printDocuments writes each document preceded by a comment describing it.
func printDocuments(w io.Writer, docs []netconfext.Document) error {
	for _, doc := range docs {
		b, err := xml.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", doc.Describe(), err)
		}
		fmt.Fprintf(w, "<!-- %s -->\n%s\n", doc.Describe(), b)
	}
	return nil
}
