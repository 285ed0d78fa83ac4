package main

import (
	"armos/kernel/mm"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
)

// Translate implements subcommands.Command for the "translate" command.
type Translate struct{}

// Name implements subcommands.Command.Name.
func (*Translate) Name() string {
	return "translate"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Translate) Synopsis() string {
	return "boot the simulated machine and translate virtual addresses"
}

// Usage implements subcommands.Command.Usage.
func (*Translate) Usage() string {
	return "translate <virtual address>...\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Translate) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Translate) Execute(_ context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	addrs, err := parseAddrs(f.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	machine := args[0].(*Machine)
	log := args[1].(logrus.FieldLogger)

	res, err := bootMachine(machine, false, log)
	if err != nil {
		log.WithError(err).Error("boot failed")
		return subcommands.ExitFailure
	}
	defer func() { _ = res.Close() }()

	printTranslations(os.Stdout, res, addrs)
	return subcommands.ExitSuccess
}

func printTranslations(w io.Writer, res *bootResult, addrs []mm.VirtAddr) {
	tables := res.mgr.Tables()
	for _, va := range addrs {
		kind := tables.Entry(va.DirIndex()).Kind()
		if pa, ok := tables.Translate(va); ok {
			fmt.Fprintf(w, "0x%08x -> 0x%08x (%s)\n", uint32(va), uint32(pa), kind)
		} else {
			fmt.Fprintf(w, "0x%08x -> unmapped (%s)\n", uint32(va), kind)
		}
	}
}

// parseAddrs parses 32-bit addresses in any base accepted by strconv.
func parseAddrs(args []string) ([]mm.VirtAddr, error) {
	addrs := make([]mm.VirtAddr, 0, len(args))
	for _, arg := range args {
		v, err := strconv.ParseUint(arg, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q: %w", arg, err)
		}
		addrs = append(addrs, mm.VirtAddr(v))
	}
	return addrs, nil
}
