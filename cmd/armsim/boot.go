package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
)

// Boot implements subcommands.Command for the "boot" command.
type Boot struct {
	check bool
}

// Name implements subcommands.Command.Name.
func (*Boot) Name() string {
	return "boot"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Boot) Synopsis() string {
	return "bring up the memory manager on a simulated machine"
}

// Usage implements subcommands.Command.Usage.
func (*Boot) Usage() string {
	return "boot [-check]\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (b *Boot) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&b.check, "check", false, "run the memory manager self-checks after boot.")
}

// Execute implements subcommands.Command.Execute.
func (b *Boot) Execute(_ context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	machine := args[0].(*Machine)
	log := args[1].(logrus.FieldLogger)

	res, err := bootMachine(machine, b.check, log)
	if err != nil {
		log.WithError(err).Error("boot failed")
		return subcommands.ExitFailure
	}
	defer func() { _ = res.Close() }()

	regions := res.mgr.Regions()
	log.WithFields(logrus.Fields{
		"state":         res.mgr.State(),
		"regions":       regions.RegionCount(),
		"freeRegions":   regions.FreeCount(),
		"invalidated":   len(res.mmu.Invalidations),
		"mmioWindows":   len(res.mgr.Windows().Windows()),
		"mmioRemaining": res.mgr.Windows().Remaining(),
	}).Info("boot complete")

	for _, w := range res.mgr.Windows().Windows() {
		log.WithFields(logrus.Fields{
			"virt": fmt.Sprintf("0x%08x", uint32(w.Virt)),
			"phys": fmt.Sprintf("0x%08x", uint32(w.Phys)),
			"size": w.Size,
		}).Info("device window")
	}

	return subcommands.ExitSuccess
}
