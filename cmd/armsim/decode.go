package main

import (
	"armos/kernel/mm"
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"
)

// Decode implements subcommands.Command for the "decode" command.
type Decode struct{}

// Name implements subcommands.Command.Name.
func (*Decode) Name() string {
	return "decode"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Decode) Synopsis() string {
	return "split virtual addresses into directory index, table index and page offset"
}

// Usage implements subcommands.Command.Usage.
func (*Decode) Usage() string {
	return "decode <virtual address>...\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Decode) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Decode) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	addrs, err := parseAddrs(f.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	printDecoded(os.Stdout, addrs)
	return subcommands.ExitSuccess
}

func printDecoded(w io.Writer, addrs []mm.VirtAddr) {
	for _, va := range addrs {
		fmt.Fprintf(w, "0x%08x dir=%d table=%d offset=0x%03x\n", uint32(va), va.DirIndex(), va.TableIndex(), va.PageOffset())
	}
}
