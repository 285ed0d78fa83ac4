// Command armsim boots the kernel memory manager against simulated RAM and
// an emulated MMU, and inspects ARM short-descriptor translations.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
)

var (
	configPath = flag.String("config", "", "path to a TOML machine description; the Versatile/PB layout is used when empty.")
	logFormat  = flag.String("log-format", "text", "log format: text or json.")
	debug      = flag.Bool("debug", false, "enable debug logging.")
)

func main() {
	forEachCmd(subcommands.Register)
	flag.Parse()

	log := logrus.New()
	log.SetOutput(os.Stderr)
	switch *logFormat {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		log.Fatalf("invalid log format %q", *logFormat)
	}
	if *debug {
		log.SetLevel(logrus.DebugLevel)
	}

	machine, err := loadMachine(*configPath)
	if err != nil {
		log.WithError(err).Fatal("loading machine description")
	}
	log.WithFields(logrus.Fields{
		"config":   *configPath,
		"memoryMB": machine.MemoryMB,
		"cmdline":  machine.CmdLine,
	}).Debug("machine loaded")

	os.Exit(int(subcommands.Execute(context.Background(), machine, log)))
}

// forEachCmd invokes cb for each command supported by armsim.
func forEachCmd(cb func(cmd subcommands.Command, group string)) {
	cb(subcommands.HelpCommand(), "")
	cb(subcommands.FlagsCommand(), "")
	cb(subcommands.CommandsCommand(), "")

	cb(new(Boot), "")
	cb(new(Translate), "")
	cb(new(Decode), "")
}
