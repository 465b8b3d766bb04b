package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pollinations/pollenwall/internal/banner"
)

// version is stamped by the release build via -ldflags.
var version = "dev"

// attachRandom is the attach flag value meaning "pick any Processing pollen".
const attachRandom = "random"

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		banner.Fatal(os.Stderr, err)
		os.Exit(1)
	}
}

// Flags holds every flag of the root command.
type Flags struct {
	ConfigPath      string
	Address         string
	Home            string
	Attach          string
	Clean           bool
	GenerateService string
}

// buildRoot wires the flag set and the command implementation together.
func buildRoot() *cobra.Command {
	flags := &Flags{}
	c := command{out: os.Stdout, errOut: os.Stderr}
	return createRootCommand(c, flags)
}

// createRootCommand creates the root command. pollenwall is a single-verb
// tool, so everything hangs off root flags instead of subcommands.
func createRootCommand(c command, flags *Flags) *cobra.Command {
	root := &cobra.Command{
		Use:     "pollenwall",
		Short:   "Live AI-generated wallpapers from the pollinations network",
		Version: version,
		Long: `Pollenwall watches a pollen gateway for AI image generations and sets each
finished image as the desktop wallpaper. Downloaded artifacts live in a
volatile ~/.pollenwall directory that is safe to delete at any time.

Examples:
  pollenwall                                  # apply every pollen as it completes
  pollenwall --attach                         # follow one random in-flight pollen
  pollenwall --attach=QmYwAPJz...             # follow a specific pollen
  pollenwall --address=http://localhost:5001  # poll a local gateway node
  pollenwall --clean                          # empty the cache and exit
  pollenwall --generate-service               # print an autostart descriptor`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.Clean {
				return c.Clean(flags)
			}
			if cmd.Flags().Changed("generate-service") {
				return c.GenerateService(flags)
			}
			return c.Run(cmd.Context(), flags, cmd.Flags().Changed("attach"))
		},
	}

	root.Flags().StringVarP(&flags.Attach, "attach", "a", "", "follow a single pollen to completion; the optional value picks a specific id")
	root.Flags().Lookup("attach").NoOptDefVal = attachRandom
	root.Flags().StringVar(&flags.Address, "address", "", "pollen gateway base URL (overrides config)")
	root.Flags().BoolVarP(&flags.Clean, "clean", "c", false, "delete all cached artifacts and exit")
	root.Flags().StringVar(&flags.Home, "home", "", "directory treated as the user home")
	root.Flags().StringVar(&flags.GenerateService, "generate-service", "", "print an autostart service descriptor; the optional value is embedded as extra arguments")
	root.Flags().Lookup("generate-service").NoOptDefVal = " "
	root.Flags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")

	return root
}
