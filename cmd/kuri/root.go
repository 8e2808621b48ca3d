package main

import (
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	"github.com/tliron/commonlog/simple"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var log = commonlog.GetLogger("kuri.cli")

// errDiagnostics reports a failed check whose diagnostics were already
// printed.
var errDiagnostics = errors.New("diagnostics reported")

var (
	projectDir string
	verbosity  int
	logPath    string
	colorMode  string
	noCache    bool
)

var rootCmd = &cobra.Command{
	Use:   "kuri",
	Short: "kuri language front end",
	Long: `kuri tokenizes, parses and validates kuri modules.

Commands:
  check    validate modules and report diagnostics
  tokens   print the token stream of a file
  ast      dump the validated tree as YAML
  types    list the structures, globals and functions of a module
  iface    print or write the module interface
  serve    run the check service (Connect + gRPC health)
  lsp      run the language server on stdio
  status   report server health and cache statistics`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configureLogging(verbosity, logPath)
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectDir, "dir", "C", ".", "project directory (searched upwards for kuri.toml)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "log verbosity (repeat for more)")
	rootCmd.PersistentFlags().StringVar(&logPath, "log", "", "log file (default: stderr)")
	rootCmd.PersistentFlags().StringVar(&colorMode, "color", "auto", "colorize diagnostics: auto, always or never")
	rootCmd.PersistentFlags().BoolVar(&noCache, "no-cache", false, "do not read or write the interface cache")
}

// configureLogging installs an unbuffered simple backend; a buffered one
// would lose records when the CLI exits with os.Exit.
func configureLogging(verbosity int, path string) {
	backend := simple.NewBackend()
	backend.Buffered = false
	commonlog.SetBackend(backend)

	var p *string
	if path != "" {
		p = &path
	}
	// Verbosity 0 keeps warnings and errors.
	commonlog.Configure(verbosity-1, p)
}

// stdout is where commands print results; tests replace it.
var stdout io.Writer = os.Stdout
