package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/diekev/delsace-sub011/server"
)

var (
	serveAddr       string
	serveHealthAddr string
	statusPrune     int
	statusForget    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the check server",
	Long: `Serve CheckService and SessionService over Connect with a CBOR codec,
and the gRPC health protocol on a second port. Addresses default to the
[server] section of kuri.toml.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var lspCmd = &cobra.Command{
	Use:   "lsp",
	Short: "Run the language server on stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject(projectDir)
		if err != nil {
			return err
		}
		defer p.Close()
		return server.NewLSP(p.workspace(p.options(true, 0)), Version).Run()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the health of a running server and the interface cache",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the kuri version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(stdout, "kuri %s\n", Version)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP address for the Connect services")
	serveCmd.Flags().StringVar(&serveHealthAddr, "health-addr", "", "gRPC health address")
	statusCmd.Flags().StringVar(&serveHealthAddr, "health-addr", "", "gRPC health address")
	statusCmd.Flags().IntVar(&statusPrune, "prune", 0, "keep only the newest N cached interfaces of each module")
	statusCmd.Flags().StringVar(&statusForget, "forget", "", "drop every cached interface of a module")
	rootCmd.AddCommand(serveCmd, lspCmd, statusCmd, versionCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	p, err := loadProject(projectDir)
	if err != nil {
		return err
	}
	defer p.Close()

	addr := firstNonEmpty(serveAddr, p.Manifest.Server.Addr)
	healthAddr := firstNonEmpty(serveHealthAddr, p.Manifest.Server.HealthAddr)

	srv := server.New(p.workspace(p.options(true, 0)))
	defer srv.Stop()

	errc := make(chan error, 2)
	go func() { errc <- srv.ListenAndServe(addr) }()
	go func() { errc <- srv.ServeHealth(healthAddr) }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case s := <-sig:
		log.Noticef("received %s, shutting down", s)
		return nil
	case err := <-errc:
		return err
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	st, err := newStyles(stdout, colorMode)
	if err != nil {
		return err
	}
	p, err := loadProject(projectDir)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	healthAddr := firstNonEmpty(serveHealthAddr, p.Manifest.Server.HealthAddr)
	status, err := server.CheckHealth(ctx, healthAddr)
	if err != nil {
		fmt.Fprintf(stdout, "server  %s %s\n", healthAddr, st.Failed.Render("unreachable"))
		log.Debugf("health check: %v", err)
	} else {
		fmt.Fprintf(stdout, "server  %s %s\n", healthAddr, st.OK.Render(status.String()))
	}

	if p.Cache == nil {
		fmt.Fprintf(stdout, "cache   %s\n", st.Muted.Render("disabled"))
		return nil
	}
	if statusForget != "" {
		n, err := p.Cache.Delete(ctx, statusForget)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "cache   forgot %d entries of %s\n", n, statusForget)
	}
	if statusPrune > 0 {
		n, err := p.Cache.Prune(ctx, statusPrune)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "cache   pruned %d entries\n", n)
	}

	stats, err := p.Cache.Statistics(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "cache   %s\n", p.Manifest.CachePath())
	fmt.Fprintf(stdout, "        %d modules, %d entries, %d bytes\n", stats.Modules, stats.Entries, stats.Bytes)

	entries, err := p.Cache.Entries(ctx, "")
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprintf(stdout, "        %-20s %s %s\n", e.Module, e.Fingerprint[:16], st.Muted.Render(e.StoredAt.Format(time.RFC3339)))
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
