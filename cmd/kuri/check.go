package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/diekev/delsace-sub011/compiler"
	"github.com/diekev/delsace-sub011/compiler/wire"
	"github.com/diekev/delsace-sub011/server"
)

var (
	checkCollectAll bool
	checkMax        int
	checkRemote     string
)

var checkCmd = &cobra.Command{
	Use:   "check [files...]",
	Short: "Validate modules and report diagnostics",
	Long: `Tokenize, parse and validate each file as a root module, compiling its
imports from the project's source directories and dependencies.

Without files, the manifest's root module is checked. With --remote the
files are sent to a running kuri serve instead.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkCollectAll, "collect-all", false, "report every diagnostic instead of stopping at the first")
	checkCmd.Flags().IntVar(&checkMax, "max", 0, "cap on diagnostics with --collect-all")
	checkCmd.Flags().StringVar(&checkRemote, "remote", "", "check through the server at this address")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	st, err := newStyles(stdout, colorMode)
	if err != nil {
		return err
	}
	p, err := loadProject(projectDir)
	if err != nil {
		return err
	}
	defer p.Close()

	files := args
	if len(files) == 0 {
		if files, err = p.rootFiles(); err != nil {
			return err
		}
	}

	opts := p.options(checkCollectAll, checkMax)
	failed := 0
	for _, path := range files {
		var ok bool
		if checkRemote != "" {
			ok, err = checkRemoteFile(cmd.Context(), st, path)
		} else {
			ok, err = checkFile(cmd.Context(), st, p, path, opts)
		}
		if err != nil {
			return err
		}
		if !ok {
			failed++
		}
	}

	if failed > 0 {
		fmt.Fprintln(stdout, st.Failed.Render(fmt.Sprintf("%d of %d modules failed", failed, len(files))))
		return errDiagnostics
	}
	return nil
}

// checkFile compiles path locally, answering from the cache when the
// module has no imports and its source is unchanged.
func checkFile(ctx context.Context, st *styles, p *project, path string, opts compiler.Options) (bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	c := p.newContext(opts)
	m, err := addFile(c, path)
	if err != nil {
		return false, err
	}

	if p.Cache != nil {
		if iface, err := p.Cache.Lookup(ctx, m.Name, m.Source); err == nil && len(iface.Imports) == 0 {
			log.Debugf("%s: cached interface %x", path, iface.Fingerprint[:8])
			printOK(st, path, iface)
			return true, nil
		}
	}

	if err := c.CompileContext(ctx, m); err != nil {
		st.printDiagnostics(stdout, err)
		return false, nil
	}

	iface := wire.FromModule(c, m)
	if p.Cache != nil {
		if _, err := p.Cache.Put(ctx, iface); err != nil {
			log.Warningf("caching %s: %v", path, err)
		}
	}
	printOK(st, path, iface)
	return true, nil
}

func checkRemoteFile(ctx context.Context, st *styles, path string) (bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}

	client := server.NewCheckClient(&http.Client{Timeout: 30 * time.Second}, baseURL(checkRemote))
	resp, err := client.Check(ctx, &server.CheckRequest{
		Module:     moduleName(path),
		Path:       path,
		Source:     string(data),
		CollectAll: checkCollectAll,
	})
	if err != nil {
		return false, fmt.Errorf("%s: %w", checkRemote, err)
	}

	if !resp.Valid {
		for _, d := range resp.Diagnostics {
			st.printRemoteDiagnostic(stdout, d)
		}
		return false, nil
	}
	printOK(st, path, resp.Interface)
	return true, nil
}

func printOK(st *styles, path string, iface *wire.Interface) {
	fmt.Fprintf(stdout, "%s %s %s\n", st.OK.Render("ok"), path, st.Muted.Render(fmt.Sprintf("%x", iface.Fingerprint[:8])))
}

// baseURL adds a scheme to a host:port address.
func baseURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	return "http://" + addr
}
