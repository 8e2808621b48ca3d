package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/diekev/delsace-sub011/compiler"
	"github.com/diekev/delsace-sub011/compiler/astdump"
	"github.com/diekev/delsace-sub011/compiler/wire"
)

var tokensCmd = &cobra.Command{
	Use:   "tokens <file>",
	Short: "Print the token stream of a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		toks, err := compiler.Tokenize(string(data), 0)
		for _, t := range toks {
			fmt.Fprintf(stdout, "%4d:%-4d %-16s %q\n", t.Line+1, t.Column+1, t.Kind, t.Text)
		}
		if err != nil {
			st, serr := newStyles(stdout, colorMode)
			if serr != nil {
				return serr
			}
			st.printDiagnostics(stdout, err)
			return errDiagnostics
		}
		return nil
	},
}

var astCmd = &cobra.Command{
	Use:   "ast <file>",
	Short: "Dump the validated syntax tree of a file as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, m, err := compileForInspection(args[0])
		if err != nil {
			return err
		}
		out, err := astdump.Marshal(c, m)
		if err != nil {
			return err
		}
		_, err = stdout.Write(out)
		return err
	},
}

var typesCmd = &cobra.Command{
	Use:   "types <file>",
	Short: "List the structures, enums, globals and functions a file declares",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, m, err := compileForInspection(args[0])
		if err != nil {
			return err
		}
		printTypes(c, m)
		return nil
	},
}

var (
	ifaceOutput string
	ifaceVerify string
)

var ifaceCmd = &cobra.Command{
	Use:   "iface <file>",
	Short: "Print or write the CBOR interface of a module",
	Long: `Compile a file and summarize the interface it exposes to importers.

With -o the canonical CBOR encoding is written to a file. With --verify an
encoding previously written is checked against the current source.`,
	Args: cobra.ExactArgs(1),
	RunE: runIface,
}

func init() {
	ifaceCmd.Flags().StringVarP(&ifaceOutput, "output", "o", "", "write the CBOR interface to this file")
	ifaceCmd.Flags().StringVar(&ifaceVerify, "verify", "", "check a CBOR interface file against the source")
	rootCmd.AddCommand(tokensCmd, astCmd, typesCmd, ifaceCmd)
}

// compileForInspection compiles path, printing diagnostics on failure.
func compileForInspection(path string) (*compiler.Context, *compiler.Module, error) {
	st, err := newStyles(stdout, colorMode)
	if err != nil {
		return nil, nil, err
	}
	p, err := loadProject(projectDir)
	if err != nil {
		return nil, nil, err
	}
	defer p.Close()

	c, m, err := p.compileFile(path, p.options(false, 0))
	if err != nil {
		if m == nil {
			return nil, nil, err
		}
		st.printDiagnostics(stdout, err)
		return nil, nil, errDiagnostics
	}
	return c, m, nil
}

func printTypes(c *compiler.Context, m *compiler.Module) {
	tt := c.Types
	for _, s := range c.Structures() {
		if s.Module != m {
			continue
		}
		if s.Enum {
			fmt.Fprintf(stdout, "énum %s\n", s.Name)
			for _, mb := range s.Members {
				fmt.Fprintf(stdout, "\t%s = %d\n", mb.Name, mb.Value)
			}
			continue
		}
		fmt.Fprintf(stdout, "structure %s (%d bytes)\n", s.Name, tt.SizeOf(s.Type))
		for _, mb := range s.Members {
			fmt.Fprintf(stdout, "\t%s : %s\n", mb.Name, tt.Text(mb.Type))
		}
	}

	names := make([]string, 0, len(m.Globals))
	for name := range m.Globals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		g := m.Globals[name]
		kw := "soit"
		if g.Mutable {
			kw = "dyn"
		}
		fmt.Fprintf(stdout, "%s %s : %s\n", kw, g.Name, tt.Text(g.Type))
	}

	fns := m.AllFunctions()
	sort.SliceStable(fns, func(i, j int) bool { return fns[i].Name < fns[j].Name })
	for _, f := range fns {
		fmt.Fprintf(stdout, "fonction %s\n", f.Signature(tt))
	}
}

func runIface(cmd *cobra.Command, args []string) error {
	c, m, err := compileForInspection(args[0])
	if err != nil {
		return err
	}
	iface := wire.FromModule(c, m)

	if ifaceVerify != "" {
		data, err := os.ReadFile(ifaceVerify)
		if err != nil {
			return err
		}
		stored, err := wire.UnmarshalInterface(data)
		if err != nil {
			return err
		}
		if err := wire.Verify(stored, c, m); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s matches %s\n", ifaceVerify, args[0])
		return nil
	}

	if ifaceOutput != "" {
		data, err := wire.MarshalInterface(iface)
		if err != nil {
			return err
		}
		if err := os.WriteFile(ifaceOutput, data, 0o644); err != nil {
			return err
		}
		log.Infof("wrote %d bytes to %s", len(data), ifaceOutput)
	}

	fmt.Fprintf(stdout, "module      %s\n", iface.Module)
	fmt.Fprintf(stdout, "fingerprint %s\n", hex.EncodeToString(iface.Fingerprint[:]))
	fmt.Fprintf(stdout, "source      %s\n", hex.EncodeToString(iface.SourceHash[:]))
	for _, imp := range iface.Imports {
		fmt.Fprintf(stdout, "importe     %s\n", imp)
	}
	fmt.Fprintf(stdout, "%d structures, %d enums, %d globals, %d functions\n",
		len(iface.Structures), len(iface.Enums), len(iface.Globals), len(iface.Functions))
	return nil
}
