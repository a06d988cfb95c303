/*
** Copyright (C) 2025 Rochus Keller (me@rochus-keller.ch)
**
** This file is part of the Oberon+ parser/code model project.
**
**
** GNU Lesser General Public License Usage
** This file may be used under the terms of the GNU Lesser
** General Public License version 2.1 or version 3 as published by the Free
** Software Foundation and appearing in the file LICENSE.LGPLv21 and
** LICENSE.LGPLv3 included in the packaging of this file. Please review the
** following information to ensure the GNU Lesser General Public License
** requirements will be met: https://www.gnu.org/licenses/lgpl.html and
** http://www.gnu.org/licenses/old-licenses/lgpl-2.1.html.
 */

// obxdump inspects the Oberon+ code model: it lists the preloaded library
// modules and dumps their declarations as tables.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	Obx "github.com/rochus-keller/Oberon/Golang/Obx"
)

var version = "0.1.0"

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:           "obxdump",
		Short:         "Inspect the Oberon+ code model",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "V", false, "enable debug logging")
	cmd.PersistentFlags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ToLower(name))
	})
	cmd.AddCommand(newModulesCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "obxdump %s\n", version)
		},
	}
}

func newModulesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "modules [name...]",
		Short: "List the preloaded library modules and their declarations",
		RunE: func(cmd *cobra.Command, args []string) error {
			mdl := Obx.NewAstModel()
			oak := Obx.NewOakwood(mdl, nil)

			wanted := map[string]bool{}
			for _, a := range args {
				wanted[a] = true
			}

			found := 0
			for _, mod := range oak.Modules() {
				name := string(mod.Name)
				if len(wanted) > 0 && !wanted[name] {
					continue
				}
				found++
				v := Obx.NewValidator(mdl, oak, false)
				if !v.Validate(mod, nil) {
					for _, e := range v.Errors {
						fmt.Fprintln(cmd.ErrOrStderr(), e.Error())
					}
					return fmt.Errorf("module %s has %d error(s)", name, len(v.Errors))
				}
				slog.Debug("dumping module", "module", name, "decls", len(Obx.DumpDecls(mod)))
				fmt.Fprintln(cmd.OutOrStdout(), headerStyle.Render("MODULE "+name))
				printDecls(cmd, mod)
				fmt.Fprintln(cmd.OutOrStdout())
			}
			if len(wanted) > 0 && found < len(wanted) {
				return fmt.Errorf("unknown module in %v", args)
			}
			return nil
		},
	}
}

func printDecls(cmd *cobra.Command, mod *Obx.Declaration) {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Name", "Kind", "Type", "Visi"})
	for _, row := range Obx.DumpDecls(mod) {
		t.AppendRow(table.Row{row.Name, row.Kind, row.Type, row.Visi})
	}
	t.Render()
}
