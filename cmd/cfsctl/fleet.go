package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	constellationfs "github.com/constellationfs/constellationfs"
)

func fleetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fleet <manifest.yaml>",
		Short: "List the backends declared in a fleet manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgs, err := constellationfs.LoadFleet(args[0])
			if err != nil {
				color.Red("error: %v", err)
				return nil
			}
			if len(cfgs) == 0 {
				fmt.Println("no backends declared")
				return nil
			}

			t := table.NewWriter()
			t.AppendHeader(table.Row{"NAME", "KIND", "USER", "HOST"})
			for name, cfg := range cfgs {
				host := ""
				user := ""
				if cfg.Kind == constellationfs.BackendRemote {
					host = fmt.Sprintf("%s:%d", cfg.Remote.Host, cfg.Remote.Port)
					user = cfg.Remote.UserID
				} else {
					user = cfg.Local.UserID
				}
				t.AppendRow(table.Row{name, string(cfg.Kind), user, host})
			}
			fmt.Println(t.Render())
			return nil
		},
	}
	return cmd
}
