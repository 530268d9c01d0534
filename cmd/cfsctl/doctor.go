package main

import (
	"fmt"
	"os/exec"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// requiredCoreutils mirrors internal/backend.requiredUtils — the set
// the local executor's coreutils base assumes is on PATH.
var requiredCoreutils = []string{"ls", "find", "grep", "cat", "wc", "head", "tail", "sort"}

var candidateShells = []string{"bash", "sh"}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check shells, coreutils, and patch availability for the local backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("cfsctl doctor")
			fmt.Println()

			fmt.Println("Shells:")
			for _, s := range candidateShells {
				printProbe(s)
			}
			fmt.Println()

			fmt.Println("Coreutils:")
			t := table.NewWriter()
			t.AppendHeader(table.Row{"TOOL", "STATUS", "PATH"})
			for _, u := range requiredCoreutils {
				path, err := exec.LookPath(u)
				status := "ok"
				if err != nil {
					status = "missing"
					path = ""
				}
				t.AppendRow(table.Row{u, status, path})
			}
			fmt.Println(t.Render())
			fmt.Println()

			fmt.Println("Patch utility (adapter write_file/str_replace patch mode):")
			printProbe("patch")

			return nil
		},
	}
}

func printProbe(cmd string) {
	path, err := exec.LookPath(cmd)
	if err != nil {
		color.Red("  %-8s not found", cmd)
		return
	}
	color.Green("  %-8s %s", cmd, path)
}
