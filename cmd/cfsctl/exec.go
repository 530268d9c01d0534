package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func execCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exec -- <command>",
		Short: "Run a command inside the workspace",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, ws, err := workspaceFromFlags()
			if err != nil {
				return err
			}
			defer fs.Destroy()

			out, err := ws.Exec(rootCtx(), strings.Join(args, " "))
			if err != nil {
				color.Red("error: %v", err)
				return nil
			}
			fmt.Print(out)
			if !strings.HasSuffix(out, "\n") {
				fmt.Println()
			}
			return nil
		},
	}
}
