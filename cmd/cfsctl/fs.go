package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	constellationfs "github.com/constellationfs/constellationfs"
)

func readCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <path>",
		Short: "Print a workspace file's contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, ws, err := workspaceFromFlags()
			if err != nil {
				return err
			}
			defer fs.Destroy()

			content, err := ws.Read(rootCtx(), args[0])
			if err != nil {
				color.Red("error: %v", err)
				return nil
			}
			fmt.Print(content)
			return nil
		},
	}
}

func writeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "write <path> <content>",
		Short: "Overwrite (or create) a workspace file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, ws, err := workspaceFromFlags()
			if err != nil {
				return err
			}
			defer fs.Destroy()

			if err := ws.Write(rootCtx(), args[0], args[1]); err != nil {
				color.Red("error: %v", err)
				return nil
			}
			color.Green("wrote %s", args[0])
			return nil
		},
	}
}

func lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List a workspace directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) == 1 {
				path = args[0]
			}

			fs, ws, err := workspaceFromFlags()
			if err != nil {
				return err
			}
			defer fs.Destroy()

			entries, err := ws.List(rootCtx(), path)
			if err != nil {
				color.Red("error: %v", err)
				return nil
			}

			t := table.NewWriter()
			t.AppendHeader(table.Row{"NAME", "KIND", "SIZE", "MODIFIED"})
			for _, e := range entries {
				t.AppendRow(table.Row{e.Name, kindLabel(e.Kind), e.Size, e.ModifiedAt.Format("2006-01-02 15:04:05")})
			}
			fmt.Println(t.Render())
			return nil
		},
	}
}

func kindLabel(k constellationfs.EntryKind) string {
	switch k {
	case constellationfs.KindDirectory:
		return "dir"
	case constellationfs.KindSymlink:
		return "symlink"
	default:
		return "file"
	}
}
