package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	constellationfs "github.com/constellationfs/constellationfs"
	"github.com/constellationfs/constellationfs/internal/pool"
)

func poolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Demonstrate backend pooling (C7)",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "demo",
		Short: "Acquire the same backend twice through a shared pool and release both handles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := backendConfigFromFlags()
			if err != nil {
				return err
			}

			p := pool.New()
			fs1, err := constellationfs.NewPooled(cfg, p)
			if err != nil {
				return err
			}
			fs2, err := constellationfs.NewPooled(cfg, p)
			if err != nil {
				fs1.Destroy()
				return err
			}

			fmt.Printf("pool size after two acquires: %d\n", p.Size())

			if err := fs1.Destroy(); err != nil {
				return err
			}
			fmt.Println("released first handle — backend still alive (refcount > 0)")

			if err := fs2.Destroy(); err != nil {
				return err
			}
			color.Green("released second handle — pool size is now %d", p.Size())
			return nil
		},
	})
	return cmd
}
