package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the number of labelled windows per label",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open()
			if err != nil {
				return err
			}
			counts, err := s.Stats()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "LABEL\tSAMPLES\n")
			total := 0
			for _, name := range s.Labels().Names() {
				fmt.Fprintf(w, "%s\t%d\n", name, counts[name])
				total += counts[name]
			}
			fmt.Fprintf(w, "total\t%d\n", total)
			return w.Flush()
		},
	}
}

func newFinalizeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "finalize",
		Short: "Merge all shards into the dataset artifact",
		Long: `Concatenates the shards of every image, in image order, into
<output>_X.npy, <output>_Y.npy and <output>_I.npy. A failed finalize leaves
any previous artifact untouched; running it again rebuilds the artifact.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open()
			if err != nil {
				return err
			}
			ds, err := s.Finalize()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d samples written\n", ds.Len())
			fmt.Fprintln(out, ds.PathX)
			fmt.Fprintln(out, ds.PathY)
			fmt.Fprintln(out, ds.PathI)
			return nil
		},
	}
}
