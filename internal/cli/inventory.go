package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/robert-malhotra/chunkscan/internal/render"
)

func newInventoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "Browse scans recorded with --record",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List recorded scans, newest first",
		Args:  cobra.NoArgs,
		RunE:  runInventoryList,
	})
	show := &cobra.Command{
		Use:   "show RUN",
		Short: "Show the chunk shapes found by a recorded scan",
		Long: `show prints a recorded scan and the chunk shapes it found, rebuilt from the
inventory without reopening any file. RUN may be an unambiguous prefix of the
run identifier.`,
		Args: cobra.ExactArgs(1),
		RunE: runInventoryShow,
	}
	show.Flags().Bool("csv", false, "Write the shapes as CSV")
	cmd.AddCommand(show)
	return cmd
}

func runInventoryList(cmd *cobra.Command, args []string) error {
	c, err := initContext(cmd)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.openStore(); err != nil {
		return err
	}

	runs, err := c.Store.Runs(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No recorded scans yet")
		return nil
	}
	return render.Runs(cmd.OutOrStdout(), runs)
}

func runInventoryShow(cmd *cobra.Command, args []string) error {
	c, err := initContext(cmd)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.openStore(); err != nil {
		return err
	}

	ctx := cmd.Context()
	run, err := c.Store.Run(ctx, args[0])
	if err != nil {
		return err
	}
	ix, failed, err := c.Store.Index(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("failed to load run %s: %w", run.ID, err)
	}

	out := cmd.OutOrStdout()
	if asCSV, _ := cmd.Flags().GetBool("csv"); asCSV {
		return render.ShapesCSV(out, ix)
	}
	if err := render.Run(out, run); err != nil {
		return err
	}
	fmt.Fprintln(out)
	if err := render.Shapes(out, ix); err != nil {
		return err
	}
	return render.Failures(cmd.ErrOrStderr(), failed)
}
