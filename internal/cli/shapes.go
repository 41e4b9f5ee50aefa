package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/robert-malhotra/chunkscan/internal/aggregate"
	"github.com/robert-malhotra/chunkscan/internal/chunking"
	"github.com/robert-malhotra/chunkscan/internal/render"
)

func newShapesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shapes DIR",
		Short: "List the chunk shapes of each variable and the files using them",
		Args:  cobra.ExactArgs(1),
		RunE:  runShapes,
	}
	addDirFlags(cmd)
	cmd.Flags().Bool("csv", false, "Write CSV instead of a table")
	return cmd
}

func runShapes(cmd *cobra.Command, args []string) error {
	c, err := initContext(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	ix, err := c.scanIndex(cmd, args[0])
	if err != nil {
		return err
	}
	if asCSV, _ := cmd.Flags().GetBool("csv"); asCSV {
		return render.ShapesCSV(cmd.OutOrStdout(), ix)
	}
	return render.Shapes(cmd.OutOrStdout(), ix)
}

func newCommonShapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "common-shape DIR",
		Short: "Compute a chunk shape per variable covering every file",
		Long: `common-shape takes, per variable, the element-wise maximum of the chunk shapes
found in the directory. Variables stored contiguously in every file are reported
as contiguous. Variables whose chunk shapes differ in rank are left out and
reported as errors.`,
		Args: cobra.ExactArgs(1),
		RunE: runCommonShape,
	}
	addDirFlags(cmd)
	return cmd
}

func runCommonShape(cmd *cobra.Command, args []string) error {
	c, err := initContext(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	ix, err := c.scanIndex(cmd, args[0])
	if err != nil {
		return err
	}
	layout, resolveErr := aggregate.Resolve(ix)
	if err := render.CommonLayout(cmd.OutOrStdout(), layout); err != nil {
		return err
	}
	if resolveErr != nil {
		var conflicts []string
		for _, e := range unjoin(resolveErr) {
			var rc *chunking.RankConflictError
			if errors.As(e, &rc) {
				conflicts = append(conflicts, rc.Variable)
			}
			fmt.Fprintln(cmd.ErrOrStderr(), e)
		}
		return fmt.Errorf("no common shape for %d %s", len(conflicts), pluralize(len(conflicts), "variable", "variables"))
	}
	return nil
}

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate DIR",
		Short: "Check that each variable is chunked the same way in every file",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}
	addDirFlags(cmd)
	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	c, err := initContext(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	ix, err := c.scanIndex(cmd, args[0])
	if err != nil {
		return err
	}
	checks := aggregate.Check(ix)
	ok, err := render.Consistency(cmd.OutOrStdout(), checks)
	if err != nil {
		return err
	}
	if !ok {
		n := 0
		for _, chk := range checks {
			if !chk.Consistent {
				n++
			}
		}
		return fmt.Errorf("%d %s not chunked consistently", n, pluralize(n, "variable is", "variables are"))
	}
	return nil
}

// unjoin splits an errors.Join result into its parts.
func unjoin(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
