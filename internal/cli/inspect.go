package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/robert-malhotra/chunkscan/internal/render"
	"github.com/robert-malhotra/chunkscan/internal/scan"
)

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Show the layout of every variable in a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}
	addScanFlags(cmd)
	cmd.Flags().Bool("humanize", false, "Print sizes in IEC units")
	cmd.Flags().Bool("csv", false, "Write CSV instead of a table")
	return cmd
}

func runInspect(cmd *cobra.Command, args []string) error {
	c, err := initContext(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	r := c.extractor().Extract(cmd.Context(), args[0])
	c.Metrics.Observe(r)
	if err := c.writeMetrics(); err != nil {
		return err
	}
	if !r.OK() {
		return r.Err
	}
	c.Logger.Debug("inspected", zap.String("file", r.File), zap.Duration("elapsed", r.Elapsed))

	humanized, _ := cmd.Flags().GetBool("humanize")
	if asCSV, _ := cmd.Flags().GetBool("csv"); asCSV {
		return render.MetadataCSV(cmd.OutOrStdout(), []scan.Result{r}, humanized)
	}
	return render.Metadata(cmd.OutOrStdout(), r, humanized)
}

func newInspectMultipleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect-multiple DIR",
		Short: "Show the variable layouts of every matching file in a directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspectMultiple,
	}
	addDirFlags(cmd)
	cmd.Flags().Bool("humanize", false, "Print sizes in IEC units")
	cmd.Flags().Bool("csv", false, "Write CSV instead of a table")
	cmd.Flags().Bool("long-table", false, "Group rows per file and add dimension names")
	return cmd
}

func runInspectMultiple(cmd *cobra.Command, args []string) error {
	c, err := initContext(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	results, err := c.scanDir(cmd, args[0])
	if err != nil {
		return err
	}

	humanized, _ := cmd.Flags().GetBool("humanize")
	long, _ := cmd.Flags().GetBool("long-table")
	out := cmd.OutOrStdout()
	if asCSV, _ := cmd.Flags().GetBool("csv"); asCSV {
		err = render.MetadataCSV(out, results, humanized)
	} else {
		err = render.MetadataSeries(out, results, humanized, long)
	}
	if err != nil {
		return err
	}
	return render.Failures(cmd.ErrOrStderr(), failures(results))
}
