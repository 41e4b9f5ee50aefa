package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/robert-malhotra/chunkscan/hdf5"
	"github.com/robert-malhotra/chunkscan/internal/message"
)

var layoutNames = map[message.LayoutClass]string{
	message.LayoutCompact:    "compact",
	message.LayoutContiguous: "contiguous",
	message.LayoutChunked:    "chunked",
	message.LayoutVirtual:    "virtual",
}

var chunkIndexNames = map[message.ChunkIndexType]string{
	message.ChunkIndexBTreeV1:         "v1 B-tree",
	message.ChunkIndexSingle:          "single chunk",
	message.ChunkIndexImplicit:        "implicit",
	message.ChunkIndexFixedArray:      "fixed array",
	message.ChunkIndexExtensibleArray: "extensible array",
	message.ChunkIndexBTreeV2:         "v2 B-tree",
}

func newDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump FILE [OBJECT@ATTRIBUTE]",
		Short: "Print the object tree, storage layouts and attributes of a file",
		Long: `dump walks every group and dataset of an HDF5 file and prints its storage
layout, chunk index and stored chunk count, followed by every attribute value.
Objects or attributes that cannot be read are reported inline and the walk
continues. Given an attribute path such as /temperature@units, only that
attribute is printed.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runDump,
	}
}

func runDump(cmd *cobra.Command, args []string) error {
	f, err := hdf5.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer f.Close()

	out := cmd.OutOrStdout()
	if len(args) == 2 {
		a, err := f.GetAttr(args[1])
		if err != nil {
			return err
		}
		v, err := a.Value()
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[1], err)
		}
		fmt.Fprintf(out, "%s (%s) = %v\n", args[1], a.DtypeName(), v)
		return nil
	}
	fmt.Fprintf(out, "%s (superblock version %d)\n\n", args[0], f.Version())

	err = hdf5.Walk(f.Root(), func(path string, obj any, err error) error {
		indent := strings.Repeat("  ", depth(path))
		if err != nil {
			fmt.Fprintf(out, "%s%s: ERROR %v\n", indent, path, err)
			return nil
		}
		switch o := obj.(type) {
		case *hdf5.Group:
			members, err := o.Members()
			if err != nil {
				fmt.Fprintf(out, "%sgroup %s: ERROR %v\n", indent, path, err)
				return nil
			}
			fmt.Fprintf(out, "%sgroup %s (%d members)\n", indent, path, len(members))
		case *hdf5.Dataset:
			dumpDataset(out, indent, o)
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "\nattributes:")
	return f.WalkAttrs(func(a hdf5.AttrInfo) error {
		switch {
		case a.Attr == nil:
			fmt.Fprintf(out, "  %s: ERROR %v\n", a.ObjectPath, a.Err)
		case a.Err != nil:
			fmt.Fprintf(out, "  %s (%s): ERROR %v\n", a.Path, a.Attr.DtypeName(), a.Err)
		default:
			fmt.Fprintf(out, "  %s (%s) = %v\n", a.Path, a.Attr.DtypeName(), a.Value)
		}
		return nil
	})
}

func depth(path string) int {
	if path == "/" {
		return 0
	}
	return strings.Count(path, "/")
}

func dumpDataset(w io.Writer, indent string, ds *hdf5.Dataset) {
	fmt.Fprintf(w, "%sdataset %s %s %v, %s", indent, ds.Path(), ds.DtypeName(), ds.Shape(), layoutNames[ds.LayoutClass()])
	if ds.IsChunked() {
		fmt.Fprintf(w, " %v, %s index", ds.ChunkDims(), chunkIndexNames[ds.ChunkIndex()])
		if n, err := ds.StoredChunks(); err != nil {
			fmt.Fprintf(w, ", stored chunks: ERROR %v", err)
		} else {
			fmt.Fprintf(w, ", %d stored chunks", n)
		}
	}
	if filters := ds.Filters(); len(filters) > 0 {
		names := make([]string, len(filters))
		for i, f := range filters {
			names[i] = f.Name
		}
		fmt.Fprintf(w, ", filters: %s", strings.Join(names, ", "))
	}
	fmt.Fprintln(w)
}
