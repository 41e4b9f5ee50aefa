package render

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/robert-malhotra/chunkscan/internal/aggregate"
	"github.com/robert-malhotra/chunkscan/internal/chunking"
	"github.com/robert-malhotra/chunkscan/internal/inventory"
)

func names(files chunking.FileSet) string {
	sorted := files.Sorted()
	for i, f := range sorted {
		sorted[i] = Name(f)
	}
	return strings.Join(sorted, ", ")
}

func sortedShapes(shapes map[chunking.ChunkShape]chunking.FileSet) []chunking.ChunkShape {
	out := make([]chunking.ChunkShape, 0, len(shapes))
	for s := range shapes {
		out = append(out, s)
	}
	aggregate.SortShapes(out)
	return out
}

// Shapes prints every variable's chunk shapes and the files showing them.
func Shapes(w io.Writer, ix aggregate.Index) error {
	tw := newTable(w)
	row(tw, "Variable", "Shape", "Count", "Files")
	for _, v := range ix.Variables() {
		for i, s := range ix.Shapes(v) {
			name := v
			if i > 0 {
				name = ""
			}
			files := ix[v][s]
			row(tw, name, s.String(), strconv.Itoa(len(files)), names(files))
		}
	}
	return tw.Flush()
}

// ShapesCSV writes one record per variable and shape. Files are separated
// by semicolons.
func ShapesCSV(w io.Writer, ix aggregate.Index) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Variable", "Shape", "Count", "Files"}); err != nil {
		return err
	}
	for _, v := range ix.Variables() {
		for _, s := range ix.Shapes(v) {
			files := ix[v][s].Sorted()
			for i, f := range files {
				files[i] = Name(f)
			}
			if err := cw.Write([]string{v, s.String(), strconv.Itoa(len(files)), strings.Join(files, ";")}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// CommonLayout prints the resolved shape of each variable.
func CommonLayout(w io.Writer, layout aggregate.CommonLayout) error {
	vars := make([]string, 0, len(layout))
	for v := range layout {
		vars = append(vars, v)
	}
	sort.Strings(vars)

	tw := newTable(w)
	row(tw, "Variable", "Common shape")
	for _, v := range vars {
		row(tw, v, layout[v].String())
	}
	return tw.Flush()
}

// Consistency prints the verdict for each variable and reports whether
// every variable is consistent.
func Consistency(w io.Writer, checks map[string]aggregate.Consistency) (bool, error) {
	vars := make([]string, 0, len(checks))
	for v := range checks {
		vars = append(vars, v)
	}
	sort.Strings(vars)

	all := true
	tw := newTable(w)
	row(tw, "Variable", "Shapes", "Consistent")
	for _, v := range vars {
		c := checks[v]
		var shapes []string
		for _, s := range sortedShapes(c.Shapes) {
			n := len(c.Shapes[s])
			shapes = append(shapes, fmt.Sprintf("%s (%d %s)", s, n, plural(n, "file", "files")))
		}
		verdict := good.Sprint("yes")
		switch {
		case !c.Consistent:
			verdict = bad.Sprint("no")
			all = false
		case c.Unchunked:
			verdict = good.Sprint("yes, unchunked")
		}
		row(tw, v, strings.Join(shapes, "; "), verdict)
	}
	if err := tw.Flush(); err != nil {
		return false, err
	}

	for _, v := range vars {
		c := checks[v]
		if c.Consistent {
			continue
		}
		fmt.Fprintf(w, "\n%s\n", heading.Sprintf("%s:", v))
		for _, s := range sortedShapes(c.Shapes) {
			fmt.Fprintf(w, "  %s: %s\n", s, names(c.Shapes[s]))
		}
	}
	return all, nil
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return NotAvailable
	}
	return fmt.Sprintf("%s (%s)", t.Local().Format(time.DateTime), humanize.Time(t))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Runs lists recorded scan runs.
func Runs(w io.Writer, runs []inventory.Run) error {
	tw := newTable(w)
	row(tw, "Run", "Started", "Finished", "Files", "Failures", "Root", "Pattern")
	for _, r := range runs {
		row(tw, shortID(r.ID), timestamp(r.StartedAt), timestamp(r.FinishedAt),
			strconv.Itoa(r.Files), strconv.Itoa(r.Failures), r.Root, r.Pattern)
	}
	return tw.Flush()
}

// Run prints the header of one recorded run.
func Run(w io.Writer, r inventory.Run) error {
	tw := newTable(w)
	row(tw, "Run", heading.Sprint(r.ID))
	row(tw, "Root", r.Root)
	row(tw, "Pattern", r.Pattern)
	row(tw, "Started", timestamp(r.StartedAt))
	row(tw, "Finished", timestamp(r.FinishedAt))
	row(tw, "Files", strconv.Itoa(r.Files))
	row(tw, "Failures", strconv.Itoa(r.Failures))
	return tw.Flush()
}
