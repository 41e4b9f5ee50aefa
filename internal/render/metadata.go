// Package render prints scan results and aggregate views as aligned text
// tables or CSV.
package render

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/robert-malhotra/chunkscan/internal/chunking"
	"github.com/robert-malhotra/chunkscan/internal/scan"
)

// NotAvailable fills cells that have no value.
const NotAvailable = "-"

// Colors are only applied to whole lines and to the last cell of a row,
// where escape codes cannot disturb the column widths.
var (
	heading = color.New(color.Bold)
	good    = color.New(color.FgGreen)
	bad     = color.New(color.FgRed)
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func row(w io.Writer, cells ...string) {
	fmt.Fprintln(w, strings.Join(cells, "\t"))
}

// Name is how a file identifier is displayed.
func Name(file string) string {
	return filepath.Base(file)
}

// Size formats a byte count, as IEC units when humanize is set.
func Size(n int64, humanized bool) string {
	if humanized {
		return humanize.IBytes(uint64(n))
	}
	return strconv.FormatInt(n, 10)
}

func shape(dims []uint64) string {
	if len(dims) == 0 {
		return "scalar"
	}
	parts := make([]string, len(dims))
	for i, d := range dims {
		parts[i] = strconv.FormatUint(d, 10)
	}
	return strings.Join(parts, " x ")
}

func dimensions(dims []chunking.Dimension) string {
	parts := make([]string, len(dims))
	for i, d := range dims {
		parts[i] = fmt.Sprintf("%s=%d", d.Name, d.Size)
		if d.Unlimited {
			parts[i] += " (unlimited)"
		}
	}
	return strings.Join(parts, ", ")
}

func optional[T any](o chunking.Optional[T], format func(T) string) string {
	if !o.Valid {
		return NotAvailable
	}
	return format(o.Value)
}

func float(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// cells returns the per-variable metadata columns in display order.
func cells(f chunking.VariableLayoutFact, humanized bool) []string {
	cache, slots, preemption := NotAvailable, NotAvailable, NotAvailable
	if f.Cache.Available {
		cache = Size(f.Cache.Bytes, humanized)
		slots = strconv.Itoa(f.Cache.Slots)
		preemption = float(f.Cache.Preemption)
	}
	return []string{
		shape(f.Shape),
		f.Chunks.String(),
		cache,
		slots,
		preemption,
		f.Dtype,
		optional(f.Scale, float),
		optional(f.Offset, float),
		f.Compression,
		optional(f.Level, strconv.Itoa),
		strconv.FormatBool(f.Shuffle),
		optional(f.ReadTime, time.Duration.String),
	}
}

var metadataColumns = []string{
	"Shape", "Chunks", "Cache", "Elements", "Preemption", "Type",
	"Scale", "Offset", "Compression", "Level", "Shuffling", "Read time",
}

// Metadata prints the layout of every variable of one file.
func Metadata(w io.Writer, r scan.Result, humanized bool) error {
	tw := newTable(w)
	row(tw, "File name", heading.Sprint(Name(r.File)))
	row(tw, "File size", Size(r.Size, humanized))
	row(tw, "Dimensions", dimensions(r.Dimensions))
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w)

	tw = newTable(w)
	row(tw, append([]string{"Variable"}, metadataColumns...)...)
	for _, f := range r.Facts {
		row(tw, append([]string{f.Name}, cells(f, humanized)...)...)
	}
	return tw.Flush()
}

// MetadataSeries prints the variables of many files in one table. The long
// form groups rows per file and adds the dimension names and Fletcher-32.
func MetadataSeries(w io.Writer, results []scan.Result, humanized, long bool) error {
	tw := newTable(w)
	header := append([]string{"File", "Variable"}, metadataColumns...)
	if long {
		header = append(header, "Fletcher32", "Dimensions")
	}
	row(tw, header...)
	printed := 0
	for _, r := range results {
		if !r.OK() {
			continue
		}
		if long && printed > 0 {
			row(tw, make([]string, len(header))...)
		}
		printed++
		for j, f := range r.Facts {
			file := Name(r.File)
			if long && j > 0 {
				file = ""
			}
			line := append([]string{file, f.Name}, cells(f, humanized)...)
			if long {
				line = append(line, strconv.FormatBool(f.Fletcher32), strings.Join(f.Dimensions, ", "))
			}
			row(tw, line...)
		}
	}
	return tw.Flush()
}

// MetadataCSV writes one record per file and variable.
func MetadataCSV(w io.Writer, results []scan.Result, humanized bool) error {
	cw := csv.NewWriter(w)
	header := append([]string{"File", "File size", "Variable", "Dimensions"}, metadataColumns...)
	header = append(header, "Fletcher32")
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range results {
		if !r.OK() {
			continue
		}
		for _, f := range r.Facts {
			rec := append([]string{Name(r.File), Size(r.Size, humanized), f.Name, strings.Join(f.Dimensions, " ")}, cells(f, humanized)...)
			rec = append(rec, strconv.FormatBool(f.Fletcher32))
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// Failures lists files that could not be scanned.
func Failures(w io.Writer, failed []*scan.ScanError) error {
	if len(failed) == 0 {
		return nil
	}
	fmt.Fprintln(w, bad.Sprintf("%d %s could not be scanned:", len(failed), plural(len(failed), "file", "files")))
	tw := newTable(w)
	for _, e := range failed {
		row(tw, "  "+Name(e.File), chunking.Reason(e.Err), e.Err.Error())
	}
	return tw.Flush()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
