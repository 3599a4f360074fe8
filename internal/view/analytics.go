package view

import (
	"fmt"
	"io"
	"strings"

	"github.com/franz/prms-console/internal/store"
	"github.com/tidwall/gjson"
)

// Analytics renders a projection exactly as the server computed it. Scalars
// print as sent (no rounding, no derived figures such as growth rates),
// arrays of objects become tables, and nested objects are flattened one level.
func Analytics(w io.Writer, p store.Projection, data store.AnalyticsData, opts Options) {
	fmt.Fprintf(w, "%s (fetched %s)\n", opts.paint("bold", string(p)), Since(data.FetchedAt))
	if data.Empty() {
		fmt.Fprintln(w, "No data.")
		return
	}
	doc := gjson.ParseBytes(data.Raw)
	if !doc.IsObject() {
		renderValue(w, "", doc, opts)
		return
	}
	var scalars [][2]string
	doc.ForEach(func(key, value gjson.Result) bool {
		if isScalar(value) {
			scalars = append(scalars, [2]string{key.String(), scalarText(value)})
			return true
		}
		flushScalars(w, &scalars)
		fmt.Fprintln(w)
		renderValue(w, key.String(), value, opts)
		return true
	})
	flushScalars(w, &scalars)
}

func flushScalars(w io.Writer, scalars *[][2]string) {
	if len(*scalars) == 0 {
		return
	}
	tw := newTable(w)
	for _, kv := range *scalars {
		row(tw, kv[0]+":", kv[1])
	}
	tw.Flush()
	*scalars = nil
}

func renderValue(w io.Writer, name string, v gjson.Result, opts Options) {
	switch {
	case v.IsArray():
		items := v.Array()
		if name != "" {
			fmt.Fprintf(w, "%s (%d)\n", name, len(items))
		}
		if len(items) == 0 {
			return
		}
		if items[0].IsObject() {
			objectTable(w, items, opts)
			return
		}
		for _, it := range items {
			fmt.Fprintf(w, "  %s\n", scalarText(it))
		}
	case v.IsObject():
		if name != "" {
			fmt.Fprintln(w, name)
		}
		tw := newTable(w)
		v.ForEach(func(key, value gjson.Result) bool {
			row(tw, "  "+key.String()+":", scalarText(value))
			return true
		})
		tw.Flush()
	default:
		fmt.Fprintln(w, scalarText(v))
	}
}

// objectTable uses the first object's keys as columns
func objectTable(w io.Writer, items []gjson.Result, opts Options) {
	var cols []string
	items[0].ForEach(func(key, _ gjson.Result) bool {
		cols = append(cols, key.String())
		return true
	})
	shown, hidden := opts.truncated(len(items))

	tw := newTable(w)
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = strings.ToUpper(c)
	}
	row(tw, header...)
	for _, it := range items[:shown] {
		fields := make(map[string]gjson.Result, len(cols))
		it.ForEach(func(key, value gjson.Result) bool {
			fields[key.String()] = value
			return true
		})
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = scalarText(fields[c])
		}
		row(tw, cells...)
	}
	tw.Flush()
	moreRows(w, hidden)
}

func isScalar(v gjson.Result) bool {
	return !v.IsArray() && !v.IsObject()
}

// scalarText returns numbers in the server's own notation and strings unquoted
func scalarText(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return orDash(v.Str)
	case gjson.Null:
		return "-"
	default:
		return v.Raw
	}
}
