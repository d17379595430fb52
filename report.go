// Package main (report.go) :
// These methods print per-file results and the summary of a run.
package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tanaikech/gdmirror/mirror"
)

// reporter : Print one line per processed file.
type reporter struct {
	w    io.Writer
	root string
}

// Report : Callback for mirror.Options.Report.
func (r *reporter) Report(res mirror.Result) {
	fmt.Fprintln(r.w, r.line(res))
}

func (r *reporter) line(res mirror.Result) string {
	path := res.Path
	if rel, err := filepath.Rel(r.root, res.Path); err == nil && res.Path != "" {
		path = rel
	}
	switch res.Status {
	case mirror.StatusSaved:
		return fmt.Sprintf("Saved '%s' to %s (%d bytes)", res.Item.Name, path, res.Bytes)
	case mirror.StatusSkipped:
		return fmt.Sprintf("Skipped '%s' because %s is existing.", res.Item.Name, path)
	case mirror.StatusLinked:
		return fmt.Sprintf("Linked '%s' in %s", res.Item.Name, path)
	case mirror.StatusFiltered:
		return fmt.Sprintf("Filtered '%s' (mimeType: %s)", res.Item.Name, res.Item.MimeType)
	default:
		return fmt.Sprintf("!! Failed %s: %v", res.Item, res.Err)
	}
}

// summaryMsg : Summary table of a run.
func summaryMsg(sum *mirror.Summary, root string) string {
	st := [][]string{
		{"Local directory", root},
		{"Folders", strconv.Itoa(sum.Folders)},
		{"Saved files", strconv.Itoa(sum.Saved)},
		{"Skipped files", strconv.Itoa(sum.Skipped)},
		{"Link files", strconv.Itoa(sum.Linked)},
	}
	if sum.Filtered > 0 {
		st = append(st, []string{"Filtered files", strconv.Itoa(sum.Filtered)})
	}
	st = append(st,
		[]string{"Failed", strconv.Itoa(sum.Failed)},
		[]string{"Downloaded [bytes]", strconv.FormatInt(sum.Bytes, 10)},
	)
	return getMsg(setIndent(st, 0), " : ")
}

// setIndent : Set indent of each element using the maximum length of element.
// st is 2 dimensional array including values.
// k is the index of each element for setting indent.
func setIndent(st [][]string, k int) [][]string {
	maxLen := 0
	for _, e := range st {
		if len(e[k]) > maxLen {
			maxLen = len(e[k])
		}
	}
	for i, e := range st {
		st[i][k] = e[k] + strings.Repeat(" ", maxLen-len(e[k]))
	}
	return st
}

// getMsg : Convert 2D array to string using delimiter.
func getMsg(st [][]string, delim string) string {
	temp := make([]string, 0, len(st))
	for _, e := range st {
		temp = append(temp, strings.Join(e, delim))
	}
	return strings.Join(temp, "\n")
}
