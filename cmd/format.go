package cmd

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/JakeFAU/contactfinder/internal/email"
	"github.com/JakeFAU/contactfinder/internal/extractor"
	"github.com/JakeFAU/contactfinder/internal/leadership"
)

// Output formats accepted by --format.
const (
	formatTable = "table"
	formatCSV   = "csv"
	formatTXT   = "txt"
	formatJSON  = "json"
	formatRaw   = "raw"
)

func checkFormat(format string, allowed ...string) (string, error) {
	f := strings.ToLower(strings.TrimSpace(format))
	for _, a := range allowed {
		if f == a {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown format %q (want %s)", format, strings.Join(allowed, ", "))
}

// writeResult renders res in format. Addresses are always in sorted order.
func writeResult(w io.Writer, res *extractor.Result, format string) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case formatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write([]string{"Email", "Category"}); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
		for _, e := range res.Emails() {
			if err := cw.Write([]string{e.Address, string(e.Category)}); err != nil {
				return fmt.Errorf("write csv: %w", err)
			}
		}
		cw.Flush()
		return cw.Error()
	case formatTXT:
		for _, addr := range res.Addresses() {
			if _, err := fmt.Fprintln(w, addr); err != nil {
				return fmt.Errorf("write txt: %w", err)
			}
		}
		return nil
	default:
		return writeResultTable(w, res)
	}
}

func writeResultTable(w io.Writer, res *extractor.Result) error {
	fmt.Fprintf(w, "%s (%s): %d address(es) in %s\n", res.URL(), res.Mode(), res.Len(), res.Elapsed().Round(time.Millisecond))
	groups := res.ByCategory()
	if res.Len() > 0 {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "\nCATEGORY\tEMAIL\tSAME SITE")
		byAddr := make(map[string]email.Entry, res.Len())
		for _, e := range res.Emails() {
			byAddr[e.Address] = e
		}
		for _, c := range email.Categories() {
			for _, addr := range groups[c] {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", c, addr, yesNo(byAddr[addr].SameSite))
			}
		}
		if err := tw.Flush(); err != nil {
			return fmt.Errorf("write table: %w", err)
		}
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\nSTRATEGY\tSTATUS\tCANDIDATES\tACCEPTED")
	for _, rep := range res.Reports() {
		status := "ok"
		if rep.Failed {
			status = "failed"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", rep.Strategy, status, rep.Candidates, rep.Accepted)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("write table: %w", err)
	}
	for _, d := range res.Diagnostics() {
		prefix := string(d.Kind)
		if d.Strategy != "" {
			prefix = string(d.Strategy) + " " + prefix
		}
		fmt.Fprintf(w, "note: %s: %s\n", prefix, d.Message)
	}
	return nil
}

// writeAnswer renders a leadership answer.
func writeAnswer(w io.Writer, answer leadership.Answer, format string) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			leadership.Answer
			Records []map[string]string `json:"records,omitempty"`
		}{answer, answer.Table.Records()})
	case formatCSV:
		if answer.Table == nil {
			return fmt.Errorf("model %s returned no table", answer.Model)
		}
		cw := csv.NewWriter(w)
		if err := cw.Write(answer.Table.Headers); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
		if err := cw.WriteAll(answer.Table.Rows); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
		return nil
	case formatTable:
		if answer.Table == nil {
			_, err := fmt.Fprintln(w, answer.Raw)
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, strings.ToUpper(strings.Join(answer.Table.Headers, "\t")))
		for _, row := range answer.Table.Rows {
			fmt.Fprintln(tw, strings.Join(row, "\t"))
		}
		return tw.Flush()
	default:
		_, err := fmt.Fprintln(w, answer.Raw)
		return err
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
