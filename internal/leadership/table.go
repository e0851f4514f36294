package leadership

import "strings"

// Table is a markdown table lifted out of a model answer.
type Table struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// ParseTable returns the first pipe-delimited table in text, or nil when
// there is none. Separator lines are skipped and empty cells are dropped.
func ParseTable(text string) *Table {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(line, "|") && !strings.Contains(line, "---") {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil
	}
	t := &Table{Headers: cells(lines[0]), Rows: make([][]string, 0, len(lines)-1)}
	for _, line := range lines[1:] {
		if row := cells(line); len(row) > 0 {
			t.Rows = append(t.Rows, row)
		}
	}
	return t
}

func cells(line string) []string {
	var out []string
	for _, c := range strings.Split(line, "|") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// Records pairs each row with the headers. Missing trailing cells map to "".
func (t *Table) Records() []map[string]string {
	if t == nil {
		return nil
	}
	out := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]string, len(t.Headers))
		for i, h := range t.Headers {
			if i < len(row) {
				rec[h] = row[i]
			} else {
				rec[h] = ""
			}
		}
		out = append(out, rec)
	}
	return out
}
