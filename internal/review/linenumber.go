package review

import (
	"encoding/json"
	"strconv"
	"strings"
)

// LineNumber tolerates the model answering with a number, a numeric
// string, or "all" for findings that apply to the whole file.
type LineNumber struct {
	Value int
	All   bool
}

func (l *LineNumber) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		l.Value = n
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Unparseable line info is not worth failing a review over.
		*l = LineNumber{}
		return nil
	}

	if strings.EqualFold(strings.TrimSpace(s), "all") {
		l.All = true
		return nil
	}
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		l.Value = n
	}
	return nil
}

func (l LineNumber) MarshalJSON() ([]byte, error) {
	if l.All {
		return json.Marshal("all")
	}
	return json.Marshal(l.Value)
}

// Display renders the line number for reports.
func (l LineNumber) Display() string {
	if l.All {
		return "Throughout file"
	}
	if l.Value <= 0 {
		return "N/A"
	}
	return strconv.Itoa(l.Value)
}
