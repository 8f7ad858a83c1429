package hrv

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

// Domain is a group of raw features sharing a column prefix and an anomaly pass.
type Domain struct {
	Name     string // anomaly column prefix
	Prefix   string // raw feature column prefix
	Features []string
}

// Domains lists the analytical domains in column order.
var Domains = []Domain{
	{Name: "Time", Prefix: "time_", Features: TimeFeatures},
	{Name: "Freq", Prefix: "freq_", Features: FrequencyFeatures},
	{Name: "Nonlinear", Prefix: "nonlinear_", Features: NonlinearFeatures},
}

// Row is one retained segment. Timestamp is in seconds since the first peak.
type Row struct {
	Segment   int
	Timestamp float64
	Values    []float64
}

// Table holds the segment rows, Values aligned with Columns.
type Table struct {
	Columns []string
	Rows    []Row
}

// FeatureCount returns the number of non-timestamp columns.
func (t Table) FeatureCount() int {
	return len(t.Columns)
}

// RawColumns returns the raw feature column names in order.
func RawColumns() []string {
	var cols []string
	for _, d := range Domains {
		for _, f := range d.Features {
			cols = append(cols, d.Prefix+f)
		}
	}
	return cols
}

// WriteCSV writes the table with a "timestamp" column first.
func (t Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := append([]string{"timestamp"}, t.Columns...)
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "writing header")
	}
	record := make([]string, len(header))
	for _, row := range t.Rows {
		record[0] = strconv.FormatFloat(row.Timestamp, 'f', -1, 64)
		for i, v := range row.Values {
			record[i+1] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrap(err, "writing row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flushing csv")
}
