package landmark

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	tablePrefix = "landmarks_"
	tableExt    = ".csv"
)

// ErrNoTables is returned when a session directory holds no landmark table.
var ErrNoTables = errors.New("no landmark tables found")

// Table is one numbered landmark table file of a session.
type Table struct {
	Path    string
	Number  int
	ModTime time.Time
}

func tableName(n int) string {
	return fmt.Sprintf("%s%03d%s", tablePrefix, n, tableExt)
}

func parseTableName(name string) (int, bool) {
	if !strings.HasPrefix(name, tablePrefix) || !strings.HasSuffix(name, tableExt) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, tablePrefix), tableExt))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// ListTables returns the session's numbered tables ordered by number.
// A missing directory is not an error: it simply holds no table.
func ListTables(dir string) ([]Table, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "reading session directory")
	}

	tables := make([]Table, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n, ok := parseTableName(e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, errors.Wrap(err, "stat landmark table")
		}
		tables = append(tables, Table{Path: filepath.Join(dir, e.Name()), Number: n, ModTime: info.ModTime()})
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].Number < tables[j].Number })
	return tables, nil
}

// ReadFrames concatenates every table of the session in table order and returns the flattened
// points (count*3 values per frame) together with the frame count. Timestamps are dropped.
func ReadFrames(dir string, count int) ([]float32, int, error) {
	tables, err := ListTables(dir)
	if err != nil {
		return nil, 0, err
	}
	if len(tables) == 0 {
		return nil, 0, ErrNoTables
	}

	width := count * 3
	var points []float32
	frames := 0
	for _, tbl := range tables {
		n, err := readTable(tbl.Path, width, &points)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "reading %s", filepath.Base(tbl.Path))
		}
		frames += n
	}
	return points, frames, nil
}

func readTable(path string, width int, points *[]float32) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = width + 1
	r.ReuseRecord = true

	rows := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return rows, err
		}
		for _, field := range record[1:] {
			v, err := strconv.ParseFloat(field, 32)
			if err != nil {
				return rows, errors.Wrapf(err, "row %d", rows+1)
			}
			*points = append(*points, float32(v))
		}
		rows++
	}
	return rows, nil
}
