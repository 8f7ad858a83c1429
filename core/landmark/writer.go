package landmark

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
)

// WriterOptions configure a TableWriter.
type WriterOptions struct {
	Landmarks     int
	ChunkSize     int // rows buffered before an append
	ChunksPerFile int // appends before rotating to the next table
}

// TableWriter buffers frames and appends them in chunks to numbered table files.
// It is not safe for concurrent use: a session has exactly one writer.
type TableWriter struct {
	dir  string
	opts WriterOptions

	buf           [][]string
	fileNumber    int
	chunksInFile  int
	framesWritten int
}

// NewTableWriter prepares a writer for the session directory. Writing resumes after the
// highest existing table, so a reconnecting client never interleaves with older rows.
func NewTableWriter(dir string, opts WriterOptions) (*TableWriter, error) {
	if opts.ChunkSize < 1 || opts.ChunksPerFile < 1 || opts.Landmarks < 1 {
		return nil, errors.New("landmark writer: invalid options")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating session directory")
	}
	tables, err := ListTables(dir)
	if err != nil {
		return nil, err
	}
	next := 1
	if len(tables) > 0 {
		next = tables[len(tables)-1].Number + 1
	}
	return &TableWriter{
		dir:        dir,
		opts:       opts,
		buf:        make([][]string, 0, opts.ChunkSize),
		fileNumber: next,
	}, nil
}

// Append buffers one frame and flushes a full chunk to disk.
func (w *TableWriter) Append(frame Frame) error {
	if len(frame.Points) != w.opts.Landmarks*3 {
		return errors.Wrapf(ErrLandmarkCount, "got %d values", len(frame.Points))
	}
	row := make([]string, 0, len(frame.Points)+1)
	row = append(row, strconv.FormatFloat(frame.Timestamp, 'f', -1, 64))
	for _, v := range frame.Points {
		row = append(row, strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	w.buf = append(w.buf, row)

	if len(w.buf) >= w.opts.ChunkSize {
		return w.writeChunk()
	}
	return nil
}

// Flush writes any buffered rows to the current table.
func (w *TableWriter) Flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	return w.writeChunk()
}

// Buffered returns the number of rows not yet on disk.
func (w *TableWriter) Buffered() int {
	return len(w.buf)
}

// FramesWritten returns the number of rows appended to disk so far.
func (w *TableWriter) FramesWritten() int {
	return w.framesWritten
}

// CurrentTable returns the path of the table receiving the next chunk.
func (w *TableWriter) CurrentTable() string {
	return filepath.Join(w.dir, tableName(w.fileNumber))
}

func (w *TableWriter) writeChunk() error {
	f, err := os.OpenFile(w.CurrentTable(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "opening landmark table")
	}
	cw := csv.NewWriter(f)
	if err = cw.WriteAll(w.buf); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "appending landmark chunk")
	}
	if err = f.Close(); err != nil {
		return errors.Wrap(err, "closing landmark table")
	}

	w.framesWritten += len(w.buf)
	w.buf = w.buf[:0]
	w.chunksInFile++
	if w.chunksInFile >= w.opts.ChunksPerFile {
		w.fileNumber++
		w.chunksInFile = 0
	}
	return nil
}
