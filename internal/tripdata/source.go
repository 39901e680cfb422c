// Package tripdata streams trip records from delimited text files.
package tripdata

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/snappy"

	lderrors "github.com/arkilian/tripload/internal/errors"
)

// readBufferSize is the buffered read size for source files.
const readBufferSize = 1 << 20

// Source is a one-pass reader over comma-delimited records.
// It cannot be rewound; open the file again to re-read it.
type Source struct {
	path   string
	file   *os.File
	closer io.Closer // decompressor, if any
	reader *csv.Reader
	line   int
}

// Open opens path for streaming. Files ending in .sz are read as framed
// snappy streams and files ending in .gz as gzip. The caller must Close
// the returned Source.
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, lderrors.NewInputError(lderrors.CodeOpenFailed, "open "+path, err)
	}

	var (
		r      io.Reader = bufio.NewReaderSize(f, readBufferSize)
		closer io.Closer
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".sz":
		r = snappy.NewReader(r)
	case ".gz":
		gz, err := gzip.NewReader(r)
		if err != nil {
			f.Close()
			return nil, lderrors.NewInputError(lderrors.CodeOpenFailed, "gzip header of "+path, err)
		}
		r, closer = gz, gz
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // field counts are checked when records are mapped
	cr.ReuseRecord = false
	cr.LazyQuotes = true // keep bare quotes inside unquoted fields verbatim

	return &Source{
		path:   path,
		file:   f,
		closer: closer,
		reader: cr,
	}, nil
}

// Next returns the fields of the next line, or io.EOF at end of file.
func (s *Source) Next() ([]string, error) {
	fields, err := s.reader.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, lderrors.NewInputError(lderrors.CodeReadFailed,
			fmt.Sprintf("read %s line %d", s.path, s.line+1), err)
	}
	s.line++
	return fields, nil
}

// All yields every remaining line. Iteration stops after the first error.
func (s *Source) All() iter.Seq2[[]string, error] {
	return func(yield func([]string, error) bool) {
		for {
			fields, err := s.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(fields, err) || err != nil {
				return
			}
		}
	}
}

// Line returns the number of lines read so far.
func (s *Source) Line() int { return s.line }

// Path returns the file path.
func (s *Source) Path() string { return s.path }

// Close releases the decompressor and the file handle.
func (s *Source) Close() error {
	var errs []error
	if s.closer != nil {
		errs = append(errs, s.closer.Close())
	}
	errs = append(errs, s.file.Close())
	return errors.Join(errs...)
}
