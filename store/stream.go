package store

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/kksharma1618/mediaserver/dlna"
)

type fileStream struct {
	*os.File
	left int64
}

// OpenFile opens path positioned at br.Start.
func OpenFile(path string, br dlna.ByteRange) (Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	start := br.Start
	if start > fi.Size() {
		start = fi.Size()
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("seeking %s: %w", path, err)
	}
	return &fileStream{File: f, left: fi.Size() - start}, nil
}

func (s *fileStream) Read(p []byte) (int, error) {
	n, err := s.File.Read(p)
	s.left -= int64(n)
	return n, err
}

func (s *fileStream) Available() int64 {
	if s.left < 0 {
		return 0
	}
	return s.left
}

type bytesStream struct {
	*bytes.Reader
}

// BytesStream serves b from br.Start.
func BytesStream(b []byte, br dlna.ByteRange) Stream {
	r := bytes.NewReader(b)
	start := min(br.Start, int64(len(b)))
	r.Seek(start, io.SeekStart)
	return bytesStream{r}
}

func (s bytesStream) Available() int64 {
	return int64(s.Len())
}

func (bytesStream) Close() error {
	return nil
}

type readerStream struct {
	io.ReadCloser
	available int64
}

// ReaderStream adapts a body of known remaining length, or -1.
func ReaderStream(rc io.ReadCloser, available int64) Stream {
	return &readerStream{ReadCloser: rc, available: available}
}

func (s *readerStream) Read(p []byte) (int, error) {
	n, err := s.ReadCloser.Read(p)
	if s.available > 0 {
		s.available = max(s.available-int64(n), 0)
	}
	return n, err
}

func (s *readerStream) Available() int64 {
	return s.available
}
