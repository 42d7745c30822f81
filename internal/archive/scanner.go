package archive

import (
	"errors"
	"fmt"
	"io"
)

// EntryScanner 把一个只能前向读取的逻辑字节流转换为按 Start 升序的
// (Entry, 内容) 序列。序列只能消费一次；重新开始意味着重新打开数据源。
//
//	scanner := NewEntryScanner(ix, stream)
//	for scanner.Next() {
//		io.Copy(dst, scanner.Reader())
//	}
//	err := scanner.Err()
type EntryScanner struct {
	src     *countingReader
	entries []Entry
	next    int
	current Entry
	body    *entryReader
	err     error
}

// NewEntryScanner 要求在读取数据之前就已拿到完整 manifest。
func NewEntryScanner(index *Index, logical io.Reader) *EntryScanner {
	return &EntryScanner{
		src:     &countingReader{r: logical},
		entries: index.sorted(),
	}
}

// Next 前进到下一个条目；上一条未读完的剩余字节会被丢弃。
func (s *EntryScanner) Next() bool {
	if s.err != nil {
		return false
	}
	if s.body != nil {
		if _, err := io.Copy(io.Discard, s.body); err != nil {
			s.err = err
			return false
		}
		s.body = nil
	}
	if s.next >= len(s.entries) {
		return false
	}

	entry := s.entries[s.next]
	s.next++
	if entry.Start < s.src.n {
		s.err = corruptf("%s starts at %d, stream already at %d", entry.Path, entry.Start, s.src.n)
		return false
	}
	if gap := entry.Start - s.src.n; gap > 0 {
		if _, err := io.CopyN(io.Discard, s.src, int64(gap)); err != nil {
			s.err = streamError(err, entry.Start-s.src.n)
			return false
		}
	}

	s.current = entry
	s.body = &entryReader{lr: &io.LimitedReader{R: s.src, N: int64(entry.Size())}}
	return true
}

// Entry 返回当前条目。
func (s *EntryScanner) Entry() Entry {
	return s.current
}

// Reader 返回当前条目的内容，仅在下一次 Next 之前有效。
// 数据源提前结束时返回 ErrPartialDownload 而不是 io.EOF。
func (s *EntryScanner) Reader() io.Reader {
	return s.body
}

// Offset 返回已从数据源消费的逻辑字节数。
func (s *EntryScanner) Offset() uint64 {
	return s.src.n
}

// Err 返回迭代终止的原因；正常走完全部条目时为 nil。
func (s *EntryScanner) Err() error {
	return s.err
}

type entryReader struct {
	lr *io.LimitedReader
}

func (r *entryReader) Read(p []byte) (int, error) {
	if r.lr.N <= 0 {
		return 0, io.EOF
	}
	n, err := r.lr.Read(p)
	if err != nil && !(errors.Is(err, io.EOF) && r.lr.N <= 0) {
		err = streamError(err, uint64(r.lr.N))
	}
	return n, err
}

func streamError(err error, missing uint64) error {
	if errors.Is(err, ErrPartialDownload) {
		return err
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: stream ended %d bytes early", ErrPartialDownload, missing)
	}
	return fmt.Errorf("%w: %w", ErrPartialDownload, err)
}

type countingReader struct {
	r io.Reader
	n uint64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += uint64(n)
	return n, err
}
