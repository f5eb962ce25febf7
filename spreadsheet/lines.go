package spreadsheet

import (
	"bufio"
	"bytes"
	"io"
	"iter"
	"sort"
	"strings"
)

// maxLineSize bounds a single physical line. Uploads are capped well below.
const maxLineSize = 4 * 1024 * 1024

// Lines yields the physical lines of r. "\n", "\r" and "\r\n" each end a
// line and may be mixed in one input; a trailing terminator does not
// produce an extra empty line. The sequence is single-pass.
func Lines(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		src := &stickyReader{r: r}
		sc := bufio.NewScanner(src)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		sc.Split(func(data []byte, atEOF bool) (int, []byte, error) {
			// A read error must not surface the bytes before it as a
			// final line.
			if atEOF && src.err != nil {
				return 0, nil, src.err
			}
			return scanAnyLines(data, atEOF)
		})
		for sc.Scan() {
			if !yield(sc.Text(), nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield("", err)
		}
	}
}

// stickyReader remembers the first read error other than io.EOF.
type stickyReader struct {
	r   io.Reader
	err error
}

func (s *stickyReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF && s.err == nil {
		s.err = err
	}
	return n, err
}

// scanAnyLines is a bufio.SplitFunc that accepts all three line terminators.
func scanAnyLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		if atEOF {
			return i + 1, data[:i], nil
		}
		// Lone '\r' at the end of the buffer: wait to see if '\n' follows.
		return 0, nil, nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// WithoutCommentLines drops lines whose first character is '#'.
func WithoutCommentLines(lines iter.Seq2[string, error]) iter.Seq2[string, error] {
	var idx lineIndex
	return idx.withoutComments(lines)
}

// lineIndex maps line numbers of a comment-free stream back to physical
// lines. drops holds, for each dropped comment, how many lines had been
// kept before it.
type lineIndex struct {
	kept  int
	drops []int
}

func (x *lineIndex) withoutComments(lines iter.Seq2[string, error]) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for line, err := range lines {
			if err == nil && strings.HasPrefix(line, "#") {
				x.drops = append(x.drops, x.kept)
				continue
			}
			x.kept++
			if !yield(line, err) {
				return
			}
		}
	}
}

// physical returns the 1-based physical line of kept line n.
func (x *lineIndex) physical(n int) int {
	return n + sort.SearchInts(x.drops, n)
}

// lineReader turns a line sequence back into a stream, each line ended by
// "\n", so encoding/csv sees uniform terminators.
type lineReader struct {
	next func() (string, error, bool)
	stop func()
	buf  []byte
	err  error
}

func newLineReader(lines iter.Seq2[string, error]) *lineReader {
	next, stop := iter.Pull2(lines)
	return &lineReader{next: next, stop: stop}
}

func (lr *lineReader) Read(p []byte) (int, error) {
	for len(lr.buf) == 0 {
		if lr.err != nil {
			return 0, lr.err
		}
		line, err, ok := lr.next()
		switch {
		case !ok:
			lr.err = io.EOF
		case err != nil:
			lr.err = err
		default:
			lr.buf = append(lr.buf[:0], line...)
			lr.buf = append(lr.buf, '\n')
		}
	}
	n := copy(p, lr.buf)
	lr.buf = lr.buf[n:]
	return n, nil
}

// Close releases the underlying pull iterator.
func (lr *lineReader) Close() error {
	lr.stop()
	return nil
}
