package transport

import "io"

// countingReader reports cumulative bytes read to a callback. Used to
// derive direct-upload progress from the multipart body stream.
type countingReader struct {
	r      io.Reader
	read   int64
	report func(int64)
}

func newCountingReader(r io.Reader, report func(int64)) *countingReader {
	return &countingReader{r: r, report: report}
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.read += int64(n)
		if c.report != nil {
			c.report(c.read)
		}
	}
	return n, err
}
