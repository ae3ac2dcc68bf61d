package serial

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// StreamReader adapts an io.Reader holding a record payload to RecordReader.
type StreamReader struct {
	r        io.Reader
	consumed int64
}

// NewStreamReader wraps r.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{r: r}
}

// ReadRecordData reads up to len(p) bytes. Reaching the end of the payload
// yields a short count, not an error.
func (s *StreamReader) ReadRecordData(p []byte) (int, error) {
	n, err := io.ReadFull(s.r, p)
	s.consumed += int64(n)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return n, nil
	}
	return n, err
}

// Consumed returns the number of payload bytes read so far.
func (s *StreamReader) Consumed() int64 {
	return s.consumed
}

// LoadOrder is a ModLookup over an ordered list of plugin file names.
type LoadOrder []string

// ParseLoadOrder reads one plugin file name per line. Blank lines and lines
// starting with '#' are ignored; a leading '*' (plugins.txt style) is dropped.
func ParseLoadOrder(r io.Reader) (LoadOrder, error) {
	var order LoadOrder
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		order = append(order, strings.TrimPrefix(line, "*"))
	}
	return order, scanner.Err()
}

// LoadedModIndex returns the position of name in the list, compared
// case-insensitively like the game does, or NotLoaded.
func (l LoadOrder) LoadedModIndex(name string) uint8 {
	for i, n := range l {
		if i >= int(NotLoaded) {
			break
		}
		if strings.EqualFold(n, name) {
			return uint8(i)
		}
	}
	return NotLoaded
}
