package channel

import "bytes"

// maxPendingLine caps how much of a single unterminated line is held before
// it is forwarded anyway.
const maxPendingLine = 1 << 20

// lineFramer turns arbitrary reads into messages that end on '\n'.
type lineFramer struct {
	pending []byte
	max     int
}

func newLineFramer(max int) *lineFramer {
	return &lineFramer{max: max}
}

// feed appends p and returns every complete line accumulated so far, as one
// message. It returns nil while only a partial line is buffered, unless the
// partial line has reached max bytes.
func (f *lineFramer) feed(p []byte) []byte {
	f.pending = append(f.pending, p...)

	i := bytes.LastIndexByte(f.pending, '\n')
	if i < 0 {
		if len(f.pending) >= f.max {
			return f.flush()
		}
		return nil
	}

	out := bytes.Clone(f.pending[:i+1])
	f.pending = append(f.pending[:0], f.pending[i+1:]...)
	return out
}

// flush returns the buffered partial line, if any.
func (f *lineFramer) flush() []byte {
	out := f.pending
	f.pending = nil
	return out
}
