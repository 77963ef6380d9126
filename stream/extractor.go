package stream

import "bytes"

// RecordDelimiter separates records in the streaming body. Runs of delimiters
// are treated as blank lines and skipped.
const RecordDelimiter = '\r'

// Extractor carves a continuous byte stream into records. Chunks may split a
// record anywhere, and a single chunk may carry several records.
//
// An Extractor belongs to one connection attempt and is not safe for
// concurrent use.
type Extractor struct {
	buf []byte
}

// Extract appends chunk to the buffered partial record and returns every
// record completed by it, in arrival order. The returned slices are owned by
// the caller. Whatever follows the last delimiter stays buffered.
func (e *Extractor) Extract(chunk []byte) [][]byte {
	e.buf = append(e.buf, chunk...)

	var records [][]byte
	for {
		i := bytes.IndexByte(e.buf, RecordDelimiter)
		if i < 0 {
			break
		}
		record := bytes.TrimSpace(e.buf[:i])
		if len(record) > 0 {
			records = append(records, bytes.Clone(record))
		}
		e.buf = e.buf[i+1:]
	}

	// don't let the backing array grow without bound on a long-lived stream
	if len(e.buf) == 0 {
		e.buf = e.buf[:0:0]
	} else if cap(e.buf) > 2*len(e.buf)+4096 {
		e.buf = bytes.Clone(e.buf)
	}
	return records
}

// Buffered returns the size of the incomplete record waiting for its delimiter.
func (e *Extractor) Buffered() int {
	return len(e.buf)
}

// Flush returns the buffered record, trimmed, and empties the buffer. It's
// used when the body ends, which terminates the last record as a delimiter
// would. It returns nil when nothing but whitespace was buffered.
func (e *Extractor) Flush() []byte {
	record := bytes.TrimSpace(e.buf)
	e.buf = nil
	if len(record) == 0 {
		return nil
	}
	return bytes.Clone(record)
}

// Reset discards any buffered partial record.
func (e *Extractor) Reset() {
	e.buf = nil
}
