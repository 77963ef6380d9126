package stream

import (
	"bufio"
	"bytes"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	// maxHeaderBytes bounds how much we'll buffer while waiting for the end of
	// the response headers.
	maxHeaderBytes = 1 << 20
	// maxChunkLine bounds a chunk-size or trailer line.
	maxChunkLine = 4096
)

// ResponseParser reads the status line and headers of a streaming response
// and then passes the body through, decoding chunked transfer framing when the
// server uses it. A parser is good for exactly one connection attempt.
type ResponseParser struct {
	head []byte
	done bool

	code   int
	status string
	header http.Header

	chunked bool
	chunks  chunkDecoder
}

// Feed consumes the next bytes read from the connection and returns the body
// bytes contained in data, possibly none. Once HeadersComplete reports true
// every later call is pure body.
func (p *ResponseParser) Feed(data []byte) ([]byte, error) {
	if !p.done {
		p.head = append(p.head, data...)
		end := headerEnd(p.head)
		if end < 0 {
			if len(p.head) > maxHeaderBytes {
				return nil, errors.Wrapf(ErrMalformedResponse, "no end of headers after %d bytes", len(p.head))
			}
			return nil, nil
		}
		if err := p.parseHead(p.head[:end]); err != nil {
			return nil, err
		}
		data = p.head[end:]
		p.head = nil
		p.done = true
	}
	if len(data) == 0 {
		return nil, nil
	}
	if p.chunked {
		return p.chunks.decode(data)
	}
	return data, nil
}

// HeadersComplete reports whether the blank line ending the headers was seen.
func (p *ResponseParser) HeadersComplete() bool {
	return p.done
}

// BodyComplete reports whether a chunked body has seen its last chunk. A body
// without chunked framing only ends when the connection does.
func (p *ResponseParser) BodyComplete() bool {
	return p.chunked && p.chunks.state == chunkDone
}

// Code is the numeric status; zero until headers are complete.
func (p *ResponseParser) Code() int {
	return p.code
}

// Status is the reason phrase that followed the code.
func (p *ResponseParser) Status() string {
	return p.status
}

// Header returns the parsed headers. Lookups through Get are case-insensitive.
func (p *ResponseParser) Header() http.Header {
	return p.header
}

func (p *ResponseParser) parseHead(head []byte) error {
	tp := textproto.NewReader(bufio.NewReader(bytes.NewReader(head)))
	line, err := tp.ReadLine()
	if err != nil {
		return errors.Wrap(ErrMalformedResponse, "reading status line")
	}
	code, status, err := parseStatusLine(line)
	if err != nil {
		return err
	}
	mh, err := tp.ReadMIMEHeader()
	if err != nil {
		return errors.Wrapf(ErrMalformedResponse, "reading headers: %v", err)
	}
	p.code = code
	p.status = status
	p.header = http.Header(mh)
	for _, te := range p.header.Values("Transfer-Encoding") {
		if strings.EqualFold(strings.TrimSpace(te), "chunked") {
			p.chunked = true
		}
	}
	return nil
}

func parseStatusLine(line string) (int, string, error) {
	proto, rest, ok := strings.Cut(line, " ")
	if !ok || !strings.HasPrefix(proto, "HTTP/") {
		return 0, "", errors.Wrapf(ErrMalformedResponse, "bad status line %q", line)
	}
	codeStr, status, _ := strings.Cut(strings.TrimLeft(rest, " "), " ")
	if len(codeStr) != 3 {
		return 0, "", errors.Wrapf(ErrMalformedResponse, "bad status code in %q", line)
	}
	code, err := strconv.Atoi(codeStr)
	if err != nil || code < 100 {
		return 0, "", errors.Wrapf(ErrMalformedResponse, "bad status code in %q", line)
	}
	return code, strings.TrimSpace(status), nil
}

// headerEnd returns the offset just past the blank line that terminates the
// header block, or -1 if it hasn't arrived yet. Bare LF line endings are
// accepted as well as CRLF.
func headerEnd(b []byte) int {
	for i := 0; i < len(b); i++ {
		if b[i] != '\n' {
			continue
		}
		j := i + 1
		if j < len(b) && b[j] == '\r' {
			j++
		}
		if j < len(b) && b[j] == '\n' {
			return j + 1
		}
	}
	return -1
}

type chunkState int

const (
	chunkSize chunkState = iota
	chunkData
	chunkDataEnd
	chunkTrailer
	chunkDone
)

// chunkDecoder removes chunked transfer framing incrementally, so a chunk
// header or its data may be split across any number of reads.
type chunkDecoder struct {
	state     chunkState
	line      []byte
	remaining int64
}

func (c *chunkDecoder) decode(in []byte) ([]byte, error) {
	var out []byte
	for len(in) > 0 {
		switch c.state {
		case chunkSize, chunkTrailer:
			i := bytes.IndexByte(in, '\n')
			if i < 0 {
				c.line = append(c.line, in...)
				if len(c.line) > maxChunkLine {
					return out, errors.Wrap(ErrMalformedResponse, "chunk line too long")
				}
				return out, nil
			}
			c.line = append(c.line, in[:i]...)
			in = in[i+1:]
			line := strings.TrimSpace(string(c.line))
			c.line = c.line[:0]
			if c.state == chunkTrailer {
				if line == "" {
					c.state = chunkDone
				}
				continue
			}
			if line == "" {
				continue
			}
			if semi := strings.IndexByte(line, ';'); semi >= 0 {
				line = strings.TrimSpace(line[:semi])
			}
			n, err := strconv.ParseInt(line, 16, 64)
			if err != nil || n < 0 {
				return out, errors.Wrapf(ErrMalformedResponse, "bad chunk size %q", line)
			}
			if n == 0 {
				c.state = chunkTrailer
			} else {
				c.remaining = n
				c.state = chunkData
			}
		case chunkData:
			n := int64(len(in))
			if n > c.remaining {
				n = c.remaining
			}
			out = append(out, in[:n]...)
			in = in[n:]
			c.remaining -= n
			if c.remaining == 0 {
				c.state = chunkDataEnd
			}
		case chunkDataEnd:
			switch in[0] {
			case '\r':
			case '\n':
				c.state = chunkSize
			default:
				return out, errors.Wrap(ErrMalformedResponse, "missing CRLF after chunk data")
			}
			in = in[1:]
		case chunkDone:
			// the body is over; anything after the last chunk is ignored
			return out, nil
		}
	}
	return out, nil
}
