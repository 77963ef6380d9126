package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func extractAll(e *Extractor, chunks ...string) []string {
	var out []string
	for _, c := range chunks {
		for _, r := range e.Extract([]byte(c)) {
			out = append(out, string(r))
		}
	}
	return out
}

func TestExtractorSkipsEmptyLines(t *testing.T) {
	e := &Extractor{}
	records := extractAll(e, "{\"screen_name\"", ":\"user1\"}\r\r\r{", "\"id\":9876}\r\r")
	assert.Equal(t, []string{`{"screen_name":"user1"}`, `{"id":9876}`}, records)
	assert.Equal(t, 0, e.Buffered())
}

func TestExtractorReassemblesSplitRecords(t *testing.T) {
	e := &Extractor{}
	records := extractAll(e, "{\"id\"", ":1234}\r{", "\"id\":9876}")
	assert.Equal(t, []string{`{"id":1234}`}, records)
	assert.Equal(t, len(`{"id":9876}`), e.Buffered())

	// the end of the body terminates the trailing record
	assert.Equal(t, `{"id":9876}`, string(e.Flush()))
	assert.Equal(t, 0, e.Buffered())
	assert.Nil(t, e.Flush())
}

func TestExtractorDelimiterCompletesTrailingRecord(t *testing.T) {
	e := &Extractor{}
	extractAll(e, "{\"id\":9876}")
	assert.Equal(t, []string{`{"id":9876}`}, extractAll(e, "\r"))
	assert.Nil(t, e.Flush())
}

func TestExtractorFlushIgnoresWhitespace(t *testing.T) {
	e := &Extractor{}
	assert.Equal(t, []string{`{"a":1}`}, extractAll(e, "{\"a\":1}\r", "\r\n  "))
	assert.Nil(t, e.Flush())
	assert.Equal(t, 0, e.Buffered())

	extractAll(e, "{\"partial\"")
	e.Reset()
	assert.Nil(t, e.Flush())
}

func TestExtractorManyRecordsInOneChunk(t *testing.T) {
	e := &Extractor{}
	records := extractAll(e, "{\"a\":1}\r\n{\"b\":2}\r\n  \r\n{\"c\":3}\r\n")
	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`, `{"c":3}`}, records)
}

func TestExtractorByteAtATime(t *testing.T) {
	e := &Extractor{}
	input := "{\"id\":1}\r{\"id\":2}\r"
	var chunks []string
	for i := 0; i < len(input); i++ {
		chunks = append(chunks, input[i:i+1])
	}
	assert.Equal(t, []string{`{"id":1}`, `{"id":2}`}, extractAll(e, chunks...))
}

func TestExtractorReturnedRecordsAreIndependent(t *testing.T) {
	e := &Extractor{}
	first := e.Extract([]byte("{\"id\":1}\r{\"id\""))
	e.Extract([]byte(":2}\r"))
	assert.Equal(t, `{"id":1}`, string(first[0]))
}

func TestExtractorReset(t *testing.T) {
	e := &Extractor{}
	assert.Empty(t, e.Extract([]byte("{\"partial\"")))
	assert.NotZero(t, e.Buffered())
	e.Reset()
	assert.Zero(t, e.Buffered())
	assert.Equal(t, []string{`{"id":1}`}, extractAll(e, "{\"id\":1}\r"))
}
