// Package httpreq implements the incremental HTTP/1.1 request-line and
// header parser (spec §4.2) and the Request value it produces.
package httpreq

import (
	"bytes"
	"net/url"
	"strconv"

	"qactuar/internal/buffer"
)

// Request holds the parse result for one connection. It is mutable while
// bytes are still arriving and is treated as immutable once BodyComplete
// reports true.
type Request struct {
	ID string

	Method         string
	Version        string // e.g. "HTTP/1.1"
	Path           string // percent-decoded, post route-strip scoped path
	OriginalPath   string // percent-decoded path as parsed, before route-strip
	RawPath        []byte // undecoded path bytes
	QueryString    []byte
	RawHeaders     []buffer.HeaderPair
	Headers        *buffer.Header
	Body           []byte
	HeadersComplete bool

	raw []byte
}

// New returns a zero Request with a stamped request id.
func New(id string) *Request {
	return &Request{ID: id}
}

// Reset clears all parsed fields back to the empty/incomplete state, as the
// pipeline expects after a malformed start-line or header line (spec §4.2:
// "Malformed start-line or header-line leaves the Request reset to empty
// and not-complete").
func (r *Request) Reset() {
	id := r.ID
	*r = Request{ID: id}
}

// VersionNum strips the "HTTP/" prefix from Version, e.g. "HTTP/1.1" -> "1.1",
// for the access log (spec §4.8).
func (r *Request) VersionNum() string {
	return string(bytes.TrimPrefix([]byte(r.Version), []byte("HTTP/")))
}

// Feed offers the full accumulated raw bytes seen so far to the parser. It
// is safe to call repeatedly as more bytes arrive; a malformed start-line
// or header line resets the Request rather than returning an error, per
// spec §4.2.
func (r *Request) Feed(accumulated []byte) {
	r.raw = accumulated

	sep := []byte("\r\n\r\n")
	idx := bytes.Index(accumulated, sep)
	if idx < 0 {
		return
	}

	head := accumulated[:idx]
	body := accumulated[idx+len(sep):]

	if !r.parseHead(head) {
		r.Reset()
		return
	}
	r.HeadersComplete = true
	r.Body = body
}

// parseHead parses the start line plus header block (everything before the
// blank line). It returns false on any malformed line.
func (r *Request) parseHead(head []byte) bool {
	lines := bytes.Split(head, []byte("\r\n"))
	if len(lines) == 0 {
		return false
	}

	startLine := lines[0]
	tokens := bytes.Split(startLine, []byte(" "))
	if len(tokens) != 3 {
		return false
	}

	r.Method = string(tokens[0])
	r.Version = string(tokens[2])

	target := tokens[1]
	pathBytes := target
	var queryBytes []byte
	if qIdx := bytes.IndexByte(target, '?'); qIdx >= 0 {
		pathBytes = target[:qIdx]
		queryBytes = target[qIdx+1:]
	}
	r.RawPath = pathBytes
	r.QueryString = queryBytes

	decoded, err := url.PathUnescape(string(pathBytes))
	if err != nil {
		decoded = string(pathBytes)
	}
	r.Path = decoded
	r.OriginalPath = decoded

	var rawHeaders []buffer.HeaderPair
	for _, line := range lines[1:] {
		if len(line) == 0 {
			continue
		}
		sepIdx := bytes.Index(line, []byte(": "))
		if sepIdx < 0 {
			return false
		}
		name := bytes.ToLower(line[:sepIdx])
		value := line[sepIdx+2:]
		rawHeaders = append(rawHeaders, buffer.HeaderPair{Name: name, Value: value})
	}
	r.RawHeaders = rawHeaders
	r.Headers = buffer.NewHeader(rawHeaders)
	return true
}

// BodyComplete implements the pipeline's body-completion rule (spec §4.2):
// headers complete and (no content-length or method is GET), or
// content-length present and body length equals it.
func (r *Request) BodyComplete() bool {
	if !r.HeadersComplete {
		return false
	}
	cl, hasCL := r.Headers.Get("content-length")
	if !hasCL || r.Method == "GET" {
		return true
	}
	n, err := strconv.Atoi(cl)
	if err != nil {
		return true
	}
	return len(r.Body) == n
}
