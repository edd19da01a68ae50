package memaccess

// Kind is the operation a memory request performs.
type Kind uint8

// Request kinds.
const (
	Read Kind = iota
	Write
	ReadExclusive
	WriteInvalidate
	Invalidate
	Prefetch
	Flush
)

func (k Kind) String() string {
	switch k {
	case Read:
		return "read"
	case Write:
		return "write"
	case ReadExclusive:
		return "read_exclusive"
	case WriteInvalidate:
		return "write_invalidate"
	case Invalidate:
		return "invalidate"
	case Prefetch:
		return "prefetch"
	case Flush:
		return "flush"
	}
	return "unknown"
}

// IsRead reports whether the request returns data.
func (k Kind) IsRead() bool {
	return k == Read || k == ReadExclusive || k == Prefetch
}

// IsWrite reports whether the request carries data to memory.
func (k Kind) IsWrite() bool {
	return k == Write || k == WriteInvalidate
}

// RequestID is a stable index into the request arena.
type RequestID int32

// NoRequest is the id of no request.
const NoRequest RequestID = -1

// Request is one memory access. Requests are handed to ports by value; the
// pipeline's arena holds the only authoritative copy.
type Request struct {
	ID   RequestID
	Kind Kind
	Addr uint64
	Size uint32

	// Data is the payload of a write, or the bytes a read returned.
	Data []byte

	// Owner is an opaque tag of the issuer, usually the program-order
	// sequence number of the instruction instance.
	Owner uint64

	// Port is the port the request was routed to, or -1.
	Port int

	IssueCycle      uint64
	CompletionCycle uint64
	Completed       bool
	Success         bool
}

// Latency returns the number of cycles between issue and completion.
func (r *Request) Latency() uint64 {
	return r.CompletionCycle - r.IssueCycle
}

// Response is delivered by a port when a request finishes.
type Response struct {
	ID      RequestID
	Data    []byte
	Success bool

	// Cycle is the cycle in which the response becomes visible to the
	// accelerator.
	Cycle uint64
}

// Port is a memory port provided by the host. A port accepts timing
// requests, completes them later through the completion callback, and
// serves functional requests immediately.
type Port interface {
	// SendTimingRequest offers a request. It returns false if the port
	// cannot accept it this cycle.
	SendTimingRequest(req Request) bool

	// SendFunctional performs the request atomically, without timing.
	SendFunctional(req *Request)

	// IsReady reports whether the port may accept a request this cycle.
	IsReady() bool

	// IsStalled reports whether the port has outstanding requests it
	// cannot make progress on.
	IsStalled() bool

	SetCompletionCallback(fn func(Response))
}

// Router maps an access to the index of the port that serves it, or -1 if
// no port does.
type Router interface {
	Route(addr uint64, size uint32) int
}

// RouterFunc adapts a function to the Router interface.
type RouterFunc func(addr uint64, size uint32) int

// Route calls f.
func (f RouterFunc) Route(addr uint64, size uint32) int {
	return f(addr, size)
}
