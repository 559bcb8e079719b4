package p2p

// session.go enforces the per-direction sequencing discipline required
// after a successful handshake: sequence numbers strictly increase per
// direction starting at 0, and any violation terminates the session. A
// rate.Limiter throttles inbound frame reads against wall-clock time — this
// is a transport-boundary concern, unlike the VM's block-timestamp-keyed
// syscall limiter in core, which must stay deterministic across replicas.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// ErrSequenceViolation is returned when a received frame's sequence number
// does not strictly increase over the last one seen from that peer, or when
// the first frame received does not carry sequence number 0.
var ErrSequenceViolation = errors.New("p2p: sequence number did not strictly increase")

// ErrSessionClosed is returned by any operation on a session that has
// already been terminated.
var ErrSessionClosed = errors.New("p2p: session closed")

// Session wraps a handshaken connection, tracking the peer's identity and
// enforcing read-side sequencing and rate limiting. Send assigns the
// outbound sequence numbers itself, starting at 0.
type Session struct {
	ID     uuid.UUID
	PeerID []byte // peer's compressed secp256k1 public key, from Handshake

	rw io.ReadWriter

	mu       sync.Mutex
	closed   bool
	lastRecv uint64
	haveRecv bool
	nextSend uint64

	limiter *rate.Limiter
}

// NewSession wraps rw as an established, handshaken session with peerID,
// throttling inbound reads to at most readsPerSecond (bursting up to
// readsPerSecond truncated to an integer, plus one).
func NewSession(rw io.ReadWriter, peerID []byte, readsPerSecond float64) *Session {
	return &Session{
		ID:      uuid.New(),
		PeerID:  append([]byte(nil), peerID...),
		rw:      rw,
		limiter: rate.NewLimiter(rate.Limit(readsPerSecond), int(readsPerSecond)+1),
	}
}

// Send writes a frame with the next strictly-increasing outbound sequence
// number, starting at 0.
func (s *Session) Send(msgType uint32, payload []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	seq := s.nextSend
	s.nextSend++
	s.mu.Unlock()

	return WriteFrame(s.rw, Frame{MsgType: msgType, Seq: seq, Payload: payload})
}

// Recv reads the next frame, enforcing wall-clock throttling and strict
// per-direction sequence monotonicity. Any violation closes the session and
// returns an error; the caller must not call Recv again afterward.
func (s *Session) Recv(ctx context.Context) (Frame, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Frame{}, ErrSessionClosed
	}
	s.mu.Unlock()

	if err := s.limiter.Wait(ctx); err != nil {
		return Frame{}, fmt.Errorf("p2p: rate limit wait: %w", err)
	}

	f, err := ReadFrame(s.rw)
	if err != nil {
		s.Close()
		return Frame{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if (s.haveRecv && f.Seq <= s.lastRecv) || (!s.haveRecv && f.Seq != 0) {
		s.closed = true
		return Frame{}, ErrSequenceViolation
	}
	s.lastRecv = f.Seq
	s.haveRecv = true
	return f, nil
}

// Close marks the session terminated; subsequent Send/Recv calls fail.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Closed reports whether the session has been terminated.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
