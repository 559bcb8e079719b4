package p2p

// handshake.go implements the session-establishment exchange: both sides
// send HELLO{version, network_id, nonce}, each replies with
// CHALLENGE{pubkey, signature over the peer's nonce}, and mutual signature
// verification gates a HANDSHAKE_OK. Uses the same secp256k1 stack as the
// rest of the node's signing surface.

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// ProtocolVersion is the framing/handshake version this package implements.
const ProtocolVersion uint32 = 1

// ErrVersionMismatch is returned when a peer's HELLO carries an
// incompatible protocol version.
var ErrVersionMismatch = errors.New("p2p: protocol version mismatch")

// ErrNetworkMismatch is returned when a peer's HELLO carries a different
// network id.
var ErrNetworkMismatch = errors.New("p2p: network id mismatch")

// ErrHandshakeFailed is returned when challenge signature verification
// fails on either side.
var ErrHandshakeFailed = errors.New("p2p: handshake signature verification failed")

// Hello is the first message exchanged by both sides of a new session.
type Hello struct {
	Version   uint32
	NetworkID uint32
	Nonce     [32]byte
}

func (h Hello) encode() []byte {
	buf := make([]byte, 4+4+32)
	binary.BigEndian.PutUint32(buf[0:4], h.Version)
	binary.BigEndian.PutUint32(buf[4:8], h.NetworkID)
	copy(buf[8:40], h.Nonce[:])
	return buf
}

func decodeHello(b []byte) (Hello, error) {
	if len(b) != 40 {
		return Hello{}, fmt.Errorf("p2p: malformed HELLO (%d bytes)", len(b))
	}
	var h Hello
	h.Version = binary.BigEndian.Uint32(b[0:4])
	h.NetworkID = binary.BigEndian.Uint32(b[4:8])
	copy(h.Nonce[:], b[8:40])
	return h, nil
}

// Challenge carries a peer's identity and its signature over the other
// side's HELLO nonce.
type Challenge struct {
	PubKey    [33]byte
	Signature [64]byte
}

func (c Challenge) encode() []byte {
	buf := make([]byte, 33+64)
	copy(buf[0:33], c.PubKey[:])
	copy(buf[33:97], c.Signature[:])
	return buf
}

func decodeChallenge(b []byte) (Challenge, error) {
	if len(b) != 97 {
		return Challenge{}, fmt.Errorf("p2p: malformed CHALLENGE (%d bytes)", len(b))
	}
	var c Challenge
	copy(c.PubKey[:], b[0:33])
	copy(c.Signature[:], b[33:97])
	return c, nil
}

func newNonce() ([32]byte, error) {
	var n [32]byte
	_, err := rand.Read(n[:])
	return n, err
}

func signNonce(priv *btcec.PrivateKey, nonce [32]byte) ([64]byte, error) {
	digest := sha256.Sum256(nonce[:])
	sig := ecdsa.Sign(priv, digest[:])
	r := sig.R()
	s := sig.S()
	if s.IsOverHalfOrder() {
		s.Negate()
	}
	var out [64]byte
	rb := r.Bytes()
	sb := s.Bytes()
	copy(out[0:32], rb[:])
	copy(out[32:64], sb[:])
	return out, nil
}

func verifyNonceSignature(pubKeyCompressed [33]byte, nonce [32]byte, sig [64]byte) bool {
	pub, err := btcec.ParsePubKey(pubKeyCompressed[:])
	if err != nil {
		return false
	}
	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(sig[0:32]); overflow {
		return false
	}
	if overflow := s.SetByteSlice(sig[32:64]); overflow {
		return false
	}
	if s.IsOverHalfOrder() {
		return false
	}
	digest := sha256.Sum256(nonce[:])
	return ecdsa.NewSignature(&r, &s).Verify(digest[:], pub)
}

// Handshake carries out the mutual HELLO/CHALLENGE/HANDSHAKE_OK exchange
// over an already-connected transport, acting symmetrically on both sides.
// It returns the verified peer's compressed public key.
func Handshake(rw io.ReadWriter, priv *btcec.PrivateKey, networkID uint32) ([]byte, error) {
	ourNonce, err := newNonce()
	if err != nil {
		return nil, fmt.Errorf("p2p: generate nonce: %w", err)
	}
	ourHello := Hello{Version: ProtocolVersion, NetworkID: networkID, Nonce: ourNonce}
	if err := WriteFrame(rw, Frame{MsgType: MsgHello, Seq: 0, Payload: ourHello.encode()}); err != nil {
		return nil, err
	}

	helloFrame, err := ReadFrame(rw)
	if err != nil {
		return nil, err
	}
	if helloFrame.MsgType != MsgHello {
		return nil, fmt.Errorf("p2p: expected HELLO, got msg_type %d", helloFrame.MsgType)
	}
	peerHello, err := decodeHello(helloFrame.Payload)
	if err != nil {
		return nil, err
	}
	if peerHello.Version != ProtocolVersion {
		return nil, ErrVersionMismatch
	}
	if peerHello.NetworkID != networkID {
		return nil, ErrNetworkMismatch
	}

	ourSig, err := signNonce(priv, peerHello.Nonce)
	if err != nil {
		return nil, err
	}
	var ourPub [33]byte
	copy(ourPub[:], priv.PubKey().SerializeCompressed())
	ourChallenge := Challenge{PubKey: ourPub, Signature: ourSig}
	if err := WriteFrame(rw, Frame{MsgType: MsgChallenge, Seq: 1, Payload: ourChallenge.encode()}); err != nil {
		return nil, err
	}

	challengeFrame, err := ReadFrame(rw)
	if err != nil {
		return nil, err
	}
	if challengeFrame.MsgType != MsgChallenge {
		return nil, fmt.Errorf("p2p: expected CHALLENGE, got msg_type %d", challengeFrame.MsgType)
	}
	peerChallenge, err := decodeChallenge(challengeFrame.Payload)
	if err != nil {
		return nil, err
	}
	if !verifyNonceSignature(peerChallenge.PubKey, ourNonce, peerChallenge.Signature) {
		return nil, ErrHandshakeFailed
	}

	if err := WriteFrame(rw, Frame{MsgType: MsgHandshakeOK, Seq: 2}); err != nil {
		return nil, err
	}
	okFrame, err := ReadFrame(rw)
	if err != nil {
		return nil, err
	}
	if okFrame.MsgType != MsgHandshakeOK {
		return nil, fmt.Errorf("p2p: expected HANDSHAKE_OK, got msg_type %d", okFrame.MsgType)
	}

	return peerChallenge.PubKey[:], nil
}
