// Package wire implements the on-wire message format shared by every
// hashdir server and client: a 3-byte header followed by zero or more
// tagged, length-prefixed blocks.
//
// Header:  type:u8 | length:u16-LE (total size, header included)
// Block:   tag:u8  | length:u16-LE | payload
//
// The codec is deliberately lenient when parsing: datagrams arrive over
// an unreliable transport, and a malformed or truncated message is
// dropped by the caller, never treated as fatal.
package wire

import (
	"encoding/binary"
	"errors"
)

// Message types.
const (
	TypeGet        byte = 'g'
	TypePut        byte = 'p'
	TypeReply      byte = 'r'
	TypeNewServer  byte = 'n'
	TypeFinish     byte = 'f'
	TypeKeepAlive  byte = 'k'
	TypeAlive      byte = 'a'
	TypeDisconnect byte = 'd'
	TypeTransfer   byte = 't'
)

// Block tags.
const (
	TagHash    byte = 'h'
	TagAddress byte = 'a'
	TagServer  byte = 's'
)

const (
	// HeaderSize is the number of bytes in a message header.
	HeaderSize = 3
	// blockHeaderSize is the number of bytes in a block header.
	blockHeaderSize = 3
	// MaxMessageSize is the largest message, header included, the wire
	// format can represent (the header's length field is 16 bits).
	MaxMessageSize = 65535
)

// ErrMessageTooLarge is returned by Append when the resulting message
// would exceed MaxMessageSize.
var ErrMessageTooLarge = errors.New("wire: message too large")

// ErrMalformedMessage is returned by Parse when data is too short to
// even hold a header.
var ErrMalformedMessage = errors.New("wire: malformed message")

// Builder accumulates blocks into a message buffer. The zero value is
// not usable; create one with NewBuilder.
type Builder struct {
	buf []byte
}

// NewBuilder starts a new, empty message of the given type.
func NewBuilder(msgType byte) *Builder {
	buf := make([]byte, HeaderSize, 64)
	buf[0] = msgType
	return &Builder{buf: buf}
}

// Append extends the message with one tagged block. It fails without
// mutating the builder further when the resulting message would exceed
// MaxMessageSize.
func (b *Builder) Append(tag byte, payload []byte) error {
	if len(b.buf)+blockHeaderSize+len(payload) > MaxMessageSize {
		return ErrMessageTooLarge
	}
	var hdr [blockHeaderSize]byte
	hdr[0] = tag
	binary.LittleEndian.PutUint16(hdr[1:3], uint16(len(payload)))
	b.buf = append(b.buf, hdr[:]...)
	b.buf = append(b.buf, payload...)
	return nil
}

// Len reports the current size of the message, header included.
func (b *Builder) Len() int {
	return len(b.buf)
}

// Finalize writes the total message length into the header and returns
// the completed on-wire buffer. The builder must not be reused after
// Finalize beyond further reads of the returned slice.
func (b *Builder) Finalize() []byte {
	binary.LittleEndian.PutUint16(b.buf[1:3], uint16(len(b.buf)))
	return b.buf
}

// Block is one parsed (tag, payload) pair.
type Block struct {
	Tag     byte
	Payload []byte
}

// Message is a parsed message: a type byte plus the raw bytes of its
// block section, ready for iteration.
type Message struct {
	Type byte
	body []byte
}

// Parse reads a message header from data and bounds the block section to
// the declared length. It never reads past the declared length, and a
// declared length that exceeds the buffer yields a message with no
// iterable blocks rather than an error — the wire is unreliable and a
// short read is routine, not exceptional.
func Parse(data []byte) (*Message, error) {
	if len(data) < HeaderSize {
		return nil, ErrMalformedMessage
	}
	declared := int(binary.LittleEndian.Uint16(data[1:3]))
	if declared > len(data) || declared < HeaderSize {
		return &Message{Type: data[0]}, nil
	}
	return &Message{Type: data[0], body: data[HeaderSize:declared]}, nil
}

// BlockIterator walks the blocks of one Message. It is bound to that
// message's bytes and carries its own cursor, so nested or concurrent
// iteration over distinct messages never interferes.
type BlockIterator struct {
	data []byte
	pos  int
}

// Blocks returns a fresh iterator over every block in m, in the order
// they were appended.
func (m *Message) Blocks() *BlockIterator {
	return &BlockIterator{data: m.body}
}

// Next returns the next block and true, or a zero Block and false once
// iteration is exhausted. A truncated block header silently ends
// iteration; a block whose declared length would run past the end of
// the message is skipped and ends iteration the same way, since there is
// no way to resynchronise to a later block's header.
func (it *BlockIterator) Next() (Block, bool) {
	if it.pos+blockHeaderSize > len(it.data) {
		return Block{}, false
	}
	tag := it.data[it.pos]
	length := int(binary.LittleEndian.Uint16(it.data[it.pos+1 : it.pos+3]))
	start := it.pos + blockHeaderSize
	end := start + length
	if end > len(it.data) {
		return Block{}, false
	}
	it.pos = end
	return Block{Tag: tag, Payload: it.data[start:end]}, true
}

// TagIterator filters a BlockIterator down to blocks of one tag.
type TagIterator struct {
	it  *BlockIterator
	tag byte
}

// Iterate returns an iterator over the payloads of blocks matching tag,
// in insertion order. It is finite and single-pass.
func (m *Message) Iterate(tag byte) *TagIterator {
	return &TagIterator{it: m.Blocks(), tag: tag}
}

// Next returns the next matching payload and true, or nil and false once
// exhausted.
func (ti *TagIterator) Next() ([]byte, bool) {
	for {
		blk, ok := ti.it.Next()
		if !ok {
			return nil, false
		}
		if blk.Tag == ti.tag {
			return blk.Payload, true
		}
	}
}

// First is a convenience for the common case of wanting at most one
// block of a given tag (e.g. the single hash in a GET request).
func (m *Message) First(tag byte) ([]byte, bool) {
	return m.Iterate(tag).Next()
}

// All drains a TagIterator into a slice.
func (ti *TagIterator) All() [][]byte {
	var out [][]byte
	for {
		payload, ok := ti.Next()
		if !ok {
			return out
		}
		out = append(out, payload)
	}
}
