package transport

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dd0wney/cluso-kvclient/pkg/pools"
	"github.com/golang/snappy"
)

// Frame format: [Flags:1][Length:4][Payload:Length]
// Length is big-endian and counts the payload bytes as written to the
// wire. Flag bit 0 marks a snappy-compressed payload.
const (
	frameHeaderSize = 5
	flagCompressed  = 1 << 0

	// MaxFrameSize bounds a single frame payload. A peer announcing a
	// larger frame is treated as corrupt rather than trusted.
	MaxFrameSize = 16 << 20

	// compressMinSize is the smallest payload worth compressing.
	// Below this, snappy overhead outweighs the saving.
	compressMinSize = 512
)

// WriteFrame writes one framed payload. When compress is set and the
// payload is large enough, the payload is snappy-encoded and flagged.
// It returns the bytes put on the wire and whether compression applied.
func WriteFrame(w io.Writer, payload []byte, compress bool) (int, bool, error) {
	var flags byte
	body := payload

	if compress && len(payload) >= compressMinSize {
		encoded := snappy.Encode(nil, payload)
		// Incompressible payloads can grow; only keep a real win.
		if len(encoded) < len(payload) {
			body = encoded
			flags |= flagCompressed
		}
	}

	if len(body) > MaxFrameSize {
		return 0, false, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(body))
	}

	var header [frameHeaderSize]byte
	header[0] = flags
	binary.BigEndian.PutUint32(header[1:], uint32(len(body)))

	if _, err := w.Write(header[:]); err != nil {
		return 0, false, err
	}
	if _, err := w.Write(body); err != nil {
		return 0, false, err
	}
	return frameHeaderSize + len(body), flags&flagCompressed != 0, nil
}

// readHeader reads and validates one frame header.
func readHeader(r io.Reader) (flags byte, length uint32, err error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, 0, err
	}

	flags = header[0]
	length = binary.BigEndian.Uint32(header[1:])
	if length > MaxFrameSize {
		return 0, 0, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}
	return flags, length, nil
}

// ReadFrame reads one framed payload, transparently decompressing it.
// It returns the payload and the number of bytes read off the wire.
// The payload is freshly allocated and owned by the caller; ReadMessage
// is the pooled path.
func ReadFrame(r io.Reader) ([]byte, int, error) {
	flags, length, err := readHeader(r)
	if err != nil {
		return nil, 0, err
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, 0, err
	}
	wire := frameHeaderSize + int(length)

	if flags&flagCompressed != 0 {
		decoded, err := snappy.Decode(nil, body)
		if err != nil {
			return nil, wire, fmt.Errorf("%w: %v", ErrFrameCorrupt, err)
		}
		return decoded, wire, nil
	}
	return body, wire, nil
}

// WriteMessage frames and writes an encoded message
func WriteMessage(w io.Writer, msg *Message, compress bool) (int, bool, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return 0, false, err
	}
	return WriteFrame(w, payload, compress)
}

// ReadMessage reads and decodes one framed message. Frame buffers are
// recycled through the byte pool: the payload does not outlive the
// decode, so the next frame can reuse the allocation.
func ReadMessage(r io.Reader) (*Message, int, error) {
	flags, length, err := readHeader(r)
	if err != nil {
		return nil, 0, err
	}

	body := pools.GetBytesSized(int(length))
	defer pools.PutBytes(body)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, 0, err
	}
	wire := frameHeaderSize + int(length)

	payload := body
	if flags&flagCompressed != 0 {
		size, err := snappy.DecodedLen(body)
		if err != nil {
			return nil, wire, fmt.Errorf("%w: %v", ErrFrameCorrupt, err)
		}
		if size > MaxFrameSize {
			return nil, wire, fmt.Errorf("%w: %d bytes decompressed", ErrFrameTooLarge, size)
		}
		dst := pools.GetBytesSized(size)
		defer pools.PutBytes(dst)
		payload, err = snappy.Decode(dst, body)
		if err != nil {
			return nil, wire, fmt.Errorf("%w: %v", ErrFrameCorrupt, err)
		}
	}

	msg := &Message{}
	if err := json.Unmarshal(payload, msg); err != nil {
		return nil, wire, fmt.Errorf("%w: %v", ErrFrameCorrupt, err)
	}
	return msg, wire, nil
}
