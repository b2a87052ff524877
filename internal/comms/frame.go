package comms

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// Frame errors.
var (
	ErrFrameTooLarge = errors.New("frame exceeds size limit")
	ErrInvalidText   = errors.New("frame is not valid UTF-8")
)

const headerSize = 4

// WriteFrame writes text as a 4-byte big-endian length followed by its bytes.
func WriteFrame(w io.Writer, text string) error {
	buf := make([]byte, headerSize+len(text))
	binary.BigEndian.PutUint32(buf, uint32(len(text)))
	copy(buf[headerSize:], text)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed UTF-8 frame. maxBytes <= 0 means no
// limit.
func ReadFrame(r io.Reader, maxBytes int) (string, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if maxBytes > 0 && uint64(n) > uint64(maxBytes) {
		return "", fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, maxBytes)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return "", fmt.Errorf("short frame body: %w", err)
	}
	if !utf8.Valid(body) {
		return "", ErrInvalidText
	}
	return string(body), nil
}
