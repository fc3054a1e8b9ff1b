package session

import (
	"bufio"
	"errors"
	"io"
)

// MaxHeaderBytes is the largest response header block we will accept, including the terminator.
const MaxHeaderBytes = 64 * 1024

var (
	// ErrIncompleteHeader means the stream ended before the blank line that ends the header block.
	ErrIncompleteHeader = errors.New("connection closed before end of response header")

	// ErrHeaderTooLarge means no header terminator was found within MaxHeaderBytes.
	ErrHeaderTooLarge = errors.New("response header exceeds maximum size")
)

type scanState int

const (
	stateText scanState = iota
	stateCR1
	stateLF1
	stateCR2
	stateDone
)

// headerScanner recognizes the CRLFCRLF sequence that terminates an HTTP header block. It is fed
// one byte at a time, so it does not care how the bytes were split across reads.
type headerScanner struct {
	state scanState
}

func (s *headerScanner) feed(b byte) {
	switch {
	case b == '\r' && s.state == stateLF1:
		s.state = stateCR2
	case b == '\r':
		s.state = stateCR1
	case b == '\n' && s.state == stateCR1:
		s.state = stateLF1
	case b == '\n' && s.state == stateCR2:
		s.state = stateDone
	default:
		s.state = stateText
	}
}

func (s *headerScanner) done() bool {
	return s.state == stateDone
}

// readHeaderBlock consumes bytes from r up to and including the header terminator and returns
// them. Bytes after the terminator are left unread in r.
func readHeaderBlock(r *bufio.Reader) ([]byte, error) {
	var s headerScanner
	block := make([]byte, 0, 256)
	for !s.done() {
		b, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return block, ErrIncompleteHeader
			}
			return block, err
		}
		block = append(block, b)
		if len(block) > MaxHeaderBytes {
			return block, ErrHeaderTooLarge
		}
		s.feed(b)
	}
	return block, nil
}
