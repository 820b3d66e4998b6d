// Package asm implements the minimal flat-binary packer: the interface
// between an out-of-scope assembler (emitting one hex word per line, the
// same listing format the teacher's own assembler prints) and the raw
// firmware image cmd/rvsim loads at RAM base.
//
// The listing format is deliberately the teacher's own output shape:
//
//	0x00000013	# 0b00000000000000000000000000010011 - line: 1
//
// Only the leading hex token on each line matters; everything from a
// '#' onward is a comment and blank lines are skipped, so a packer input
// file can also just be a bare list of 0x-prefixed words.
package asm

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrInvalidRecord is returned when a line's leading token doesn't parse
// as an unsigned integer literal.
var ErrInvalidRecord = errors.New("asm: invalid hex record")

// WordOrError contains either a packed 32-bit word or an error that
// occurred while reading the listing, mirroring the teacher's
// InstructionOrError.
type WordOrError struct {
	Word   uint32
	Error  error
	Lineno int
}

// Bytes returns the word's little-endian byte encoding, or the carried
// error.
func (woe WordOrError) Bytes() ([4]byte, error) {
	var b [4]byte
	if woe.Error != nil {
		return b, woe.Error
	}
	binary.LittleEndian.PutUint32(b[:], woe.Word)
	return b, nil
}

// StartPacker starts the packer in a background goroutine and returns a
// sequence of WordOrError, one per non-blank, non-comment-only line.
func StartPacker(r io.Reader) <-chan WordOrError {
	out := make(chan WordOrError)
	go packerAsync(r, out)
	return out
}

// packerAsync reads hex-listing lines from r and writes WordOrError on
// out, stopping at the first parse error.
func packerAsync(r io.Reader, out chan<- WordOrError) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var lineno int
	for scanner.Scan() {
		lineno++
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		value, err := strconv.ParseUint(fields[0], 0, 32)
		if err != nil {
			out <- WordOrError{
				Error:  fmt.Errorf("%w: %q on line %d: %v", ErrInvalidRecord, fields[0], lineno, err),
				Lineno: lineno,
			}
			return
		}
		out <- WordOrError{Word: uint32(value), Lineno: lineno}
	}
	if err := scanner.Err(); err != nil {
		out <- WordOrError{Error: fmt.Errorf("asm: scanning listing: %w", err), Lineno: lineno}
	}
}

// Pack reads a hex-per-line listing from r and returns the packed flat
// binary image, one little-endian 32-bit word per input line.
func Pack(r io.Reader) ([]byte, error) {
	var out []byte
	for woe := range StartPacker(r) {
		b, err := woe.Bytes()
		if err != nil {
			return nil, fmt.Errorf("asm: line %d: %w", woe.Lineno, err)
		}
		out = append(out, b[:]...)
	}
	return out, nil
}

// Format renders a packed image back into the hex-per-line listing
// format, the inverse of Pack, useful for round-tripping an existing
// firmware blob through the textual listing form.
func Format(w io.Writer, image []byte) error {
	for off := 0; off+4 <= len(image); off += 4 {
		word := binary.LittleEndian.Uint32(image[off : off+4])
		if _, err := fmt.Fprintf(w, "0x%08x\t# 0b%032b - word: %d\n", word, word, off/4); err != nil {
			return err
		}
	}
	return nil
}
