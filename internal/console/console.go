// Package console implements the serial-console byte sink spec.md treats
// as an external collaborator with a minimal interface: something that
// accepts the bytes the simulated UART writes.
//
// StdoutConsole is the default. TCPConsole mirrors the teacher's
// SerialTTY (pkg/vm/tty.go in the teacher repo): it waits for a
// controlling TCP connection and streams UART bytes to it, which is
// useful for driving the simulator headlessly from a test harness.
package console

import (
	"fmt"
	"log"
	"net"
	"os"

	"golang.org/x/term"
)

// Console is the minimal interface the bus's UART writes through.
type Console interface {
	WriteByte(b byte)
	Close() error
}

// StdoutConsole writes UART bytes straight to the host's stdout, flushing
// on every byte so interactive output isn't buffered line-by-line.
type StdoutConsole struct{}

// NewStdout returns a Console that writes to os.Stdout.
func NewStdout() *StdoutConsole { return &StdoutConsole{} }

// WriteByte implements Console.
func (c *StdoutConsole) WriteByte(b byte) {
	os.Stdout.Write([]byte{b})
}

// Close implements Console. StdoutConsole owns nothing to release.
func (c *StdoutConsole) Close() error { return nil }

// TerminalConsole wraps StdoutConsole but additionally puts the host
// terminal into raw mode for the lifetime of the run, so a firmware
// image that bit-bangs its own line editing over the UART isn't fighting
// the host shell's own line discipline. Raw mode is only engaged when
// stdin is actually a terminal; otherwise it behaves like StdoutConsole.
type TerminalConsole struct {
	StdoutConsole
	fd       int
	oldState *term.State
}

// NewTerminal puts stdin into raw mode if it is a TTY and returns a
// Console. The caller must call Close to restore the terminal.
func NewTerminal() *TerminalConsole {
	fd := int(os.Stdin.Fd())
	tc := &TerminalConsole{fd: fd}
	if term.IsTerminal(fd) {
		if old, err := term.MakeRaw(fd); err == nil {
			tc.oldState = old
		}
	}
	return tc
}

// Close restores the terminal's prior state, if raw mode was engaged.
func (tc *TerminalConsole) Close() error {
	if tc.oldState != nil {
		return term.Restore(tc.fd, tc.oldState)
	}
	return nil
}

// TCPConsole waits for a single controlling TCP connection and streams
// UART bytes to it. Modeled directly on the teacher's SerialTTY
// (pkg/vm/tty.go), trimmed to the write side since this system's UART is
// write-only from the guest's perspective (reads always return 0).
type TCPConsole struct {
	listener net.Listener
	conn     net.Conn
}

// ListenTCP opens a loopback TCP listener, logs its address, and blocks
// until a controller attaches.
func ListenTCP() (*TCPConsole, error) {
	nl, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("console: listen: %w", err)
	}
	log.Printf("console: waiting for a controller to attach on %s/tcp...", nl.Addr())
	conn, err := nl.Accept()
	if err != nil {
		nl.Close()
		return nil, fmt.Errorf("console: accept: %w", err)
	}
	return &TCPConsole{listener: nl, conn: conn}, nil
}

// WriteByte implements Console.
func (t *TCPConsole) WriteByte(b byte) {
	t.conn.Write([]byte{b})
}

// Close implements Console.
func (t *TCPConsole) Close() error {
	t.conn.Close()
	return t.listener.Close()
}
