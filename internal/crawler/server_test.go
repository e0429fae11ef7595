package crawler

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeServer is a scripted gopher server. Every connection reads one
// selector line and answers with the scripted response, then closes.
type fakeServer struct {
	ln   net.Listener
	host string
	port int

	mu        sync.Mutex
	responses map[string][]byte
	hang      map[string]bool
	trickle   map[string]bool
	pauses    map[string][][]byte
	requests  map[string]int
}

const (
	chunkPause   = 100 * time.Millisecond
	trickleEvery = 50 * time.Millisecond
)

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &fakeServer{
		ln:        ln,
		host:      "127.0.0.1",
		port:      ln.Addr().(*net.TCPAddr).Port,
		responses: make(map[string][]byte),
		hang:      make(map[string]bool),
		trickle:   make(map[string]bool),
		pauses:    make(map[string][][]byte),
		requests:  make(map[string]int),
	}
	t.Cleanup(func() { ln.Close() })

	go s.serve()
	return s
}

func (s *fakeServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *fakeServer) handle(conn net.Conn) {
	defer conn.Close()

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		// probes connect and hang up without a request
		return
	}
	selector := strings.TrimSuffix(line, "\r\n")

	s.mu.Lock()
	s.requests[selector]++
	body, ok := s.responses[selector]
	hang := s.hang[selector]
	trickle := s.trickle[selector]
	chunks := s.pauses[selector]
	s.mu.Unlock()

	switch {
	case hang:
		// hold the connection until the client gives up
		io.Copy(io.Discard, conn)
		return
	case trickle:
		// stay under the read timeout but never finish
		for {
			if _, err := conn.Write([]byte("x")); err != nil {
				return
			}
			time.Sleep(trickleEvery)
		}
	case len(chunks) > 0:
		for i, chunk := range chunks {
			if i > 0 {
				time.Sleep(chunkPause)
			}
			if _, err := conn.Write(chunk); err != nil {
				return
			}
		}
		return
	}
	if ok {
		conn.Write(body)
	}
}

// set scripts a response for selector
func (s *fakeServer) set(selector string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[selector] = body
}

// setText scripts a terminated text body
func (s *fakeServer) setText(selector, text string) {
	s.set(selector, []byte(text+"\r\n.\r\n"))
}

// setMenu scripts a listing made of menu lines
func (s *fakeServer) setMenu(selector string, lines ...string) {
	s.set(selector, []byte(strings.Join(append(lines, "."), "\r\n")+"\r\n"))
}

func (s *fakeServer) setHang(selector string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hang[selector] = true
}

// setTrickle scripts a response that sends one byte at a time forever
func (s *fakeServer) setTrickle(selector string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trickle[selector] = true
}

// setChunks scripts a response written in separate chunks with a pause
// between them
func (s *fakeServer) setChunks(selector string, chunks ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		s.pauses[selector] = append(s.pauses[selector], []byte(c))
	}
}

// count returns how many times selector was requested
func (s *fakeServer) count(selector string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[selector]
}

func (s *fakeServer) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range s.requests {
		n += c
	}
	return n
}

// item builds a menu line pointing at this server
func (s *fakeServer) item(kind, display, selector string) string {
	return menuLine(kind, display, selector, s.host, s.port)
}

func menuLine(kind, display, selector, host string, port int) string {
	return fmt.Sprintf("%s%s\t%s\t%s\t%s", kind, display, selector, host, strconv.Itoa(port))
}

func info(text string) string {
	return "i" + text + "\t\terror.host\t1"
}

// closedPort returns a port nothing listens on
func closedPort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
