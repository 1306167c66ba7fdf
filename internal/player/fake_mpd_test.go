package player

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// fakeMPD speaks enough of the MPD text protocol for the adapter.
type fakeMPD struct {
	t  *testing.T
	ln net.Listener

	mu       sync.Mutex
	state    string
	file     string
	volume   int
	commands []string
	conns    int
	hang     bool
	rejects  string // add fails for URLs containing this

	idle chan string
	wg   sync.WaitGroup
}

func newFakeMPD(t *testing.T) *fakeMPD {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeMPD{
		t:      t,
		ln:     ln,
		state:  "stop",
		volume: 50,
		idle:   make(chan string, 4),
	}
	f.wg.Add(1)
	go f.serve()
	t.Cleanup(f.Close)
	return f
}

func (f *fakeMPD) Addr() string { return f.ln.Addr().String() }

func (f *fakeMPD) Close() {
	_ = f.ln.Close()
	f.wg.Wait()
}

func (f *fakeMPD) setHang(v bool) {
	f.mu.Lock()
	f.hang = v
	f.mu.Unlock()
}

func (f *fakeMPD) count(cmd string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.commands {
		if c == cmd {
			n++
		}
	}
	return n
}

func (f *fakeMPD) connections() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns
}

func (f *fakeMPD) serve() {
	defer f.wg.Done()
	var conns sync.WaitGroup
	var open []net.Conn
	var openMu sync.Mutex
	defer func() {
		openMu.Lock()
		for _, c := range open {
			_ = c.Close()
		}
		openMu.Unlock()
		conns.Wait()
	}()

	for {
		c, err := f.ln.Accept()
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conns++
		f.mu.Unlock()
		openMu.Lock()
		open = append(open, c)
		openMu.Unlock()

		conns.Add(1)
		go func() {
			defer conns.Done()
			f.handle(c)
		}()
	}
}

func (f *fakeMPD) handle(c net.Conn) {
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	defer close(done)
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-done:
				return
			}
		}
	}()

	w := bufio.NewWriter(c)
	reply := func(s string) bool {
		_, _ = w.WriteString(s)
		return w.Flush() == nil
	}
	if !reply("OK MPD 0.23.0\n") {
		return
	}

	for line := range lines {
		name, arg, _ := strings.Cut(line, " ")

		f.mu.Lock()
		f.commands = append(f.commands, name)
		hang := f.hang
		f.mu.Unlock()

		if hang && name != "close" {
			continue
		}

		var out string
		switch name {
		case "ping":
			out = "OK\n"
		case "close":
			return
		case "status":
			f.mu.Lock()
			out = fmt.Sprintf("volume: %d\nstate: %s\n", f.volume, f.state)
			if f.state == "play" {
				out += "bitrate: 128\naudio: 44100:24:2\n"
			}
			f.mu.Unlock()
			out += "OK\n"
		case "currentsong":
			f.mu.Lock()
			if f.file != "" {
				out = fmt.Sprintf("file: %s\nName: Test Radio\n", f.file)
			}
			f.mu.Unlock()
			out += "OK\n"
		case "clear":
			f.mu.Lock()
			f.file, f.state = "", "stop"
			f.mu.Unlock()
			out = "OK\n"
		case "add":
			uri := unquote(arg)
			f.mu.Lock()
			if f.rejects != "" && strings.Contains(uri, f.rejects) {
				out = "ACK [50@0] {add} No such directory\n"
			} else {
				f.file = uri
				out = "OK\n"
			}
			f.mu.Unlock()
		case "play":
			f.mu.Lock()
			if f.file == "" {
				out = "ACK [2@0] {play} Bad song index\n"
			} else {
				f.state = "play"
				out = "OK\n"
			}
			f.mu.Unlock()
		case "stop":
			f.mu.Lock()
			f.state = "stop"
			f.mu.Unlock()
			out = "OK\n"
		case "setvol":
			v, err := strconv.Atoi(unquote(arg))
			if err != nil {
				out = "ACK [2@0] {setvol} Integer expected\n"
				break
			}
			f.mu.Lock()
			f.volume = v
			f.mu.Unlock()
			out = "OK\n"
		case "idle":
			select {
			case sub := <-f.idle:
				out = fmt.Sprintf("changed: %s\nOK\n", sub)
			case next, ok := <-lines:
				if !ok {
					return
				}
				if next != "noidle" {
					f.t.Errorf("unexpected command while idle: %q", next)
				}
				out = "OK\n"
			}
		default:
			out = fmt.Sprintf("ACK [5@0] {%s} unknown command\n", name)
		}
		if !reply(out) {
			return
		}
	}
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if u, err := strconv.Unquote(s); err == nil {
		return u
	}
	return s
}
