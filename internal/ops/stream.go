package ops

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fabworks/fab/internal/ui"
)

// maxLineSize bounds a single console write (1MB). Remote lines longer
// than this are emitted in segments.
const maxLineSize = 1 << 20

// console serializes line writes from concurrent readers so lines from
// different hosts never interleave mid-line.
type console struct {
	mu sync.Mutex
	w  io.Writer
}

func newConsole(w io.Writer) *console {
	return &console{w: w}
}

func (c *console) writeLine(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, line)
}

// drainStreams starts one reader per output stream of a remote command and
// blocks until both streams are exhausted. This is the barrier that
// guarantees all output for a command is flushed before the executor
// returns: before the next host under rolling, and before the join-all
// completes under fanout.
func (c *console) drainStreams(host string, stdout, stderr io.Reader) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.drain(host, "out", stdout)
	}()
	go func() {
		defer wg.Done()
		c.drain(host, "err", stderr)
	}()
	wg.Wait()
}

// drain copies one stream to the console line by line, prefixing each line
// with the originating host and stream kind. It never stops before the
// stream is exhausted: a line longer than maxLineSize is flushed in
// segments so no output is dropped and the remote writer never stalls on a
// full pipe.
func (c *console) drain(host, kind string, r io.Reader) {
	br := bufio.NewReaderSize(r, 64*1024)
	prefix := ui.HostPrefix(host)
	var line []byte
	for {
		chunk, err := br.ReadSlice('\n')
		line = append(line, chunk...)
		if err == bufio.ErrBufferFull {
			if len(line) >= maxLineSize {
				c.writeLine(fmt.Sprintf("%s %s: %s", prefix, kind, string(line)))
				line = line[:0]
			}
			continue
		}
		if len(line) > 0 {
			c.writeLine(fmt.Sprintf("%s %s: %s", prefix, kind,
				strings.TrimSuffix(string(line), "\n")))
			line = line[:0]
		}
		if err != nil {
			return
		}
	}
}
