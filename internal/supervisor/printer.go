// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package supervisor

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// SystemName labels messages from the supervisor itself.
const SystemName = "system"

// Message is one line of output.
type Message struct {
	Name string
	Text string
	Time time.Time
}

// PrinterOptions configure a Printer.
type PrinterOptions struct {
	// Prefix shows the timestamp and process name before every line.
	Prefix bool

	// Pretty highlights log levels and HTTP status codes.
	Pretty bool

	// Color forces colour on or off. Nil detects a terminal.
	Color *bool
}

// palette assigns process colours in registration order.
var palette = []lipgloss.Color{"2", "3", "4", "5", "6", "10", "11", "12", "13", "14"}

var (
	levelPattern  = regexp.MustCompile(`\b(DEBUG|INFO|WARNING|WARN|ERROR|CRITICAL)\b`)
	statusPattern = regexp.MustCompile(`\b([1-5][0-9]{2})\b`)
)

// Printer writes multiplexed process output. It is safe for concurrent use;
// every line is written with a single Write call under the lock.
type Printer struct {
	mu     sync.Mutex
	out    io.Writer
	opts   PrinterOptions
	color  bool
	width  int
	styles map[string]lipgloss.Style
	next   int
	r      *lipgloss.Renderer
}

// NewPrinter creates a printer writing to out.
func NewPrinter(out io.Writer, opts PrinterOptions) *Printer {
	color := isTerminal(out)
	if opts.Color != nil {
		color = *opts.Color
	}
	p := &Printer{
		out:    out,
		opts:   opts,
		color:  color,
		width:  len(SystemName),
		styles: make(map[string]lipgloss.Style),
		r:      lipgloss.NewRenderer(out),
	}
	p.styles[SystemName] = p.r.NewStyle().Bold(true)
	return p
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Register assigns a colour to name and widens the name column.
func (p *Printer) Register(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(name) > p.width {
		p.width = len(name)
	}
	if _, ok := p.styles[name]; ok {
		return
	}
	p.styles[name] = p.r.NewStyle().Foreground(palette[p.next%len(palette)])
	p.next++
}

// Write prints m.
func (p *Printer) Write(m Message) {
	text := strings.TrimRight(m.Text, "\r\n")
	if p.opts.Pretty && p.color && m.Name != SystemName {
		text = p.highlight(text)
	}

	var line string
	if p.opts.Prefix {
		ts := m.Time
		if ts.IsZero() {
			ts = time.Now()
		}
		p.mu.Lock()
		prefix := fmt.Sprintf("%s %-*s |", ts.Format("15:04:05"), p.width, m.Name)
		style, ok := p.styles[m.Name]
		p.mu.Unlock()
		if p.color && ok {
			prefix = style.Render(prefix)
		}
		line = prefix + " " + text + "\n"
	} else {
		line = text + "\n"
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	io.WriteString(p.out, line)
}

// highlight colours log levels and HTTP status codes in a line.
func (p *Printer) highlight(text string) string {
	text = levelPattern.ReplaceAllStringFunc(text, func(level string) string {
		switch level {
		case "ERROR", "CRITICAL":
			return p.r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true).Render(level)
		case "WARNING", "WARN":
			return p.r.NewStyle().Foreground(lipgloss.Color("11")).Render(level)
		default:
			return p.r.NewStyle().Faint(true).Render(level)
		}
	})
	return statusPattern.ReplaceAllStringFunc(text, func(status string) string {
		switch status[0] {
		case '5':
			return p.r.NewStyle().Foreground(lipgloss.Color("9")).Render(status)
		case '4':
			return p.r.NewStyle().Foreground(lipgloss.Color("11")).Render(status)
		case '2':
			return p.r.NewStyle().Foreground(lipgloss.Color("10")).Render(status)
		default:
			return status
		}
	})
}

// lineWriter splits a process stream into lines for the printer.
type lineWriter struct {
	name    string
	printer *Printer
	quiet   bool
	buf     []byte
}

func (w *lineWriter) Write(b []byte) (int, error) {
	if w.quiet {
		return len(b), nil
	}
	w.buf = append(w.buf, b...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.printer.Write(Message{Name: w.name, Text: string(w.buf[:i]), Time: time.Now()})
		w.buf = w.buf[i+1:]
	}
	return len(b), nil
}

// Flush prints a trailing partial line.
func (w *lineWriter) Flush() {
	if len(w.buf) > 0 && !w.quiet {
		w.printer.Write(Message{Name: w.name, Text: string(w.buf), Time: time.Now()})
	}
	w.buf = nil
}
