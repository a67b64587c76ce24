package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	styleStatus = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	styleError  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	styleDetail = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleOK     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// Terminal shows the status line and failure notices on a terminal stream.
// On a non-terminal writer the status line is not drawn.
type Terminal struct {
	mu          sync.Mutex
	out         io.Writer
	interactive bool
	status      string // text of the drawn status line, if any
}

func NewTerminal(out io.Writer) *Terminal {
	interactive := false
	if f, ok := out.(*os.File); ok {
		interactive = isatty.IsTerminal(f.Fd())
	}
	return &Terminal{out: out, interactive: interactive}
}

// Start draws text as a status line and returns the func that clears it.
// The returned func is safe to call more than once.
func (t *Terminal) Start(text string) func() {
	t.mu.Lock()
	if t.interactive {
		t.status = text
		t.drawStatus()
	}
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if t.interactive && t.status != "" {
				t.clearLine()
				t.status = ""
			}
		})
	}
}

// Notify prints a failure notice. The first line is the headline, the rest
// is detail. A drawn status line is moved below the notice.
func (t *Terminal) Notify(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != "" {
		t.clearLine()
	}

	headline, detail, _ := strings.Cut(message, "\n")
	fmt.Fprintln(t.out, styleError.Render(headline))
	if detail = strings.TrimSpace(detail); detail != "" {
		fmt.Fprintln(t.out, styleDetail.Render(detail))
	}

	if t.status != "" {
		t.drawStatus()
	}
}

func (t *Terminal) drawStatus() {
	fmt.Fprint(t.out, "\r"+styleStatus.Render("⟳ "+t.status))
}

func (t *Terminal) clearLine() {
	fmt.Fprint(t.out, "\r\033[K")
}

// Renamed prints a success line.
func Renamed(out io.Writer, from, to string) {
	fmt.Fprintf(out, "%s %s → %s\n", styleOK.Render("renamed"), from, to)
}
