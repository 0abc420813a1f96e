// Package render prints transcript changes to a terminal. Assistant text is
// streamed raw as it arrives; with markdown enabled the finished reply is
// rendered once more through glamour.
package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"

	"github.com/zhouzirui/streamchat/internal/client/transcript"
	"github.com/zhouzirui/streamchat/internal/model/chat"
)

const (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorCyan  = "\033[36m"
	colorGray  = "\033[90m"
	clearLine  = "\r\033[K"
)

// Terminal renders a transcript to out.
type Terminal struct {
	out  io.Writer
	ansi bool
	md   *glamour.TermRenderer

	mu          sync.Mutex
	streamed    string
	pendingShow bool
}

// NewTerminal builds a renderer. ansi enables colours and the pending
// indicator; width > 0 with ansi also enables markdown rendering.
func NewTerminal(out io.Writer, ansi bool, width int) *Terminal {
	t := &Terminal{out: out, ansi: ansi}
	if ansi && width > 0 {
		md, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width-4),
		)
		if err == nil {
			t.md = md
		}
	}
	return t
}

// Handle is a transcript.Observer.
func (t *Terminal) Handle(c transcript.Change) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c.Message.Role != chat.RoleAssistant {
		return
	}

	switch c.Kind {
	case transcript.ChangeAppend:
		t.streamed = ""
		if t.ansi {
			fmt.Fprintf(t.out, "%s%s%s", colorGray, transcript.Pending, colorReset)
			t.pendingShow = true
		}
	case transcript.ChangeUpdate:
		t.write(c.Message.Content)
	case transcript.ChangeClose:
		t.finish(c.Message.Content)
	}
}

// write prints the part of content not yet on screen.
func (t *Terminal) write(content string) {
	if content == transcript.Pending {
		return
	}
	if t.pendingShow {
		fmt.Fprint(t.out, clearLine)
		t.pendingShow = false
	}
	if !strings.HasPrefix(content, t.streamed) {
		// content was replaced rather than extended; start a fresh line
		fmt.Fprintln(t.out)
		t.streamed = ""
	}
	fmt.Fprint(t.out, content[len(t.streamed):])
	t.streamed = content
}

func (t *Terminal) finish(content string) {
	if t.pendingShow {
		fmt.Fprint(t.out, clearLine)
		t.pendingShow = false
	}
	if t.streamed == "" {
		return
	}
	fmt.Fprintln(t.out)

	if t.md != nil && content != transcript.Pending {
		rendered, err := t.md.Render(content)
		if err == nil {
			fmt.Fprintf(t.out, "%s── rendered ──%s\n%s", colorGray, colorReset, rendered)
		}
	}
	t.streamed = ""
}

// Error prints a user-facing error line.
func (t *Terminal) Error(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ansi {
		fmt.Fprintf(t.out, "%s✗ %s%s\n", colorRed, msg, colorReset)
		return
	}
	fmt.Fprintf(t.out, "error: %s\n", msg)
}

// Prompt prints the input prompt.
func (t *Terminal) Prompt() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ansi {
		fmt.Fprintf(t.out, "%s> %s", colorCyan, colorReset)
		return
	}
	fmt.Fprint(t.out, "> ")
}

// Info prints a dimmed informational line.
func (t *Terminal) Info(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ansi {
		fmt.Fprintf(t.out, "%s%s%s\n", colorGray, msg, colorReset)
		return
	}
	fmt.Fprintln(t.out, msg)
}
