package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/rickgao/socketmode/internal/envelope"
	"github.com/rickgao/socketmode/internal/router"
)

// printer writes one line per inbound frame. Listeners run concurrently, so
// writes are serialized.
type printer struct {
	mu  sync.Mutex
	out io.Writer
	raw bool

	gray   *color.Color
	cyan   *color.Color
	green  *color.Color
	yellow *color.Color
}

func newPrinter(out io.Writer, raw bool) *printer {
	return &printer{
		out:    out,
		raw:    raw,
		gray:   color.New(color.FgHiBlack),
		cyan:   color.New(color.FgCyan),
		green:  color.New(color.FgGreen),
		yellow: color.New(color.FgYellow),
	}
}

func (p *printer) print(msg *router.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ts := p.gray.Sprint(msg.ReceivedAt.Format("15:04:05.000"))
	gen := p.gray.Sprintf("gen=%d", msg.Generation)

	if p.raw || msg.Envelope == nil {
		fmt.Fprintf(p.out, "%s %s %s\n", ts, gen, msg.Raw)
		return
	}

	env := msg.Envelope
	switch env.Type {
	case envelope.TypeHello:
		fmt.Fprintf(p.out, "%s %s %s connections=%d\n", ts, gen, p.green.Sprint("hello"), env.NumConnections)
	case envelope.TypeDisconnect:
		fmt.Fprintf(p.out, "%s %s %s reason=%s\n", ts, gen, p.yellow.Sprint("disconnect"), env.Reason)
	default:
		line := fmt.Sprintf("%s %s %s id=%s", ts, gen, p.cyan.Sprint(env.Type), env.EnvelopeID)
		if env.RetryAttempt > 0 {
			line += p.yellow.Sprintf(" retry=%d (%s)", env.RetryAttempt, env.RetryReason)
		}
		fmt.Fprintf(p.out, "%s %s\n", line, env.Payload)
	}
}
