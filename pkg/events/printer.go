package events

import (
	"fmt"
	"io"
	"strings"
)

// TaskPrinterFunc renders task events as plain console lines. Used by
// the CLI when no TTY view is available.
func TaskPrinterFunc(w io.Writer) func(e Event) error {
	return func(e Event) error {
		var err error
		switch p_ := e.(type) {
		case *EventAgentStart:
			_, err = fmt.Fprintf(w, "[%s] start: %s\n", p_.Agent, firstLine(p_.Task))
		case *EventAgentEnd:
			_, err = fmt.Fprintf(w, "[%s] done after %d steps\n", p_.Agent, p_.Steps)
		case *EventLLMRequest:
			_, err = fmt.Fprintf(w, "  -> %s/%s (%d messages, %d tools)\n",
				p_.Metadata().Provider, p_.Metadata().Model, p_.MessageCount, p_.ToolCount)
		case *EventLLMResponse:
			if len(p_.ToolCalls) > 0 {
				names := make([]string, 0, len(p_.ToolCalls))
				for _, c := range p_.ToolCalls {
					names = append(names, c.Name)
				}
				_, err = fmt.Fprintf(w, "  <- tool calls: %s\n", strings.Join(names, ", "))
			} else {
				_, err = fmt.Fprintf(w, "  <- %s (%d chars)\n", p_.FinishReason, len(p_.Content))
			}
		case *EventToolStart:
			_, err = fmt.Fprintf(w, "  [tool] %s %s\n", p_.Name, firstLine(p_.Arguments))
		case *EventToolEnd:
			status := "ok"
			if p_.Failed {
				status = "failed"
			}
			_, err = fmt.Fprintf(w, "  [tool] %s %s (%dms)\n", p_.Name, status, p_.DurationMs)
		case *EventTaskStatus:
			_, err = fmt.Fprintf(w, "[task] %s %s\n", p_.Status, p_.Detail)
		case *EventRedirect:
			_, err = fmt.Fprintf(w, "[redirect] %s\n", p_.Instructions)
		case *EventError:
			_, err = fmt.Fprintf(w, "[error] %s\n", p_.ErrorString())
		}
		return err
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		s = s[:120] + "..."
	}
	return s
}
