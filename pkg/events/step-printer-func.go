package events

import (
	"fmt"
	"io"

	"github.com/ThreeDotsLabs/watermill/message"
	"gopkg.in/yaml.v3"
)

// Printer renders events as terminal progress output.
type Printer struct {
	w           io.Writer
	showInputs  bool
	inTextBlock bool
}

func NewPrinter(w io.Writer, showInputs bool) *Printer {
	return &Printer{w: w, showInputs: showInputs}
}

func (p *Printer) endText() error {
	if !p.inTextBlock {
		return nil
	}
	p.inTextBlock = false
	_, err := fmt.Fprintln(p.w)
	return err
}

func (p *Printer) PrintEvent(e Event) error {
	switch ev := e.(type) {
	case *EventTextDelta:
		p.inTextBlock = true
		_, err := fmt.Fprint(p.w, ev.Delta)
		return err
	case *EventReasoningChunk:
		p.inTextBlock = true
		_, err := fmt.Fprint(p.w, ev.Chunk)
		return err
	case *EventPhaseChange:
		if err := p.endText(); err != nil {
			return err
		}
		_, err := fmt.Fprintf(p.w, "== %s\n", ev.Phase)
		return err
	case *EventThinkingComplete:
		if err := p.endText(); err != nil {
			return err
		}
		_, err := fmt.Fprintf(p.w, "   thought for %s\n", ev.Duration())
		return err
	case *EventFileOperation:
		if err := p.endText(); err != nil {
			return err
		}
		suffix := ""
		if ev.IsError {
			suffix = " (failed)"
		}
		_, err := fmt.Fprintf(p.w, "   %s %s%s\n", ev.Operation, ev.Path, suffix)
		return err
	case *EventToolStart:
		if err := p.endText(); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(p.w, "   > %s\n", ev.Name); err != nil {
			return err
		}
		if p.showInputs && len(ev.Input) > 0 {
			v_, err := yaml.Marshal(ev.Input)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(p.w, "%s", v_)
			return err
		}
	case *EventToolEnd:
		status := "ok"
		if ev.IsError {
			status = "error"
		}
		_, err := fmt.Fprintf(p.w, "   < %s: %s\n", ev.Name, status)
		return err
	case *EventWarning:
		if err := p.endText(); err != nil {
			return err
		}
		_, err := fmt.Fprintf(p.w, "[warn] %s\n", ev.Message)
		return err
	case *EventRequestComplete:
		if err := p.endText(); err != nil {
			return err
		}
		_, err := fmt.Fprintf(p.w, "-- %d turns, %d input / %d output tokens\n",
			ev.Turns, ev.Usage.InputTokens, ev.Usage.OutputTokens)
		return err
	}
	return nil
}

// StepPrinterFunc returns a watermill handler printing decoded events to w.
func StepPrinterFunc(w io.Writer, showInputs bool) func(msg *message.Message) error {
	p := NewPrinter(w, showInputs)
	return func(msg *message.Message) error {
		defer msg.Ack()

		e, err := NewEventFromJSON(msg.Payload)
		if err != nil {
			return err
		}
		return p.PrintEvent(e)
	}
}
