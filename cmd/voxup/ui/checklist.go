package ui

import (
	"fmt"
	"os"
	"sync"
	"time"

	"voxup/pipeline"
)

var spinFrames = [...]string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Checklist renders pipeline progress as a terminal checklist: pending
// steps muted, the running step with a braille spinner, finished steps
// with a checkmark or a red x. It implements pipeline.Sink.
//
// In non-interactive mode it prints one plain line per state change
// instead of redrawing in place.
type Checklist struct {
	mu            sync.Mutex
	steps         []checkItem
	index         map[string]int
	renderedLines int
	frame         int
	stop          chan struct{}
	once          sync.Once
}

type checkItem struct {
	id      string
	label   string
	status  pipeline.Status
	message string
}

// NewChecklist creates a checklist over the given steps and prints the
// initial pending state.
func NewChecklist(steps []pipeline.Step) *Checklist {
	c := &Checklist{stop: make(chan struct{}), index: make(map[string]int)}
	for i, st := range steps {
		c.steps = append(c.steps, checkItem{id: st.ID, label: st.Label, status: pipeline.StatusPending})
		c.index[st.ID] = i
	}

	if IsNoInteraction() {
		return c
	}

	c.mu.Lock()
	for _, item := range c.steps {
		icon, label := c.itemStyle(item)
		fmt.Fprintf(os.Stderr, "  %s %s\n", icon, label)
	}
	c.renderedLines = len(c.steps)
	c.mu.Unlock()

	go c.spin()
	return c
}

// StepChanged updates one step's line.
func (c *Checklist) StepChanged(o pipeline.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.index[o.StepID]
	if !ok {
		return
	}
	c.steps[i].status = o.Status
	c.steps[i].message = o.Message

	if IsNoInteraction() {
		line := fmt.Sprintf("%s: %s", c.steps[i].label, o.Status)
		if o.Message != "" {
			line += " (" + o.Message + ")"
		}
		fmt.Fprintln(os.Stderr, line)
		return
	}
	c.redraw()
}

// RunFinished stops the spinner and leaves the final state on screen.
func (c *Checklist) RunFinished(pipeline.Report) {
	c.Close()
}

// Close stops the spinner. Safe to call more than once.
func (c *Checklist) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *Checklist) spin() {
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			c.mu.Lock()
			c.redraw()
			c.mu.Unlock()
			return
		case <-ticker.C:
			c.mu.Lock()
			c.frame = (c.frame + 1) % len(spinFrames)
			c.redraw()
			c.mu.Unlock()
		}
	}
}

// redraw reprints all step lines in place. Caller must hold c.mu.
func (c *Checklist) redraw() {
	if c.renderedLines > 0 {
		fmt.Fprintf(os.Stderr, "\033[%dA", c.renderedLines)
	}
	for _, item := range c.steps {
		icon, label := c.itemStyle(item)
		line := fmt.Sprintf("  %s %s", icon, label)
		if item.message != "" {
			line += " " + Muted(item.message)
		}
		fmt.Fprintf(os.Stderr, "\r%s\033[K\n", line)
	}
	c.renderedLines = len(c.steps)
}

func (c *Checklist) itemStyle(item checkItem) (icon, label string) {
	switch item.status {
	case pipeline.StatusRunning:
		return Accent(spinFrames[c.frame]), item.label
	case pipeline.StatusSuccess:
		return Success("✓"), item.label
	case pipeline.StatusFailed:
		return ErrorStyle.Render("✗"), ErrorStyle.Render(item.label)
	default:
		return Muted("●"), Muted(item.label)
	}
}
