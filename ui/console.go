// Package ui is the terminal front end: it reads lines, renders menus and
// prints what the services return. It holds no chat state of its own.
package ui

import (
	"bufio"
	"chat-pubsub/domain"
	"chat-pubsub/domain/event"
	"chat-pubsub/errors"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

const stopWord = "exit"

const introduction = `
This is your super friendly chatbot
Here are the commands this bot supports:
  !help: List of commands
  !weather <city>: Weather update
  !fact: Random fun fact
  !whoami: Your user information
`

var menuOptions = []string{
	"1: Identify yourself",
	"2: Join a channel",
	"3: Leave a channel",
	"4: Send a message to a channel",
	"5: Get info about a user",
	"6: Read messages from a channel",
	"7: Exit",
}

// Console reads stdin on a single goroutine so that prompts and the stop
// watcher of a read never compete for the same reader.
type Console struct {
	mu         sync.Mutex
	out        io.Writer
	lines      chan string
	interrupts <-chan os.Signal
	colours    bool
}

// NewConsole starts reading in. interrupts may be nil.
func NewConsole(in io.Reader, out io.Writer, interrupts <-chan os.Signal, colours bool) *Console {
	c := &Console{
		out:        out,
		lines:      make(chan string),
		interrupts: interrupts,
		colours:    colours,
	}
	go c.scan(in)
	return c
}

func (c *Console) scan(in io.Reader) {
	defer close(c.lines)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		c.lines <- scanner.Text()
	}
}

// Ask prints question and waits for one line. An interrupt at a prompt
// means exit; closed input is io.EOF.
func (c *Console) Ask(ctx context.Context, question string) (string, error) {
	c.write(question)
	select {
	case line, ok := <-c.lines:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	case <-c.interrupts:
		c.write("\n")
		return "", errors.ErrExit
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// AwaitStop returns when the user types exit, presses Ctrl+C, input ends
// or ctx is done. Other lines are ignored.
func (c *Console) AwaitStop(ctx context.Context) error {
	for {
		select {
		case line, ok := <-c.lines:
			if !ok || strings.EqualFold(strings.TrimSpace(line), stopWord) {
				return nil
			}
			c.Notice("Type %s to stop listening", stopWord)
		case <-c.interrupts:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Console) Introduction() {
	c.write(introduction + "\n")
}

func (c *Console) Menu(subscribed []domain.Channel) {
	var b strings.Builder
	b.WriteString(c.paint(color.New(color.OpBold), "Options:") + "\n")
	for _, option := range menuOptions {
		b.WriteString(option + "\n")
	}
	if len(subscribed) > 0 {
		names := lo.Map(subscribed, func(ch domain.Channel, _ int) string { return ch.String() })
		b.WriteString(c.paint(color.New(color.FgGray), "Subscribed: "+strings.Join(names, ", ")) + "\n")
	}
	c.write(b.String())
}

func (c *Console) Notice(format string, args ...any) {
	c.write(fmt.Sprintf(format, args...) + "\n")
}

func (c *Console) Failure(err error) {
	c.write(c.paint(color.New(color.FgRed), "Error: "+err.Error()) + "\n")
}

func (c *Console) Profile(title string, user domain.User) {
	var b strings.Builder
	b.WriteString(c.paint(color.New(color.FgCyan), title) + "\n")

	table := tablewriter.NewWriter(&b)
	table.SetHeader([]string{"Field", "Value"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.AppendBulk([][]string{
		{domain.FieldName, user.Name},
		{domain.FieldAge, user.Age},
		{domain.FieldGender, user.Gender},
		{domain.FieldLocation, user.Location},
	})
	table.Render()
	c.write(b.String())
}

// Consume prints events of a running read.
func (c *Console) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MessageReceived:
		c.write(fmt.Sprintf("%s %s\n",
			c.paint(color.New(color.FgGreen), "New message on "+evt.Channel().String()+":"),
			evt.Message.Text()))
	case event.PayloadRejected:
		c.write(c.paint(color.New(color.FgYellow), "Skipped: "+evt.Err.Error()) + "\n")
	}
	return nil
}

func (c *Console) paint(style color.Style, text string) string {
	if !c.colours {
		return text
	}
	return style.Render(text)
}

func (c *Console) write(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = io.WriteString(c.out, text)
}
