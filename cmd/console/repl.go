package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hrygo/divinesense-console/client/model"
	"github.com/hrygo/divinesense-console/client/session"
	"github.com/hrygo/divinesense-console/client/state"
)

// printer renders inbound stream events as plain text. Chunks print without
// a trailing newline so a streaming reply builds up on one line block.
type printer struct {
	out io.Writer
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out}
}

func (p *printer) handle(payload []byte) {
	var event struct {
		Type    string `json:"type"`
		Content any    `json:"content"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return
	}

	msg := model.Message{Type: model.MessageType(event.Type), Content: event.Content}
	switch msg.Type {
	case model.MessageTypeAIChunk:
		fmt.Fprint(p.out, msg.ContentText())
	case model.MessageTypeAI:
		fmt.Fprintln(p.out)
	}
}

const replHelp = `commands:
  /list            show grouped conversations
  /more            load the next conversation page
  /open <n>        open conversation number n from /list
  /new [title]     create a conversation
  /rename <title>  rename the open conversation
  /pin, /unpin     toggle pinning on the open conversation
  /delete          delete the open conversation
  /quit            exit
anything else is sent as a message`

// runREPL drives the line-oriented console loop until stdin closes or ctx
// is canceled.
func runREPL(ctx context.Context, sn *session.Session, conversations *state.ConversationStore, messages *state.MessageStore, p *printer) error {
	scanner := bufio.NewScanner(os.Stdin)
	var listing []string // conversation ids as last printed by /list
	var activeID string

	fmt.Fprintln(p.out, replHelp)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "/") {
			if _, err := sn.Send(ctx, line); err != nil {
				fmt.Fprintf(os.Stderr, "[error] %v\n", err)
			}
			continue
		}

		command, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)
		switch command {
		case "/quit":
			return nil

		case "/list":
			listing = printConversationList(p.out, conversations)

		case "/more":
			more, err := sn.LoadMore(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "[error] %v\n", err)
			} else if !more {
				fmt.Fprintln(p.out, "no more conversations")
			} else {
				listing = printConversationList(p.out, conversations)
			}

		case "/open":
			n, err := strconv.Atoi(arg)
			if err != nil || n < 1 || n > len(listing) {
				fmt.Fprintln(os.Stderr, "[error] /open expects a number from the last /list")
				continue
			}
			id := listing[n-1]
			if err := sn.SwitchConversation(ctx, id); err != nil {
				fmt.Fprintf(os.Stderr, "[error] %v\n", err)
				continue
			}
			activeID = id
			printHistory(p.out, messages)

		case "/new":
			conv, err := sn.CreateConversation(ctx, arg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "[error] %v\n", err)
				continue
			}
			activeID = conv.ID
			fmt.Fprintf(p.out, "opened new conversation %q\n", conv.Title)

		case "/rename":
			if activeID == "" || arg == "" {
				fmt.Fprintln(os.Stderr, "[error] open a conversation and provide a title")
				continue
			}
			if err := sn.Rename(ctx, activeID, arg); err != nil {
				fmt.Fprintf(os.Stderr, "[error] %v\n", err)
			}

		case "/pin", "/unpin":
			if activeID == "" {
				fmt.Fprintln(os.Stderr, "[error] open a conversation first")
				continue
			}
			if err := sn.SetPinned(ctx, activeID, command == "/pin"); err != nil {
				fmt.Fprintf(os.Stderr, "[error] %v\n", err)
			}

		case "/delete":
			if activeID == "" {
				fmt.Fprintln(os.Stderr, "[error] open a conversation first")
				continue
			}
			if err := sn.Delete(ctx, activeID); err != nil {
				fmt.Fprintf(os.Stderr, "[error] %v\n", err)
				continue
			}
			activeID = ""

		default:
			fmt.Fprintln(p.out, replHelp)
		}
	}
	return scanner.Err()
}

func printConversationList(out io.Writer, conversations *state.ConversationStore) []string {
	var ids []string
	for _, bucket := range conversations.Buckets() {
		fmt.Fprintf(out, "%s\n", bucket.Key)
		for _, conv := range bucket.Conversations {
			ids = append(ids, conv.ID)
			fmt.Fprintf(out, "  %3d. %s\n", len(ids), conv.Title)
		}
	}
	if len(ids) == 0 {
		fmt.Fprintln(out, "no conversations")
	}
	return ids
}

func printHistory(out io.Writer, messages *state.MessageStore) {
	for _, msg := range messages.Messages() {
		prefix := "  "
		if msg.Type == model.MessageTypeHuman {
			prefix = "> "
		}
		fmt.Fprintf(out, "%s%s\n", prefix, msg.ContentText())
	}
}
