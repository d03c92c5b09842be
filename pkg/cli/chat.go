package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/truthcast/pkg/model"
	"github.com/m-mizutani/truthcast/pkg/usecase/chat"
)

func chatCommand() *cli.Command {
	var (
		cfg       config
		serverURL string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "server",
			Usage:       "Base URL of a running server; without it the pipeline runs in-process",
			Sources:     cli.EnvVars("TRUTHCAST_SERVER"),
			Destination: &serverURL,
		},
	}
	flags = append(flags, coreFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive fact-checking chat",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx, c)
			if err != nil {
				return err
			}

			var turn turnFunc
			if serverURL != "" {
				turn = remoteTurn(strings.TrimSuffix(serverURL, "/"))
			} else {
				sv, err := cfg.newServices(ctx)
				if err != nil {
					return err
				}
				defer sv.repo.Close()
				turn = localTurn(sv.chat)
			}

			rl, err := readline.New("truthcast> ")
			if err != nil {
				return goerr.Wrap(err, "failed to initialize prompt")
			}
			defer rl.Close()

			fmt.Fprintln(c.Root().Writer, "Chat started. Type 'help' for commands, 'exit' to quit.")

			session := &chatSession{out: c.Root().Writer}
			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					continue
				}
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return goerr.Wrap(err, "failed to read input")
				}

				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				if line == "exit" || line == "quit" {
					break
				}

				if err := turn(ctx, session, line); err != nil {
					fmt.Fprintf(c.Root().Writer, "error: %s\n", err)
				}
			}

			fmt.Fprintln(c.Root().Writer, "Bye.")
			return nil
		},
	}
}

// chatSession tracks which record the conversation currently refers to, so
// context-bound commands (why, more_evidence, rewrite) work without an ID.
type chatSession struct {
	out      io.Writer
	recordID string
}

type turnFunc func(ctx context.Context, session *chatSession, text string) error

// localTurn runs one turn against the in-process service, rendering events
// as they arrive with a spinner during stage waits.
func localTurn(svc *chat.Service) turnFunc {
	return func(ctx context.Context, session *chatSession, text string) error {
		emitter := chat.NewEmitter(ctx, chat.DefaultStreamBuffer)
		go svc.HandleText(ctx, text, session.recordID, emitter)

		sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		defer sp.Stop()

		for ev := range emitter.Events() {
			renderEvent(session, sp, ev)
		}
		return nil
	}
}

// remoteTurn runs one turn against a server's SSE endpoint.
func remoteTurn(baseURL string) turnFunc {
	return func(ctx context.Context, session *chatSession, text string) error {
		body, err := json.Marshal(map[string]string{
			"text":              text,
			"context_record_id": session.recordID,
		})
		if err != nil {
			return goerr.Wrap(err, "failed to encode request")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/chat/stream", bytes.NewReader(body))
		if err != nil {
			return goerr.Wrap(err, "failed to build request")
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return goerr.Wrap(err, "failed to reach server", goerr.V("url", baseURL))
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return goerr.New("server rejected request",
				goerr.V("status", resp.StatusCode), goerr.V("body", string(data)))
		}

		sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		defer sp.Stop()

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			ev, ok := chat.ParseLine(scanner.Text())
			if !ok {
				continue
			}
			renderEvent(session, sp, *ev)
		}
		if err := scanner.Err(); err != nil {
			return goerr.Wrap(err, "stream interrupted")
		}
		return nil
	}
}

func renderEvent(session *chatSession, sp *spinner.Spinner, ev model.StreamEvent) {
	switch ev.Type {
	case model.EventStage:
		stage, _ := ev.Data["stage"].(string)
		status, _ := ev.Data["status"].(string)
		switch status {
		case string(model.StageRunning):
			sp.Suffix = " " + stage
			sp.Start()
		case string(model.StageFailed):
			sp.Stop()
			fmt.Fprintf(session.out, "stage %s failed\n", stage)
		default:
			sp.Stop()
		}

	case model.EventToken:
		sp.Stop()
		if content, ok := ev.Data["content"].(string); ok {
			fmt.Fprint(session.out, content)
		}

	case model.EventMessage:
		sp.Stop()
		if msg := decodeMessage(ev.Data["message"]); msg != nil {
			renderMessage(session, msg)
		}

	case model.EventError:
		sp.Stop()
		if message, ok := ev.Data["message"].(string); ok {
			fmt.Fprintf(session.out, "error: %s\n", message)
		}
	}
}

// decodeMessage accepts both the in-process typed form and the JSON map
// form produced by the wire roundtrip.
func decodeMessage(raw any) *model.ChatMessage {
	if msg, ok := raw.(*model.ChatMessage); ok {
		return msg
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var msg model.ChatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil
	}
	return &msg
}

func renderMessage(session *chatSession, msg *model.ChatMessage) {
	fmt.Fprintln(session.out, msg.Content)

	if len(msg.References) > 0 {
		fmt.Fprintln(session.out, "\nReferences:")
		for _, ref := range msg.References {
			fmt.Fprintf(session.out, "  - %s (%s)\n", ref.Title, ref.Href)
		}
	}

	var commands []string
	for _, action := range msg.Actions {
		if action.Kind == model.ActionCommand {
			commands = append(commands, action.Command)
		}
	}
	if len(commands) > 0 {
		fmt.Fprintf(session.out, "\nNext: %s\n", strings.Join(commands, " | "))
	}

	if id, ok := msg.Meta["record_id"].(string); ok && id != "" {
		session.recordID = id
	}
}
