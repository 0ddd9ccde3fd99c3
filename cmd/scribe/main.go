// Command scribe uploads an audio file to a voice-scribe server, prints
// progress while segments are transcribed and writes the transcript.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"voice-scribe-go/internal/chat"
	"voice-scribe-go/internal/client"
	"voice-scribe-go/internal/export"
	"voice-scribe-go/internal/logger"
	"voice-scribe-go/internal/types"
)

const version = "0.1.0"

type globals struct {
	ctx    context.Context
	client *client.Client
	stdout io.Writer
	stderr io.Writer
}

type cli struct {
	Server string `help:"Server base URL." default:"http://localhost:8080" env:"SCRIBE_SERVER"`

	Transcribe transcribeCmd `cmd:"" help:"Transcribe an audio file."`
	Version    versionCmd    `cmd:"" help:"Print the version."`
}

type transcribeCmd struct {
	File   string `arg:"" type:"existingfile" help:"Audio file to upload."`
	Out    string `short:"o" help:"Write the transcript here instead of stdout."`
	Format string `short:"f" enum:"txt,xlsx" default:"txt" help:"Output format (txt, xlsx)."`
	Ask    string `help:"Ask one question about the transcript once it is complete."`
	Quiet  bool   `short:"q" help:"Do not print progress."`
}

func (c *transcribeCmd) Run(g *globals) error {
	if c.Format == export.FormatXLSX && c.Out == "" {
		return errors.New("--format xlsx needs --out")
	}

	text, err := g.client.TranscribeStream(g.ctx, c.File, func(r types.TranscriptionRecord) {
		if !c.Quiet {
			fmt.Fprintf(g.stderr, "segment %d done (%d%%)\n", r.SegmentIndex, r.Percentage)
		}
	})
	if err != nil {
		if text != "" {
			fmt.Fprintf(g.stderr, "partial transcript:\n%s\n", text)
		}
		return err
	}

	if err := c.write(g, text); err != nil {
		return err
	}

	if c.Ask == "" {
		return nil
	}
	conv := chat.NewConversation(text)
	conv.Append(types.ConversationMessage{Role: types.RoleUser, Content: c.Ask})
	fmt.Fprintln(g.stdout)
	_, err = g.client.Chat(g.ctx, conv.Messages(), func(delta string) {
		fmt.Fprint(g.stdout, delta)
	})
	fmt.Fprintln(g.stdout)
	return err
}

func (c *transcribeCmd) write(g *globals, text string) error {
	if c.Out == "" {
		_, err := fmt.Fprintln(g.stdout, text)
		return err
	}
	f, err := os.Create(c.Out)
	if err != nil {
		return err
	}
	if c.Format == export.FormatXLSX {
		err = export.WriteXLSX(f, text)
	} else {
		_, err = io.WriteString(f, text+"\n")
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && !c.Quiet {
		fmt.Fprintf(g.stderr, "transcript written to %s\n", c.Out)
	}
	return err
}

type versionCmd struct{}

func (versionCmd) Run(g *globals) error {
	_, err := fmt.Fprintf(g.stdout, "scribe %s\n", version)
	return err
}

func main() {
	_ = godotenv.Load()

	var args cli
	kctx := kong.Parse(&args,
		kong.Name("scribe"),
		kong.Description("Stream an audio file through a voice-scribe server."),
		kong.UsageOnError(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.NewWithOutput(os.Stderr)
	g := &globals{
		ctx:    ctx,
		client: client.New(args.Server, nil, log),
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	kctx.FatalIfErrorf(kctx.Run(g))
}
