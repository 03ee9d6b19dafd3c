package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	aegis "github.com/aegis-ai/aegis-go"
)

type chatOptions struct {
	provider string
	content  string
	model    string
	system   string
	stream   bool
	retries  int
}

func (a *app) newChatCmd() *cobra.Command {
	var o chatOptions

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a provider",
		Long: `Send one message with --content and print the reply, or start an
interactive session when --content is omitted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runChat(cmd, o)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&o.provider, "provider", "p", "anthropic", "provider to use (anthropic, openai, gemini)")
	flags.StringVarP(&o.content, "content", "c", "", "message to send; omit for an interactive session")
	flags.StringVarP(&o.model, "model", "m", "", "model to use (defaults to the provider default)")
	flags.StringVar(&o.system, "system", "", "system message")
	flags.BoolVar(&o.stream, "stream", false, "print the reply as it arrives")
	flags.IntVar(&o.retries, "retries", 0, "retries for retryable failures")
	return cmd
}

func (a *app) runChat(cmd *cobra.Command, o chatOptions) error {
	p, err := aegis.ParseProvider(o.provider)
	if err != nil {
		return err
	}

	cfg := a.config()
	if o.model != "" {
		cfg.WithModel(p, o.model)
	}
	client, err := a.newClient(cfg)
	if err != nil {
		return err
	}

	if o.content == "" {
		return a.interactive(cmd, client, p, o.system)
	}

	var conv []aegis.Message
	if o.system != "" {
		conv = append(conv, aegis.SystemMessage(o.system))
	}
	conv = append(conv, aegis.UserMessage(o.content))

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if o.stream {
		var stream *aegis.ChunkStream
		err := aegis.Retry(ctx, o.retries, func() error {
			var err error
			stream, err = client.StreamMessage(ctx, p, conv)
			return err
		})
		if err != nil {
			return err
		}
		return printStream(out, stream)
	}

	var reply aegis.Message
	err = aegis.Retry(ctx, o.retries, func() error {
		var err error
		reply, err = client.SendMessage(ctx, p, conv)
		return err
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Response: %s\n", reply.Content)
	return nil
}

func printStream(out io.Writer, stream *aegis.ChunkStream) error {
	defer stream.Close()

	fmt.Fprint(out, "Response: ")
	for chunk, err := range stream.All() {
		if err != nil {
			fmt.Fprintln(out)
			return err
		}
		fmt.Fprint(out, chunk.Content)
	}
	fmt.Fprintln(out)
	return nil
}

// interactive runs a streaming session until the user types exit or input ends.
func (a *app) interactive(cmd *cobra.Command, client *aegis.Aegis, p aegis.Provider, system string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	session := aegis.NewSession(client, p)
	if system != "" {
		session = aegis.NewSessionWithSystemMessage(client, p, system)
	}

	fmt.Fprintf(out, "Chatting with %s (type 'exit' to quit)\n", p)
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "You: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(input) {
		case "":
			continue
		case "exit", "quit":
			fmt.Fprintln(out, "Goodbye!")
			return nil
		}

		fmt.Fprint(out, "Assistant: ")
		_, err := session.Stream(ctx, input, func(chunk aegis.ResponseChunk) {
			fmt.Fprint(out, chunk.Content)
		})
		fmt.Fprintln(out)
		if err != nil {
			if ctx.Err() != nil || aegis.KindOf(err) == aegis.KindMissingCredentials {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", describe(err))
		}
	}
}
