// Package aegis provides a unified client for chat-style LLM providers
// including Anthropic, OpenAI and Google Gemini.
//
// A single dispatcher hides each provider's request format, authentication and
// streaming framing behind one contract. Every failure is normalized into one of
// seven error kinds so callers can decide whether to retry without knowing which
// provider they talked to.
//
// Basic usage:
//
//	cfg := aegis.NewConfig().WithAnthropic(os.Getenv("ANTHROPIC_API_KEY"))
//	client, err := aegis.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	reply, err := client.SendMessage(ctx, aegis.Anthropic, []aegis.Message{
//		aegis.UserMessage("What is the capital of Vietnam?"),
//	})
//	if err != nil {
//		log.Fatal(aegis.Describe(err))
//	}
//	fmt.Println(reply.Content)
//
// Credentials from the environment or a .env file:
//
//	client, err := aegis.New(nil, aegis.WithCredentialSource(credential.Chain(
//		credential.Env(),
//		credential.DotEnv(".env"),
//	)))
//
// Streaming responses:
//
//	stream, err := client.StreamMessage(ctx, aegis.OpenAI, conv)
//	if err != nil {
//		log.Fatal(err)
//	}
//	for chunk, err := range stream.All() {
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Print(chunk.Content)
//	}
//
// Breaking out of the loop closes the stream and releases the connection. Callers
// using Next directly must call Close.
//
// Error handling:
//
//	_, err := client.SendMessage(ctx, aegis.Anthropic, conv)
//	switch {
//	case errors.Is(err, aegis.ErrRateLimited):
//		// back off, see (*aegis.Error).RetryAfter
//	case aegis.IsRetryableError(err):
//		// retry with backoff, or use aegis.Retry
//	case err != nil:
//		// terminal for this call
//	}
//
// The dispatcher never retries on its own and never reads the environment.
package aegis

// Version is the library version reported in the User-Agent header.
const Version = "0.1.0"
