// Command shardclient is a minimal runnable harness for the shardcore
// session: it loads a token from the environment, connects, logs every
// dispatch event name it receives, and blocks until interrupted.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/duskline/shardcore"
	"github.com/duskline/shardcore/sink"
)

type stdoutSink struct{}

func (stdoutSink) Dispatch(e sink.Event)          { log.Printf("dispatch %s seq=%d", e.Name, e.Seq) }
func (stdoutSink) DispatchUnknown(u sink.Unknown) { log.Printf("unknown dispatch %s", u.Name) }

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, continuing with process environment")
	}

	token := os.Getenv("GATEWAY_TOKEN")
	if token == "" {
		log.Fatal("GATEWAY_TOKEN is not set")
	}
	gatewayURL := os.Getenv("GATEWAY_URL")
	if gatewayURL == "" {
		gatewayURL = "wss://gateway.example.com"
	}

	logger := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	sess, err := shardcore.New(shardcore.Config{
		Token:         token,
		GatewayURL:    gatewayURL,
		AutoReconnect: true,
		Compress:      true,
		Sink:          stdoutSink{},
		Logger:        &logger,
		Handlers: shardcore.Handlers{
			OnReady: func() { logger.Info().Msg("shard ready") },
			OnError: func(err error) { logger.Error().Err(err).Msg("session error") },
		},
	})
	if err != nil {
		log.Fatalf("shardcore.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sess.Connect(ctx); err != nil {
		log.Fatalf("connect: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	sess.Disconnect(false)
}
