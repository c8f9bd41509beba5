// callctl is a terminal harness for the call controller: it dials a
// relay's call endpoint and either starts a call or waits for one.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/parleychat/parley/internal/auth"
	"github.com/parleychat/parley/internal/callctl"
	"github.com/parleychat/parley/internal/domain"
)

var (
	server   string
	userID   string
	callID   string
	secret   string
	callType string
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	root := &cobra.Command{
		Use:   "callctl",
		Short: "Drive a call against a parley relay",
	}
	root.PersistentFlags().StringVar(&server, "server", "ws://localhost:8080", "relay base URL")
	root.PersistentFlags().StringVar(&userID, "user", "", "participant id")
	root.PersistentFlags().StringVar(&callID, "call", "", "call id")
	root.PersistentFlags().StringVar(&secret, "secret", "", "shared secret for minting a bearer token")
	_ = root.MarkPersistentFlagRequired("user")
	_ = root.MarkPersistentFlagRequired("call")

	callCmd := &cobra.Command{
		Use:   "call",
		Short: "Ring the other participant of the call",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(true)
		},
	}
	callCmd.Flags().StringVar(&callType, "type", "voice", "call type (voice or video)")

	waitCmd := &cobra.Command{
		Use:   "wait",
		Short: "Wait for an incoming call and answer it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(false)
		},
	}

	root.AddCommand(callCmd, waitCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(caller bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var token string
	if secret != "" {
		var err error
		token, err = auth.NewResolver(secret).Sign(domain.ParticipantID(userID), time.Hour)
		if err != nil {
			return err
		}
	}

	sig, err := callctl.Dial(server, domain.CallID(callID), domain.ParticipantID(userID), token)
	if err != nil {
		return err
	}

	media, err := callctl.NewPeerSession(callctl.DefaultRTCConfig())
	if err != nil {
		sig.Close()
		return err
	}

	ended := make(chan struct{})
	ctl := callctl.New(domain.ParticipantID(userID), media, sig, func() {
		close(ended)
	})

	if caller {
		if err := ctl.StartCall(callType); err != nil {
			ctl.Teardown()
			return err
		}
		log.Info().Str("call", callID).Msg("ringing")
	} else {
		log.Info().Str("call", callID).Msg("waiting for incoming call")
	}

	go func() {
		for data := range sig.Incoming() {
			ctl.HandleFrame(data)
			if !caller && ctl.State() == callctl.StateRinging {
				if err := ctl.Answer(); err != nil {
					log.Error().Err(err).Msg("answer failed")
				} else {
					log.Info().Msg("answered")
				}
			}
		}
		ctl.Teardown()
	}()

	select {
	case <-ctx.Done():
		_ = ctl.Hangup()
		<-ended
	case <-ended:
	}
	log.Info().Str("state", ctl.State().String()).Msg("call finished")
	return nil
}
