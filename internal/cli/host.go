package cli

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"live-trivia/internal/client"
	"live-trivia/internal/host"
)

// NewHostCmd runs an automated host for an existing session: it polls the
// server and drives advance transitions exactly as a host browser would.
func NewHostCmd() *cobra.Command {
	var (
		url         string
		code        string
		token       string
		poll        time.Duration
		grace       time.Duration
		revealDwell time.Duration
	)

	cmd := &cobra.Command{
		Use:   "host",
		Short: "Drive a session's transitions as an automated host",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := zerolog.New(os.Stdout).With().Timestamp().Logger()
			api := client.New(url)
			controller := host.NewController(api, host.Config{
				Code:         code,
				HostToken:    token,
				PollInterval: poll,
				GraceDelay:   grace,
				RevealDwell:  revealDwell,
			}, log)
			return controller.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&url, "url", "http://localhost:8080", "base URL of the trivia server")
	cmd.Flags().StringVar(&code, "code", "", "session code to host")
	cmd.Flags().StringVar(&token, "token", "", "host token issued at session creation")
	cmd.Flags().DurationVar(&poll, "poll", host.DefaultPollInterval, "state poll interval")
	cmd.Flags().DurationVar(&grace, "grace", host.DefaultGraceDelay, "grace delay after all players answer")
	cmd.Flags().DurationVar(&revealDwell, "reveal-dwell", host.DefaultRevealDwell, "answer reveal dwell time")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}
