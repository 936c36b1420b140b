package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"echoroom/internal/client"
	"echoroom/internal/core"
	"echoroom/internal/domain"
)

var (
	flagServer string
	flagRoom   string
	flagName   string
	flagAvatar string
	flagSTUN   []string
)

var rootCmd = &cobra.Command{
	Use:   "echoroom",
	Short: "Terminal client for an EchoRoom signaling server",
	Long: `Joins an EchoRoom room over the signaling websocket, prints chat and
membership events, and sends every stdin line as a chat message. When no
room id is given a fresh room is created and joined.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVarP(&flagServer, "server", "s", "ws://localhost:8080/api/ws/signal", "signaling websocket URL")
	rootCmd.Flags().StringVarP(&flagRoom, "room", "r", "", "room id to join (empty creates one)")
	rootCmd.Flags().StringVarP(&flagName, "name", "n", "", "display name")
	rootCmd.Flags().StringVar(&flagAvatar, "avatar", "", "avatar URL")
	rootCmd.Flags().StringSliceVar(&flagSTUN, "stun", []string{"stun:stun.l.google.com:19302"}, "STUN server URLs")
}

func run(ctx context.Context) error {
	sess := client.NewSession(client.Config{
		ServerURL:   flagServer,
		Username:    flagName,
		Avatar:      flagAvatar,
		STUNServers: flagSTUN,
		Retry:       client.RetryPolicy{MaxAttempts: 3, Backoff: 2 * time.Second},
	})
	defer sess.Close()

	sess.OnMessage = func(m domain.ChatMessage) {
		fmt.Printf("[%s] %s: %s\n", m.Timestamp.Local().Format("15:04:05"), m.Sender.Username, m.Text)
	}
	sess.OnUserJoined = func(ev core.UserJoinedEvent) {
		fmt.Printf("* %s joined (%d in room)\n", ev.User.Username, ev.UserCount)
	}
	sess.OnUserLeft = func(ev core.UserLeftEvent) {
		fmt.Printf("* %s left (%d in room)\n", ev.UserID, ev.UserCount)
	}
	sess.OnScreenShare = func(ev core.ScreenShareEvent) {
		if ev.IsSharing {
			fmt.Printf("* %s started sharing their screen\n", ev.UserID)
		} else {
			fmt.Printf("* %s stopped sharing their screen\n", ev.UserID)
		}
	}

	if err := sess.Connect(ctx); err != nil {
		return err
	}

	roomID := domain.RoomID(flagRoom)
	if roomID == "" {
		created, err := sess.CreateRoom(ctx)
		if err != nil {
			return err
		}
		roomID = created
		fmt.Printf("Created room %s\n", roomID)
	}

	snap, err := sess.Join(ctx, roomID)
	if err != nil {
		return err
	}
	fmt.Printf("Joined room %s as %s (%d in room)\n", snap.ID, sess.Self(), snap.UserCount)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			_ = sess.Leave()
			return nil
		case line, ok := <-lines:
			if !ok {
				_ = sess.Leave()
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if err := sess.SendChat(line); err != nil {
				log.Warn().Err(err).Msg("send failed")
			}
		}
	}
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("client error")
		os.Exit(1)
	}
}
