package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/diagnosa/backend/internal/config"
	"github.com/zhouzirui/diagnosa/backend/internal/logging"
	modelchat "github.com/zhouzirui/diagnosa/backend/internal/model/chat"
	"github.com/zhouzirui/diagnosa/backend/internal/service/ai"
	"github.com/zhouzirui/diagnosa/backend/internal/service/chat"
)

var (
	timeoutFlag   time.Duration
	noPrimingFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "chat-cli",
	Short: "Chat with the diagnosis assistant from the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logging.Init(config.LogConfig{Level: "warn", Format: "text"})

		if cmd.Flags().Changed("timeout") {
			cfg.AI.Timeout = timeoutFlag
		}
		if noPrimingFlag {
			cfg.Chat.Priming = modelchat.Priming{}
		}

		completer, err := ai.NewCompleter(cmd.Context(), cfg.AI)
		if err != nil {
			return err
		}
		if err := ai.VerifyModel(cmd.Context(), completer, cfg.AI.VerifyModel); err != nil {
			return err
		}

		svc := chat.NewService(completer, chat.Options{
			Priming: cfg.Chat.Priming,
			Timeout: cfg.AI.Timeout,
		})
		return runSession(cmd.Context(), svc, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.Flags().DurationVar(&timeoutFlag, "timeout", 60*time.Second, "bound for each model call (0 disables)")
	rootCmd.Flags().BoolVar(&noPrimingFlag, "no-priming", false, "start with an empty transcript")
}

// runSession drives one session until exit or end of input.
func runSession(ctx context.Context, svc *chat.Service, in io.Reader, out io.Writer) error {
	session, _, err := svc.InitializeSession(ctx, "")
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Chatbot Diagnosa Penyakit")
	fmt.Fprintln(out, "Ketik '/history' untuk melihat riwayat, 'exit' untuk keluar.")
	if err := printTranscript(ctx, svc, session.ID, out); err != nil {
		return err
	}

	reader := bufio.NewReader(in)
	for {
		fmt.Fprint(out, "Anda: ")
		line, readErr := reader.ReadString('\n')
		text := strings.TrimSpace(line)

		switch {
		case text == "exit":
			return nil
		case text == "/history":
			if err := printTranscript(ctx, svc, session.ID, out); err != nil {
				return err
			}
		case text != "":
			submit(ctx, svc, session.ID, text, out)
		}

		if readErr == io.EOF {
			fmt.Fprintln(out)
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

func submit(ctx context.Context, svc *chat.Service, sessionID, text string, out io.Writer) {
	fmt.Fprintln(out, "Sedang memproses...")

	reply, err := svc.SubmitTurn(ctx, sessionID, text)
	if err != nil {
		log.Debug().Err(err).Msg("turn failed")
		if chat.KindOf(err) == chat.KindEmptyReply {
			fmt.Fprintln(out, "Maaf, saya tidak bisa memberikan balasan.")
			return
		}
		fmt.Fprintf(out, "Terjadi kesalahan saat berkomunikasi dengan model: %v\n", err)
		fmt.Fprintln(out, "Silakan coba lagi.")
		return
	}
	fmt.Fprintf(out, "Asisten: %s\n", reply.Text)
}

func printTranscript(ctx context.Context, svc *chat.Service, sessionID string, out io.Writer) error {
	turns, err := svc.RenderTranscript(ctx, sessionID)
	if err != nil {
		return err
	}
	for _, turn := range turns {
		label := "Anda"
		if turn.Role == modelchat.RoleAssistant {
			label = "Asisten"
		}
		fmt.Fprintf(out, "%s: %s\n", label, turn.Text)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
