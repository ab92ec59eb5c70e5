package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	"github.com/yigit/educhat/internal/app/chatview"
	"github.com/yigit/educhat/internal/app/models"
	"github.com/yigit/educhat/internal/client"
)

func init() {
	loginCmd.Flags().String("email", "", "account email")
	loginCmd.Flags().String("password", "", "account password")
	_ = loginCmd.MarkFlagRequired("email")
	_ = loginCmd.MarkFlagRequired("password")

	sendCmd.Flags().String("reply", "", "id of the message being answered")
	sendCmd.Flags().String("file", "", "attach a file")

	rootCmd.AddCommand(loginCmd, chatsCmd, messagesCmd, sendCmd, voiceCmd, reactCmd, searchCmd, watchCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and print an access token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")

		ctx, cancel := requestContext(cmd)
		defer cancel()
		resp, err := newClient().Login(ctx, email, password)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", resp.User.Name, resp.User.ID)
		fmt.Fprintf(cmd.OutOrStdout(), "export EDUCHAT_TOKEN=%s\n", resp.Token.AccessToken)
		return nil
	},
}

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List your chats",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		chats, err := newClient().ListChats(ctx)
		if err != nil {
			return err
		}
		for _, chat := range chats {
			name := chat.Name
			if name == "" {
				name = strings.Join(chat.Members, ", ")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-24s %s\n", chat.ID, name)
		}
		return nil
	},
}

var messagesCmd = &cobra.Command{
	Use:   "messages [chat-id]",
	Short: "Print the messages of a chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		view := chatview.NewController(args[0], "", newClient(), nil)
		if err := view.Load(ctx); err != nil {
			return err
		}
		printMessages(cmd.OutOrStdout(), view.Messages())
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send [chat-id] [text]",
	Short: "Send a message, optionally with an attachment",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		chatID := args[0]
		draft := models.MessageDraft{}
		if len(args) > 1 {
			draft.Text = args[1]
		}
		draft.ReplyTo, _ = cmd.Flags().GetString("reply")
		path, _ := cmd.Flags().GetString("file")

		ctx, cancel := requestContext(cmd)
		defer cancel()
		c := newClient()

		if path != "" {
			ref, err := uploadFile(ctx, c, path)
			if err != nil {
				return err
			}
			draft.File = ref
		}

		view := chatview.NewController(chatID, "", c, nil)
		msg, err := view.Send(ctx, draft)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sent %s\n", msg.ID)
		return nil
	},
}

var voiceCmd = &cobra.Command{
	Use:   "voice [chat-id] [audio-file]",
	Short: "Send a voice note captured from a file or stdin (-)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		src := io.Reader(os.Stdin)
		if args[1] != "-" {
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()
			src = f
		}

		ctx, cancel := requestContext(cmd)
		defer cancel()

		recorder := chatview.NewRecorder(chatview.NewReaderDevice(src))
		if err := recorder.Start(ctx); err != nil {
			return err
		}
		recording, err := recorder.Stop()
		if err != nil {
			return err
		}

		c := newClient()
		uploaded, err := c.Upload(ctx, recording.Name, recording.MimeType, recording.Reader())
		if err != nil {
			return err
		}
		ref := models.FileRef{
			StoredName:   uploaded.Filename,
			OriginalName: uploaded.OriginalName,
			Size:         uploaded.Size,
			MimeType:     uploaded.MimeType,
		}

		view := chatview.NewController(args[0], "", c, nil)
		msg, err := view.Send(ctx, recording.Draft("", ref))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sent voice note %s (%s)\n", msg.ID, uploaded.HumanSize)
		return nil
	},
}

var reactCmd = &cobra.Command{
	Use:   "react [chat-id] [message-id] [emoji]",
	Short: "React to a message",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		count, err := newClient().React(ctx, args[0], args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d\n", args[2], count)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search [chat-id] [query]",
	Short: "Search the text of a chat",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		view := chatview.NewController(args[0], "", newClient(), nil)
		if err := view.Load(ctx); err != nil {
			return err
		}
		for _, m := range view.Search(args[1]) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", m.Message.ID, m.Message.Sender, m.Highlighted)
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch [chat-id]",
	Short: "Follow a chat until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		banner := chatview.NewBanner(chatview.DefaultBannerTTL, func(text string, visible bool) {
			if visible {
				fmt.Fprintf(out, "» %s\n", text)
			}
		})
		c := newClient()
		view := chatview.NewController(args[0], "", c, banner)

		loadCtx, cancel := context.WithTimeout(ctx, timeout)
		err := view.Load(loadCtx)
		cancel()
		if err != nil {
			return err
		}
		printMessages(out, view.Messages())

		return c.Subscribe(ctx, args[0], view.Apply)
	},
}

func uploadFile(ctx context.Context, c *client.Client, path string) (*models.FileRef, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	mime, err := mimetype.DetectReader(f)
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	uploaded, err := c.Upload(ctx, filepath.Base(path), mime.String(), f)
	if err != nil {
		return nil, err
	}
	return &models.FileRef{
		StoredName:   uploaded.Filename,
		OriginalName: uploaded.OriginalName,
		Size:         uploaded.Size,
		MimeType:     uploaded.MimeType,
	}, nil
}

func printMessages(w io.Writer, messages []*models.Message) {
	for _, m := range messages {
		body := m.Text
		if m.HasFile() {
			body = strings.TrimSpace(fmt.Sprintf("%s [%s, %s]", body, m.File.DisplayName(), humanize.Bytes(uint64(m.File.Size))))
		}
		if m.ReplyTo != "" {
			body = "↳ " + body
		}
		fmt.Fprintf(w, "%-14s %-10s %s  %s\n", m.ID, m.Sender, humanize.Time(m.CreatedAt), body)
		if len(m.Reactions) > 0 {
			parts := make([]string, 0, len(m.Reactions))
			for emoji, n := range m.Reactions {
				parts = append(parts, fmt.Sprintf("%s %d", emoji, n))
			}
			fmt.Fprintf(w, "%15s %s\n", "", strings.Join(parts, "  "))
		}
	}
}
