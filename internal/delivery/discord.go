package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/bwmarrin/discordgo"

	"clipforge/internal/logging"
)

// Discord implements Messenger over a discordgo gateway session.
type Discord struct {
	session *discordgo.Session
}

// Connect logs in with the bot token and opens the gateway connection. The
// session lifecycle is independent of job execution; callers Close it at
// shutdown.
func Connect(token string, logger *slog.Logger) (*Discord, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	if logger == nil {
		logger = logging.NewNop()
	}
	log := logger.With(logging.String("component", "discord"))
	session.AddHandler(func(_ *discordgo.Session, ready *discordgo.Ready) {
		log.Info("bot ready", logging.String("user", ready.User.Username))
	})

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("open discord session: %w", err)
	}
	return &Discord{session: session}, nil
}

// Close terminates the gateway connection.
func (d *Discord) Close() error {
	return d.session.Close()
}

// ResolveChannel verifies the channel is visible to the bot.
func (d *Discord) ResolveChannel(ctx context.Context, channelID string) error {
	if _, err := d.session.Channel(channelID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("resolve channel %s: %w", channelID, err)
	}
	return nil
}

// PostStatus posts the ephemeral status line.
func (d *Discord) PostStatus(ctx context.Context, channelID, content string) (StatusMessage, error) {
	msg, err := d.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("post status message: %w", err)
	}
	return &discordMessage{session: d.session, channelID: channelID, messageID: msg.ID}, nil
}

// SendFile uploads the artifact as an attachment with a caption.
func (d *Discord) SendFile(ctx context.Context, channelID, caption, filename, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer file.Close()

	_, err = d.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: caption,
		Files: []*discordgo.File{{
			Name:        filename,
			ContentType: "video/mp4",
			Reader:      file,
		}},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("send attachment: %w", err)
	}
	return nil
}

type discordMessage struct {
	session   *discordgo.Session
	channelID string
	messageID string
}

func (m *discordMessage) Edit(ctx context.Context, content string) error {
	if _, err := m.session.ChannelMessageEdit(m.channelID, m.messageID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("edit status message: %w", err)
	}
	return nil
}

func (m *discordMessage) Delete(ctx context.Context) error {
	if err := m.session.ChannelMessageDelete(m.channelID, m.messageID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("delete status message: %w", err)
	}
	return nil
}

var _ Messenger = (*Discord)(nil)
