package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/pawtograder/office-hours/internal/models"
)

// HelpRequestNotifier tells staff about new help requests.
type HelpRequestNotifier interface {
	HelpRequestCreated(ctx context.Context, queue *models.HelpQueue, request *models.HelpRequest) error
}

type embedSender func(channelID string, embed *discordgo.MessageEmbed) error

// DiscordNotifier posts new help requests to a staff Discord channel.
type DiscordNotifier struct {
	send      embedSender
	channelID string
	publicURL string
	logger    *zap.Logger
}

// NewDiscordNotifier opens a bot session for token.
func NewDiscordNotifier(token, channelID, publicURL string, logger *zap.Logger) (*DiscordNotifier, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return newDiscordNotifier(func(ch string, embed *discordgo.MessageEmbed) error {
		_, err := session.ChannelMessageSendEmbed(ch, embed)
		return err
	}, channelID, publicURL, logger), nil
}

func newDiscordNotifier(send embedSender, channelID, publicURL string, logger *zap.Logger) *DiscordNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiscordNotifier{send: send, channelID: channelID, publicURL: publicURL, logger: logger}
}

// HelpRequestCreated implements HelpRequestNotifier.
func (n *DiscordNotifier) HelpRequestCreated(ctx context.Context, queue *models.HelpQueue, request *models.HelpRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("New help request in %s", queue.Name),
		Description: truncateRunes(request.Request, 300),
		URL:         fmt.Sprintf("%s/course/%d/office-hours/%d", n.publicURL, request.ClassID, queue.ID),
		Timestamp:   request.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Queue type", Value: string(queue.QueueType), Inline: true},
			{Name: "Request", Value: fmt.Sprintf("#%d", request.ID), Inline: true},
		},
	}
	if request.IsPrivate {
		embed.Description = "(private request)"
	}
	if err := n.send(n.channelID, embed); err != nil {
		n.logger.Warn("discord notification failed", zap.Int64("help_request_id", request.ID), zap.Error(err))
		return err
	}
	return nil
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
