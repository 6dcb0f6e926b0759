package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawtograder/office-hours/internal/models"
)

func TestDiscordNotifierSendsEmbed(t *testing.T) {
	var channel string
	var sent *discordgo.MessageEmbed
	n := newDiscordNotifier(func(ch string, embed *discordgo.MessageEmbed) error {
		channel, sent = ch, embed
		return nil
	}, "staff-room", "https://oh.example", nil)

	queue := &models.HelpQueue{ID: 3, ClassID: 1, Name: "Lab", QueueType: models.QueueTypeVideo}
	request := &models.HelpRequest{ID: 12, ClassID: 1, Request: strings.Repeat("ä", 400), CreatedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	require.NoError(t, n.HelpRequestCreated(context.Background(), queue, request))

	assert.Equal(t, "staff-room", channel)
	require.NotNil(t, sent)
	assert.Equal(t, "New help request in Lab", sent.Title)
	assert.Equal(t, "https://oh.example/course/1/office-hours/3", sent.URL)
	assert.Len(t, []rune(sent.Description), 300)
	assert.Equal(t, "video", sent.Fields[0].Value)
	assert.Equal(t, "#12", sent.Fields[1].Value)
}

func TestDiscordNotifierHidesPrivateRequests(t *testing.T) {
	var sent *discordgo.MessageEmbed
	n := newDiscordNotifier(func(_ string, embed *discordgo.MessageEmbed) error {
		sent = embed
		return errors.New("rate limited")
	}, "c", "", nil)

	err := n.HelpRequestCreated(context.Background(), &models.HelpQueue{Name: "Lab"}, &models.HelpRequest{Request: "secret", IsPrivate: true})
	assert.Error(t, err)
	assert.Equal(t, "(private request)", sent.Description)
}
