package discord

import (
	"fmt"
	"strconv"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/chat-scribe/platform"
)

// Commands are the slash commands the bot registers.
func Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "record",
			Description: "Start recording this channel, or export a past window",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "limit", Description: "Backfill at most this many messages (max 100)"},
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "minutes", Description: "Backfill messages from the last N minutes (max 7 days)"},
				{Type: discordgo.ApplicationCommandOptionString, Name: "after_message_id", Description: "Backfill messages after this message ID"},
				{Type: discordgo.ApplicationCommandOptionString, Name: "before_message_id", Description: "Export messages before this message ID"},
				{Type: discordgo.ApplicationCommandOptionString, Name: "start_time", Description: "Window start, YYYY-MM-DD HH:MM"},
				{Type: discordgo.ApplicationCommandOptionString, Name: "end_time", Description: "Window end, YYYY-MM-DD HH:MM (exports instead of recording)"},
				{Type: discordgo.ApplicationCommandOptionBoolean, Name: "summary", Description: "Generate an AI summary (default on)"},
			},
		},
		{
			Name:        "stop",
			Description: "Stop recording and post the transcript",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionChannel,
					Name:         "target_channel",
					Description:  "Post the transcript to this channel instead",
					ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
				},
			},
		},
		{
			Name:        "say",
			Description: "Have the bot repeat a message",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "message", Description: "Text to send", Required: true},
			},
		},
	}
}

// optionValues flattens command options to strings keyed by option name.
func optionValues(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]string {
	out := make(map[string]string, len(opts))
	for _, o := range opts {
		switch o.Type {
		case discordgo.ApplicationCommandOptionInteger:
			out[o.Name] = strconv.FormatInt(o.IntValue(), 10)
		case discordgo.ApplicationCommandOptionBoolean:
			out[o.Name] = strconv.FormatBool(o.BoolValue())
		case discordgo.ApplicationCommandOptionString:
			out[o.Name] = o.StringValue()
		default:
			// channel, user and role options carry their snowflake
			out[o.Name] = fmt.Sprint(o.Value)
		}
	}
	return out
}

func authorOf(u *discordgo.User, member *discordgo.Member) platform.Author {
	if u == nil {
		return platform.Author{}
	}
	display := u.GlobalName
	if member != nil && member.Nick != "" {
		display = member.Nick
	}
	if display == "" {
		display = u.Username
	}
	return platform.Author{ID: u.ID, DisplayName: display, Handle: u.Username, Bot: u.Bot}
}

func toMessage(m *discordgo.Message) platform.Message {
	msg := platform.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		Author:    authorOf(m.Author, m.Member),
		Content:   m.Content,
		CreatedAt: m.Timestamp,
	}
	if m.GuildID == "" {
		msg.Author.Direct = true
	}
	for _, att := range m.Attachments {
		msg.Attachments = append(msg.Attachments, platform.Attachment{Filename: att.Filename, URL: att.URL})
	}
	return msg
}
