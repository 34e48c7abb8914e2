package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gempir/go-twitch-irc/v4"
	"github.com/rs/zerolog"

	"chat-archive/config"
	"chat-archive/constant"
)

const twitchBuffer = 1024

// USERNOTICE msg-id values mapped onto the event vocabulary.
var twitchNoticeTypes = map[string]string{
	"sub":                        "subscription",
	"resub":                      "resubscription",
	"subgift":                    "subscription_gift",
	"anonsubgift":                "anonymous_subscription_gift",
	"submysterygift":             "mystery_subscription_gift",
	"anonsubmysterygift":         "anonymous_mystery_subscription_gift",
	"extendsub":                  "extend_subscription",
	"standardpayforward":         "standard_pay_forward",
	"communitypayforward":        "community_pay_forward",
	"primecommunitygiftreceived": "prime_community_gift_received",
}

// TwitchOpener reads live chat over Twitch IRC. Without credentials it
// joins anonymously, which is enough to read.
type TwitchOpener struct {
	cfg    config.TwitchSource
	source config.Source
}

func NewTwitchOpener(cfg config.Source) *TwitchOpener {
	return &TwitchOpener{cfg: cfg.Twitch, source: cfg}
}

func (o *TwitchOpener) Open(ctx context.Context, req Request) (Chat, error) {
	channel, err := TwitchChannel(req.URL)
	if err != nil {
		return nil, err
	}

	var client *twitch.Client
	if o.cfg.Username != "" && o.cfg.OAuth != "" {
		client = twitch.NewClient(o.cfg.Username, o.cfg.OAuth)
	} else {
		client = twitch.NewAnonymousClient()
	}

	chat := &twitchChat{
		client: client,
		events: make(chan Event, twitchBuffer),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
		info: Info{
			Title:    channel,
			NativeID: channel,
			Status:   constant.StreamStatusLive,
		},
	}

	client.OnPrivateMessage(chat.onPrivateMessage)
	client.OnClearChatMessage(chat.onClearChat)
	client.OnUserNoticeMessage(chat.onUserNotice)
	client.OnConnect(func() {
		zerolog.Ctx(ctx).Info().Str("channel", channel).Msg("connected to twitch irc")
	})
	client.Join(channel)

	go chat.connect(ctx, o.source)

	return chat, nil
}

// TwitchChannel extracts the channel login from a channel URL. VOD and clip
// URLs are rejected because IRC cannot replay them.
func TwitchChannel(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || !strings.Contains(strings.ToLower(u.Host), "twitch.tv") {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedURL, raw)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return "", fmt.Errorf("%w: missing channel in %s", ErrUnsupportedURL, raw)
	}
	switch parts[0] {
	case "videos":
		return "", fmt.Errorf("%w: twitch vods are not supported: %s", ErrUnsupportedURL, raw)
	}
	if len(parts) > 1 && parts[1] == "clip" {
		return "", fmt.Errorf("%w: twitch clips are not supported: %s", ErrUnsupportedURL, raw)
	}

	return strings.ToLower(parts[0]), nil
}

type twitchChat struct {
	client *twitch.Client
	info   Info
	events chan Event
	errs   chan error
	done   chan struct{}
}

func (c *twitchChat) connect(ctx context.Context, cfg config.Source) {
	bo := backoff.NewExponentialBackOff()
	if cfg.RetryTimeout > 0 {
		bo.MaxInterval = cfg.RetryTimeout
	}
	maxTries := uint(1)
	if cfg.MaxAttempts > 0 {
		maxTries = uint(cfg.MaxAttempts)
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := c.client.Connect()
		if errors.Is(err, twitch.ErrClientDisconnected) {
			return struct{}{}, nil
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(maxTries),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			zerolog.Ctx(ctx).Warn().Err(err).Dur("retry_in", next).Msg("twitch irc connection lost, reconnecting")
		}),
	)
	if err != nil {
		select {
		case c.errs <- fmt.Errorf("twitch irc: %w", err):
		default:
		}
	}
}

func (c *twitchChat) push(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *twitchChat) onPrivateMessage(msg twitch.PrivateMessage) {
	messageType := "text_message"
	if msg.Tags["msg-id"] == "highlighted-message" {
		messageType = "highlighted_message"
	}

	c.push(Event{
		MessageType: messageType,
		Timestamp:   msg.Time.UnixMicro(),
		MessageID:   msg.ID,
		Message:     msg.Message,
		Author:      twitchAuthor(msg.User, msg.Tags),
		Colour:      msg.User.Color,
	})
}

func (c *twitchChat) onClearChat(msg twitch.ClearChatMessage) {
	if msg.TargetUsername == "" {
		c.push(Event{MessageType: "clear_chat", Timestamp: msg.Time.UnixMicro()})
		return
	}

	ev := Event{
		MessageType: "ban_user",
		Timestamp:   msg.Time.UnixMicro(),
		BannedUser:  msg.TargetUsername,
		BanType:     "ban",
		Author:      &Author{TargetID: msg.TargetUserID},
	}
	if msg.BanDuration > 0 {
		duration := msg.BanDuration
		ev.BanType = "timeout"
		ev.BanDuration = &duration
	}
	c.push(ev)
}

func (c *twitchChat) onUserNotice(msg twitch.UserNoticeMessage) {
	messageType, ok := twitchNoticeTypes[msg.MsgID]
	if !ok {
		messageType = msg.MsgID
	}

	ev := Event{
		MessageType:   messageType,
		Timestamp:     msg.Time.UnixMicro(),
		MessageID:     msg.ID,
		Message:       msg.Message,
		Author:        twitchAuthor(msg.User, msg.Tags),
		Colour:        msg.User.Color,
		SystemMessage: msg.SystemMsg,
	}
	if months, err := strconv.Atoi(msg.MsgParams["msg-param-cumulative-months"]); err == nil {
		ev.CumulativeMonths = &months
	}
	c.push(ev)
}

func twitchAuthor(user twitch.User, tags map[string]string) *Author {
	badges := make([]Badge, 0, len(user.Badges))
	for name := range user.Badges {
		badges = append(badges, Badge{Title: name, IconName: name})
	}
	return &Author{
		Name:         user.Name,
		ID:           user.ID,
		DisplayName:  user.DisplayName,
		IsModerator:  tags["mod"] == "1" || user.Badges["broadcaster"] > 0,
		IsSubscriber: tags["subscriber"] == "1" || user.Badges["subscriber"] > 0,
		Badges:       badges,
	}
}

func (c *twitchChat) Info() Info {
	return c.info
}

func (c *twitchChat) Next(ctx context.Context) (Event, error) {
	select {
	case ev := <-c.events:
		return ev, nil
	case err := <-c.errs:
		return Event{}, err
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

func (c *twitchChat) Close() error {
	select {
	case <-c.done:
		return nil
	default:
		close(c.done)
	}
	err := c.client.Disconnect()
	if errors.Is(err, twitch.ErrConnectionIsNotOpen) {
		return nil
	}
	return err
}
