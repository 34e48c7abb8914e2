package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"chat-archive/config"
	"chat-archive/constant"
)

var (
	chatParts  = []string{"snippet", "authorDetails"}
	videoParts = []string{"snippet", "liveStreamingDetails", "contentDetails"}
)

// YouTubeOpener polls liveChatMessages.list for the active chat of a
// broadcast. Replays of finished broadcasts are not exposed by the API.
type YouTubeOpener struct {
	cfg    config.YouTubeSource
	source config.Source
}

func NewYouTubeOpener(cfg config.Source) *YouTubeOpener {
	return &YouTubeOpener{cfg: cfg.YouTube, source: cfg}
}

func (o *YouTubeOpener) service(ctx context.Context) (*youtube.Service, error) {
	if o.cfg.RefreshToken != "" {
		oauthCfg := &oauth2.Config{
			ClientID:     o.cfg.ClientID,
			ClientSecret: o.cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{youtube.YoutubeReadonlyScope},
		}
		ts := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: o.cfg.RefreshToken})
		return youtube.NewService(ctx, option.WithTokenSource(ts))
	}
	if o.cfg.APIKey != "" {
		return youtube.NewService(ctx, option.WithAPIKey(o.cfg.APIKey))
	}
	return nil, errors.New("youtube: no api key or refresh token configured")
}

func (o *YouTubeOpener) Open(ctx context.Context, req Request) (Chat, error) {
	videoID, err := YouTubeVideoID(req.URL)
	if err != nil {
		return nil, err
	}

	svc, err := o.service(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := svc.Videos.List(videoParts).Id(videoID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("youtube: get video %s: %w", videoID, err)
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("youtube: video %s not found", videoID)
	}
	video := resp.Items[0]

	info := Info{NativeID: videoID, Status: constant.StreamStatusPast}
	if video.Snippet != nil {
		info.Title = video.Snippet.Title
		if video.Snippet.LiveBroadcastContent == "live" {
			info.Status = constant.StreamStatusLive
		}
	}
	if video.ContentDetails != nil {
		info.Duration = parseISODuration(video.ContentDetails.Duration)
	}

	if video.LiveStreamingDetails == nil || video.LiveStreamingDetails.ActiveLiveChatId == "" {
		return nil, fmt.Errorf("youtube: video %s has no active live chat", videoID)
	}

	interval := o.cfg.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &youtubeChat{
		svc:      svc,
		chatID:   video.LiveStreamingDetails.ActiveLiveChatId,
		info:     info,
		interval: interval,
		retry:    o.source,
	}, nil
}

// YouTubeVideoID accepts watch, live, shorts and youtu.be URLs.
func YouTubeVideoID(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedURL, raw)
	}
	host := strings.ToLower(u.Host)
	path := strings.Trim(u.Path, "/")

	var id string
	switch {
	case strings.Contains(host, "youtu.be"):
		id = path
	case strings.Contains(host, "youtube.com"):
		if v := u.Query().Get("v"); v != "" {
			id = v
		} else if parts := strings.Split(path, "/"); len(parts) == 2 && (parts[0] == "live" || parts[0] == "shorts") {
			id = parts[1]
		}
	}
	if id == "" {
		return "", fmt.Errorf("%w: no video id in %s", ErrUnsupportedURL, raw)
	}
	return id, nil
}

// parseISODuration handles the PT#H#M#S form YouTube reports.
func parseISODuration(s string) *float64 {
	if !strings.HasPrefix(s, "PT") {
		return nil
	}
	d, err := time.ParseDuration(strings.ToLower(strings.TrimPrefix(s, "PT")))
	if err != nil || d == 0 {
		return nil
	}
	secs := d.Seconds()
	return &secs
}

type youtubeChat struct {
	svc      *youtube.Service
	chatID   string
	info     Info
	interval time.Duration
	retry    config.Source

	pending   []Event
	pageToken string
	fetched   bool
	ended     bool
	wait      time.Duration
}

func (c *youtubeChat) Info() Info {
	return c.info
}

func (c *youtubeChat) Next(ctx context.Context) (Event, error) {
	for len(c.pending) == 0 {
		if c.ended {
			return Event{}, io.EOF
		}
		if c.fetched {
			select {
			case <-time.After(c.wait):
			case <-ctx.Done():
				return Event{}, ctx.Err()
			}
		}
		if err := c.poll(ctx); err != nil {
			return Event{}, err
		}
	}

	ev := c.pending[0]
	c.pending = c.pending[1:]
	return ev, nil
}

func (c *youtubeChat) poll(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	if c.retry.RetryTimeout > 0 {
		bo.MaxInterval = c.retry.RetryTimeout
	}
	maxTries := uint(1)
	if c.retry.MaxAttempts > 0 {
		maxTries = uint(c.retry.MaxAttempts)
	}

	resp, err := backoff.Retry(ctx, func() (*youtube.LiveChatMessageListResponse, error) {
		call := c.svc.LiveChatMessages.List(c.chatID, chatParts).Context(ctx)
		if c.pageToken != "" {
			call = call.PageToken(c.pageToken)
		}
		resp, err := call.Do()
		if err != nil && chatGone(err) {
			return nil, backoff.Permanent(err)
		}
		return resp, err
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(maxTries),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			zerolog.Ctx(ctx).Warn().Err(err).Dur("retry_in", next).Str("live_chat_id", c.chatID).Msg("youtube poll failed, retrying")
		}),
	)
	if err != nil {
		if chatGone(err) {
			c.ended = true
			return nil
		}
		return fmt.Errorf("youtube: poll live chat: %w", err)
	}

	c.fetched = true
	c.pageToken = resp.NextPageToken
	c.wait = c.interval
	if polling := time.Duration(resp.PollingIntervalMillis) * time.Millisecond; polling > c.wait {
		c.wait = polling
	}
	for _, item := range resp.Items {
		ev, end := youtubeEvent(item)
		if end {
			c.ended = true
			break
		}
		c.pending = append(c.pending, ev)
	}
	if resp.OfflineAt != "" && len(resp.Items) == 0 {
		c.ended = true
	}
	return nil
}

// chatGone reports the API errors that mean the chat is over.
func chatGone(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	if gerr.Code == http.StatusNotFound {
		return true
	}
	for _, item := range gerr.Errors {
		if item.Reason == "liveChatEnded" || item.Reason == "liveChatDisabled" {
			return true
		}
	}
	return false
}

// youtubeEvent converts an API item. The second result is true for the
// chat-ended marker.
func youtubeEvent(item *youtube.LiveChatMessage) (Event, bool) {
	ev := Event{MessageID: item.Id}
	snippet := item.Snippet
	if snippet == nil {
		return ev, false
	}
	if t, err := time.Parse(time.RFC3339Nano, snippet.PublishedAt); err == nil {
		ev.Timestamp = t.UnixMicro()
	}
	if details := item.AuthorDetails; details != nil {
		ev.Author = youtubeAuthor(details)
	}
	ev.Message = snippet.DisplayMessage

	switch snippet.Type {
	case "chatEndedEvent":
		return ev, true
	case "textMessageEvent":
		ev.MessageType = "text_message"
	case "superChatEvent":
		ev.MessageType = "paid_message"
		if d := snippet.SuperChatDetails; d != nil {
			ev.Message = d.UserComment
			ev.Money = &Money{Amount: float64(d.AmountMicros) / 1e6, Currency: d.Currency, Text: d.AmountDisplayString}
		}
	case "superStickerEvent":
		ev.MessageType = "paid_sticker"
		if d := snippet.SuperStickerDetails; d != nil {
			ev.Money = &Money{Amount: float64(d.AmountMicros) / 1e6, Currency: d.Currency, Text: d.AmountDisplayString}
		}
	case "newSponsorEvent":
		ev.MessageType = "membership_item"
		ev.HeaderPrimaryText = "New member"
		if d := snippet.NewSponsorDetails; d != nil {
			ev.HeaderSecondaryText = d.MemberLevelName
		}
	case "memberMilestoneChatEvent":
		ev.MessageType = "membership_item"
		if d := snippet.MemberMilestoneChatDetails; d != nil {
			ev.Message = d.UserComment
			ev.HeaderPrimaryText = fmt.Sprintf("Member for %d months", d.MemberMonth)
			ev.HeaderSecondaryText = d.MemberLevelName
		}
	case "membershipGiftingEvent":
		ev.MessageType = "sponsorships_gift_purchase_announcement"
		if d := snippet.MembershipGiftingDetails; d != nil {
			ev.HeaderPrimaryText = fmt.Sprintf("Gifted %d memberships", d.GiftMembershipsCount)
			ev.HeaderSecondaryText = d.GiftMembershipsLevelName
		}
	case "messageDeletedEvent":
		ev.MessageType = "remove_chat_item"
		ev.ActionType = "remove_chat_item"
		if d := snippet.MessageDeletedDetails; d != nil {
			ev.TargetMessageID = d.DeletedMessageId
		}
	case "userBannedEvent":
		ev.MessageType = "remove_chat_item_by_author"
		ev.ActionType = "remove_chat_item_by_author"
		if d := snippet.UserBannedDetails; d != nil && d.BannedUserDetails != nil {
			ev.BannedUser = d.BannedUserDetails.DisplayName
			ev.BanType = d.BanType
		}
	default:
		ev.MessageType = snippet.Type
	}
	return ev, false
}

func youtubeAuthor(d *youtube.LiveChatMessageAuthorDetails) *Author {
	author := &Author{Name: d.DisplayName, ID: d.ChannelId, IsModerator: d.IsChatModerator}
	if d.IsChatOwner {
		author.Badges = append(author.Badges, Badge{Title: "Owner", IconName: "owner"})
	}
	if d.IsChatModerator {
		author.Badges = append(author.Badges, Badge{Title: "Moderator", IconName: "moderator"})
	}
	if d.IsChatSponsor {
		author.Badges = append(author.Badges, Badge{Title: "Member"})
	}
	if d.IsVerified {
		author.Badges = append(author.Badges, Badge{Title: "Verified", IconName: "verified"})
	}
	return author
}

func (c *youtubeChat) Close() error {
	return nil
}
