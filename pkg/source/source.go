// Package source adapts external chat retrieval backends to a single pull
// based event stream.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"chat-archive/constant"
)

var ErrUnsupportedURL = errors.New("unsupported chat url")

// Author is the sender of an event. TargetID carries the banned user's id
// on ban events, which have no author of their own.
type Author struct {
	Name         string  `json:"name,omitempty"`
	ID           string  `json:"id,omitempty"`
	DisplayName  string  `json:"display_name,omitempty"`
	IsModerator  bool    `json:"is_moderator,omitempty"`
	IsSubscriber bool    `json:"is_subscriber,omitempty"`
	Badges       []Badge `json:"badges,omitempty"`
	TargetID     string  `json:"target_id,omitempty"`
}

type Badge struct {
	Title    string `json:"title"`
	IconName string `json:"icon_name,omitempty"`
}

type Money struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Text     string  `json:"text"`
}

// Event is one parsed chat item. Field names follow the chat-downloader
// JSON format so archived logs can be replayed as-is.
type Event struct {
	MessageType         string  `json:"message_type"`
	ActionType          string  `json:"action_type,omitempty"`
	Timestamp           int64   `json:"timestamp,omitempty"` // microseconds since epoch
	MessageID           string  `json:"message_id,omitempty"`
	Message             string  `json:"message,omitempty"`
	Author              *Author `json:"author,omitempty"`
	BannedUser          string  `json:"banned_user,omitempty"`
	BanType             string  `json:"ban_type,omitempty"`
	BanDuration         *int    `json:"ban_duration,omitempty"`
	Colour              string  `json:"colour,omitempty"`
	CumulativeMonths    *int    `json:"cumulative_months,omitempty"`
	SystemMessage       string  `json:"system_message,omitempty"`
	TargetMessageID     string  `json:"target_message_id,omitempty"`
	HeaderPrimaryText   string  `json:"header_primary_text,omitempty"`
	HeaderSecondaryText string  `json:"header_secondary_text,omitempty"`
	Money               *Money  `json:"money,omitempty"`
}

// Time returns the event time and whether the event carried one.
func (e Event) Time() (time.Time, bool) {
	if e.Timestamp == 0 {
		return time.Time{}, false
	}
	return time.UnixMicro(e.Timestamp).UTC(), true
}

// AuthorOrEmpty never returns nil.
func (e Event) AuthorOrEmpty() Author {
	if e.Author == nil {
		return Author{}
	}
	return *e.Author
}

// Info is the stream metadata reported once when a chat is opened.
type Info struct {
	Title    string
	NativeID string
	Status   string
	Duration *float64
}

type Request struct {
	URL      string
	Platform constant.Platform
	// Groups names the kinds of events the caller wants, in the source's
	// own vocabulary.
	Groups []string
	// ResumeFrom, when set, drops every event at or before it.
	ResumeFrom *time.Time
}

// Chat is an open event stream. Next returns io.EOF once the stream ends.
type Chat interface {
	Info() Info
	Next(ctx context.Context) (Event, error)
	Close() error
}

type Opener interface {
	Open(ctx context.Context, req Request) (Chat, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, req Request) (Chat, error)

func (f OpenerFunc) Open(ctx context.Context, req Request) (Chat, error) {
	return f(ctx, req)
}

// Router picks the backend for the request's platform and applies the
// resume watermark on top of it.
type Router struct {
	Twitch  Opener
	YouTube Opener
}

func (r Router) Open(ctx context.Context, req Request) (Chat, error) {
	var opener Opener
	switch req.Platform {
	case constant.PlatformTwitch:
		opener = r.Twitch
	case constant.PlatformYouTube:
		opener = r.YouTube
	}
	if opener == nil {
		return nil, fmt.Errorf("%w: no source for platform %s", ErrUnsupportedURL, req.Platform)
	}

	chat, err := opener.Open(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.ResumeFrom == nil {
		return chat, nil
	}

	zerolog.Ctx(ctx).Debug().Time("resume_from", *req.ResumeFrom).Str("url", req.URL).Msg("resuming chat")
	return &resumeChat{Chat: chat, from: *req.ResumeFrom}, nil
}

type resumeChat struct {
	Chat
	from time.Time
}

func (c *resumeChat) Next(ctx context.Context) (Event, error) {
	for {
		ev, err := c.Chat.Next(ctx)
		if err != nil {
			return ev, err
		}
		if t, ok := ev.Time(); ok && !t.After(c.from) {
			continue
		}
		return ev, nil
	}
}

// Replay serves a fixed list of events.
type Replay struct {
	Meta   Info
	Events []Event
}

func (r Replay) Open(context.Context, Request) (Chat, error) {
	events := make([]Event, len(r.Events))
	copy(events, r.Events)
	return &replayChat{info: r.Meta, events: events}, nil
}

type replayChat struct {
	info   Info
	events []Event
}

func (c *replayChat) Info() Info {
	return c.info
}

func (c *replayChat) Next(ctx context.Context) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	if len(c.events) == 0 {
		return Event{}, io.EOF
	}
	ev := c.events[0]
	c.events = c.events[1:]
	return ev, nil
}

func (c *replayChat) Close() error {
	return nil
}
