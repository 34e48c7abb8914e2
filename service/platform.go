package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gorm.io/gorm"

	"chat-archive/config"
	"chat-archive/constant"
	"chat-archive/dto"
	"chat-archive/pkg/source"
	"chat-archive/repository"
)

// Transformer turns source events of one stream into stored records.
type Transformer interface {
	Transform(ctx context.Context, ev source.Event) Result
	Close(ctx context.Context) error
}

type TransformerOptions struct {
	Batch config.Batch
	// AfterFlush runs in every flush transaction of the transformer's writer.
	AfterFlush func(tx *gorm.DB) error
	// Owned is closed together with the transformer.
	Owned io.Closer
}

func batchOptions[T any](opts TransformerOptions) []BatchOption[T] {
	var out []BatchOption[T]
	if opts.AfterFlush != nil {
		out = append(out, WithAfterFlush[T](opts.AfterFlush))
	}
	if opts.Owned != nil {
		out = append(out, WithOwnedStore[T](opts.Owned))
	}
	return out
}

// Platform holds everything that differs between chat platforms. It is
// resolved once per stream and passed along instead of branching on the
// platform id.
type Platform interface {
	Kind() constant.Platform
	// SourceGroups are the event groups requested from the retrieval source.
	SourceGroups() []string
	// Model is a pointer to the platform's message entity.
	Model() any
	// UsernameColumns are matched by the username filter.
	UsernameColumns() []string
	NewTransformer(repo repository.StreamRepository, streamID uint, opts TransformerOptions) Transformer
	// Messages loads the rows selected by q as API views.
	Messages(q *gorm.DB) ([]dto.Message, error)
	// Export loads the rows selected by q as export records.
	Export(q *gorm.DB) ([]dto.ExportRecord, error)
	ExportHeader() []string
}

var platforms = map[constant.Platform]Platform{
	constant.PlatformTwitch:  twitchPlatform{},
	constant.PlatformYouTube: youtubePlatform{},
}

func PlatformFor(kind constant.Platform) (Platform, error) {
	p, ok := platforms[kind]
	if !ok {
		return nil, fmt.Errorf("%w: platform id %d", ErrUnsupportedPlatform, kind)
	}
	return p, nil
}

// DetectPlatform recognizes a platform by the domain in url.
func DetectPlatform(url string) (Platform, error) {
	lower := strings.ToLower(url)
	switch {
	case strings.Contains(lower, "twitch.tv"):
		return platforms[constant.PlatformTwitch], nil
	case strings.Contains(lower, "youtube.com"), strings.Contains(lower, "youtu.be"):
		return platforms[constant.PlatformYouTube], nil
	default:
		return nil, ErrUnsupportedPlatform
	}
}
