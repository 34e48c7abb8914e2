package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"chat-archive/constant"
)

const maxLineSize = 4 << 20

// FileOpener replays a chat log written one JSON event per line, as produced
// by chat-downloader's --output option.
type FileOpener struct {
	Path  string
	Title string
}

func (f FileOpener) Open(_ context.Context, _ Request) (Chat, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open chat log: %w", err)
	}

	base := filepath.Base(f.Path)
	native := strings.TrimSuffix(base, filepath.Ext(base))
	title := f.Title
	if title == "" {
		title = native
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	return &fileChat{
		file:    file,
		scanner: scanner,
		info: Info{
			Title:    title,
			NativeID: native,
			Status:   constant.StreamStatusPast,
		},
	}, nil
}

type fileChat struct {
	file    *os.File
	scanner *bufio.Scanner
	info    Info
	line    int
}

func (c *fileChat) Info() Info {
	return c.info
}

func (c *fileChat) Next(ctx context.Context) (Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Event{}, err
		}
		if !c.scanner.Scan() {
			if err := c.scanner.Err(); err != nil {
				return Event{}, fmt.Errorf("read chat log: %w", err)
			}
			return Event{}, io.EOF
		}
		c.line++

		raw := bytes.TrimSpace(c.scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return Event{}, fmt.Errorf("chat log line %d: %w", c.line, err)
		}
		return ev, nil
	}
}

func (c *fileChat) Close() error {
	return c.file.Close()
}
