package mux

import (
	"fmt"

	"github.com/zhaarey/go-mp4tag"
)

// TagTitle writes the title atom of the MP4 at path. An empty title is a
// no-op.
func TagTitle(path, title string) error {
	if title == "" {
		return nil
	}
	f, err := mp4tag.Open(path)
	if err != nil {
		return fmt.Errorf("open for tagging: %w", err)
	}
	defer f.Close()

	tags := &mp4tag.MP4Tags{
		Title:  title,
		Custom: make(map[string]string),
	}
	if err := f.Write(tags, []string{}); err != nil {
		return fmt.Errorf("write tags: %w", err)
	}
	return nil
}
