package hls

import (
	"fmt"
	"strings"
	"time"
)

// Segment is one packaged media segment.
type Segment struct {
	Sequence    uint64
	Name        string
	DurationSec int
	Data        []byte
	CreatedAt   time.Time
}

// Playlist is a rendered view over a stream's current segments.
type Playlist struct {
	TargetDurationSec int
	Segments          []Segment
}

// Render produces the M3U8 text. The format is fixed: header, target
// duration, then the media sequence and entries when any segments exist.
func (p Playlist) Render() string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", p.TargetDurationSec)
	if len(p.Segments) > 0 {
		fmt.Fprintf(&b, "#EXT-X-MEDIA-SEQUENCE:%d\n", p.Segments[0].Sequence)
		for _, seg := range p.Segments {
			fmt.Fprintf(&b, "#EXTINF:%d.0,\n%s\n", seg.DurationSec, seg.Name)
		}
	}
	return b.String()
}
