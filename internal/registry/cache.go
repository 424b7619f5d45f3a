package registry

import (
	"time"

	"gamestream/pkg/media"
)

// lookbackWindow bounds how much recent media the cache retains for the
// segment packager.
const lookbackWindow = 30 * time.Second

// mediaCache holds what a late joiner needs before regular packets make
// sense, plus a time-bounded look-back of recent media for segmenting.
// Callers synchronize access.
type mediaCache struct {
	keyframe    *media.Packet
	metadata    *media.Packet
	audioConfig *media.Packet

	lookback []timedPacket
}

type timedPacket struct {
	at  time.Time
	pkt media.Packet
}

// store updates the cache slots for pkt and appends media packets to the
// look-back window. Video replaces the keyframe slot only when tagged as a
// keyframe; every metadata packet replaces the metadata slot; audio packets
// tagged as codec config replace the audio-config slot.
func (c *mediaCache) store(pkt media.Packet, now time.Time) {
	switch pkt.Kind {
	case media.KindVideo:
		if pkt.Keyframe {
			p := pkt
			c.keyframe = &p
		}
		c.lookback = append(c.lookback, timedPacket{at: now, pkt: pkt})
	case media.KindAudio:
		if pkt.Config {
			p := pkt
			c.audioConfig = &p
		} else {
			c.lookback = append(c.lookback, timedPacket{at: now, pkt: pkt})
		}
	case media.KindMetadata:
		p := pkt
		c.metadata = &p
	}
	c.prune(now)
}

func (c *mediaCache) prune(now time.Time) {
	cutoff := now.Add(-lookbackWindow)
	i := 0
	for i < len(c.lookback) && c.lookback[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		c.lookback = append(c.lookback[:0], c.lookback[i:]...)
	}
}

// initSequence is the packet order a new viewer receives before live
// packets: metadata, then audio config, then the latest keyframe, each only
// if cached.
func (c *mediaCache) initSequence() []media.Packet {
	var seq []media.Packet
	if c.metadata != nil {
		seq = append(seq, *c.metadata)
	}
	if c.audioConfig != nil {
		seq = append(seq, *c.audioConfig)
	}
	if c.keyframe != nil {
		seq = append(seq, *c.keyframe)
	}
	return seq
}

// collectSince returns the media packets received after t, oldest first.
func (c *mediaCache) collectSince(t time.Time) []media.Packet {
	var out []media.Packet
	for _, tp := range c.lookback {
		if tp.at.After(t) {
			out = append(out, tp.pkt)
		}
	}
	return out
}
