package model

import "time"

type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaAudio    MediaKind = "audio"
	MediaDocument MediaKind = "document"
	MediaSticker  MediaKind = "sticker"
)

// RawMedia references channel-side media that still has to be downloaded.
type RawMedia struct {
	Ref      string
	MimeType string
	FileName string
	Caption  string
}

// RawChannelMessage is what a channel gateway hands to the bridge. At most one
// media slot is honoured; the first populated one in Media() order wins.
type RawChannelMessage struct {
	Channel    string
	MessageID  string
	ChatID     string
	SenderID   string
	SenderName string
	Timestamp  time.Time
	Text       string
	QuotedText string

	Image    *RawMedia
	Video    *RawMedia
	Audio    *RawMedia
	Document *RawMedia
	Sticker  *RawMedia
}

// Media returns the first populated media slot and the kind implied by it.
func (r *RawChannelMessage) Media() (*RawMedia, MediaKind) {
	switch {
	case r.Image != nil:
		return r.Image, MediaImage
	case r.Video != nil:
		return r.Video, MediaVideo
	case r.Audio != nil:
		return r.Audio, MediaAudio
	case r.Document != nil:
		return r.Document, MediaDocument
	case r.Sticker != nil:
		return r.Sticker, MediaSticker
	}
	return nil, ""
}

type InboundAttachment struct {
	Kind      MediaKind
	MimeType  string
	FileName  string
	Data      []byte
	SizeBytes int64
}

// NormalizedMessage is the channel-agnostic form of an inbound message.
type NormalizedMessage struct {
	Channel          string
	ChannelMessageID string
	ChatID           string
	SenderID         string
	SenderName       string
	Text             string
	Attachment       *InboundAttachment
	Timestamp        time.Time
}

// DefaultMimeType is used when the channel did not report one.
func DefaultMimeType(kind MediaKind) string {
	switch kind {
	case MediaImage:
		return "image/jpeg"
	case MediaVideo:
		return "video/mp4"
	case MediaAudio:
		return "audio/ogg"
	case MediaSticker:
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
