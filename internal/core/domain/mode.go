package domain

import "fmt"

// StreamMode selects which of the video track, audio track and metadata
// channel a session carries. Changing the mode while a session is active
// tears down and rebuilds only the affected sources.
type StreamMode int

const (
	// ModeImageOnly streams camera frames using the stills-oriented capture
	// profile and never touches the tracking engine.
	ModeImageOnly StreamMode = iota
	ModeAudioOnly
	ModeVideoOnly
	ModeVideoAudioTracking
)

func (m StreamMode) String() string {
	switch m {
	case ModeImageOnly:
		return "image_only"
	case ModeAudioOnly:
		return "audio_only"
	case ModeVideoOnly:
		return "video_only"
	case ModeVideoAudioTracking:
		return "video_audio_tracking"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// HasVideo reports whether the mode carries the video track.
func (m StreamMode) HasVideo() bool {
	return m == ModeImageOnly || m == ModeVideoOnly || m == ModeVideoAudioTracking
}

// HasAudio reports whether the mode carries the audio track.
func (m StreamMode) HasAudio() bool {
	return m == ModeAudioOnly || m == ModeVideoAudioTracking
}

// HasTracking reports whether the mode opens the metadata channel.
func (m StreamMode) HasTracking() bool {
	return m == ModeVideoAudioTracking
}

func (m StreamMode) Valid() bool {
	return m >= ModeImageOnly && m <= ModeVideoAudioTracking
}

// ParseStreamMode parses the snake_case form used by config and the HTTP API.
func ParseStreamMode(s string) (StreamMode, error) {
	switch s {
	case "image_only":
		return ModeImageOnly, nil
	case "audio_only":
		return ModeAudioOnly, nil
	case "video_only":
		return ModeVideoOnly, nil
	case "video_audio_tracking":
		return ModeVideoAudioTracking, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}
