// Package wire encodes outbound control frames for the live music service and
// decodes its inbound frames into typed events.
package wire

import (
	"encoding/json"
	"errors"

	"github.com/bytedance/sonic"
)

// codec is sonic in encoding/json compatible mode: RawMessage passthrough and
// omitempty pointers behave as in the standard library.
var codec = sonic.ConfigStd

var ErrUnknownControl = errors.New("wire: unknown playback control")

// WeightedPrompt is a text descriptor with a relative influence weight.
// ID identifies the prompt locally and never goes on the wire.
type WeightedPrompt struct {
	ID     string  `json:"id"`
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

// Scale is the musical key the generator should stay in.
type Scale string

const (
	ScaleUnspecified          Scale = "SCALE_UNSPECIFIED"
	ScaleCMajorAMinor         Scale = "C_MAJOR_A_MINOR"
	ScaleDFlatMajorBFlatMinor Scale = "D_FLAT_MAJOR_B_FLAT_MINOR"
	ScaleDMajorBMinor         Scale = "D_MAJOR_B_MINOR"
	ScaleEFlatMajorCMinor     Scale = "E_FLAT_MAJOR_C_MINOR"
	ScaleEMajorDFlatMinor     Scale = "E_MAJOR_D_FLAT_MINOR"
	ScaleFMajorDMinor         Scale = "F_MAJOR_D_MINOR"
	ScaleGFlatMajorEFlatMinor Scale = "G_FLAT_MAJOR_E_FLAT_MINOR"
	ScaleGMajorEMinor         Scale = "G_MAJOR_E_MINOR"
	ScaleAFlatMajorFMinor     Scale = "A_FLAT_MAJOR_F_MINOR"
	ScaleAMajorGFlatMinor     Scale = "A_MAJOR_G_FLAT_MINOR"
	ScaleBFlatMajorGMinor     Scale = "B_FLAT_MAJOR_G_MINOR"
	ScaleBMajorAFlatMinor     Scale = "B_MAJOR_A_FLAT_MINOR"
)

// Scales lists every scale in display order.
var Scales = []Scale{
	ScaleUnspecified,
	ScaleCMajorAMinor,
	ScaleDFlatMajorBFlatMinor,
	ScaleDMajorBMinor,
	ScaleEFlatMajorCMinor,
	ScaleEMajorDFlatMinor,
	ScaleFMajorDMinor,
	ScaleGFlatMajorEFlatMinor,
	ScaleGMajorEMinor,
	ScaleAFlatMajorFMinor,
	ScaleAMajorGFlatMinor,
	ScaleBFlatMajorGMinor,
	ScaleBMajorAFlatMinor,
}

// Valid reports whether s is a known scale. The empty scale is valid and means absent.
func (s Scale) Valid() bool {
	if s == "" {
		return true
	}
	for _, known := range Scales {
		if s == known {
			return true
		}
	}
	return false
}

// GenerationMode trades quality against variety.
type GenerationMode string

const (
	ModeQuality      GenerationMode = "QUALITY"
	ModeDiversity    GenerationMode = "DIVERSITY"
	ModeVocalization GenerationMode = "VOCALIZATION"
)

// Valid reports whether m is a known mode. The empty mode is valid and means absent.
func (m GenerationMode) Valid() bool {
	switch m {
	case "", ModeQuality, ModeDiversity, ModeVocalization:
		return true
	}
	return false
}

// GenerationConfig steers the generator. Nil fields are omitted from the
// outbound frame; the wire layer never fills in defaults.
type GenerationConfig struct {
	Temperature         *float64       `json:"temperature,omitempty"`
	TopK                *int           `json:"topK,omitempty"`
	Seed                *int           `json:"seed,omitempty"`
	Guidance            *float64       `json:"guidance,omitempty"`
	BPM                 *int           `json:"bpm,omitempty"`
	Density             *float64       `json:"density,omitempty"`
	Brightness          *float64       `json:"brightness,omitempty"`
	Scale               Scale          `json:"scale,omitempty"`
	MuteBass            *bool          `json:"muteBass,omitempty"`
	MuteDrums           *bool          `json:"muteDrums,omitempty"`
	OnlyBassAndDrums    *bool          `json:"onlyBassAndDrums,omitempty"`
	MusicGenerationMode GenerationMode `json:"musicGenerationMode,omitempty"`
}

// PlaybackControl is a transport command for the remote generator.
type PlaybackControl string

const (
	Play         PlaybackControl = "PLAY"
	Pause        PlaybackControl = "PAUSE"
	Stop         PlaybackControl = "STOP"
	ResetContext PlaybackControl = "RESET_CONTEXT"
)

// Valid reports whether c is one of the four known controls.
func (c PlaybackControl) Valid() bool {
	switch c {
	case Play, Pause, Stop, ResetContext:
		return true
	}
	return false
}

// Ptr returns a pointer to v. Handy for filling GenerationConfig.
func Ptr[T any](v T) *T {
	return &v
}

// Event is one decoded inbound frame: HandshakeComplete, Warning,
// PromptFiltered or AudioChunks.
type Event interface {
	inbound()
}

// HandshakeComplete acknowledges the setup frame.
type HandshakeComplete struct{}

// Warning is a non-fatal notice from the service.
type Warning struct {
	Text string
}

// PromptFiltered reports a prompt rejected by the service's safety filter.
type PromptFiltered struct {
	Reason string
	Text   string
}

// AudioChunk is one decoded PCM payload. Metadata is passed through untouched.
type AudioChunk struct {
	Data     []byte
	MIMEType string
	Metadata json.RawMessage
}

// AudioChunks carries the chunks of one server content frame. Dropped holds
// one error per chunk whose payload could not be decoded.
type AudioChunks struct {
	Chunks  []AudioChunk
	Dropped []error
}

func (HandshakeComplete) inbound() {}
func (Warning) inbound()           {}
func (PromptFiltered) inbound()    {}
func (AudioChunks) inbound()       {}
