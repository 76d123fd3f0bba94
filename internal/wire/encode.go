package wire

import "fmt"

type setupFrame struct {
	Setup struct {
		Model string `json:"model"`
	} `json:"setup"`
}

type promptOut struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

type promptsFrame struct {
	ClientContent struct {
		WeightedPrompts []promptOut `json:"weightedPrompts"`
	} `json:"clientContent"`
}

type configFrame struct {
	MusicGenerationConfig GenerationConfig `json:"musicGenerationConfig"`
}

type playbackFrame struct {
	PlaybackControl PlaybackControl `json:"playbackControl"`
}

// EncodeSetup builds the handshake frame naming the model.
func EncodeSetup(model string) ([]byte, error) {
	var f setupFrame
	f.Setup.Model = model
	return codec.Marshal(f)
}

// EncodePrompts builds the prompt-set frame. Only text and weight are sent.
func EncodePrompts(prompts []WeightedPrompt) ([]byte, error) {
	var f promptsFrame
	f.ClientContent.WeightedPrompts = make([]promptOut, 0, len(prompts))
	for _, p := range prompts {
		f.ClientContent.WeightedPrompts = append(f.ClientContent.WeightedPrompts, promptOut{Text: p.Text, Weight: p.Weight})
	}
	return codec.Marshal(f)
}

// EncodeConfig builds the generation config frame. Absent fields are omitted.
func EncodeConfig(cfg GenerationConfig) ([]byte, error) {
	return codec.Marshal(configFrame{MusicGenerationConfig: cfg})
}

// EncodePlayback builds the playback control frame.
func EncodePlayback(ctrl PlaybackControl) ([]byte, error) {
	if !ctrl.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownControl, string(ctrl))
	}
	return codec.Marshal(playbackFrame{PlaybackControl: ctrl})
}
