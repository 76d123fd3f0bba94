package wire

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// DecodeError describes an inbound frame, or one field of it, that could not
// be decoded.
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return "wire: decode: " + e.Err.Error()
	}
	return fmt.Sprintf("wire: decode %s: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

var errUnrecognized = errors.New("unrecognized message shape")

// alias is the pair of accepted spellings for one inbound field. The service
// has been observed emitting either convention.
type alias [2]string

var (
	fieldSetupComplete  = alias{"setupComplete", "setup_complete"}
	fieldWarning        = alias{"warning", "warning"}
	fieldFilteredPrompt = alias{"filteredPrompt", "filtered_prompt"}
	fieldFilteredReason = alias{"filteredReason", "filtered_reason"}
	fieldReason         = alias{"reason", "reason"}
	fieldText           = alias{"text", "text"}
	fieldServerContent  = alias{"serverContent", "server_content"}
	fieldAudioChunks    = alias{"audioChunks", "audio_chunks"}
	fieldData           = alias{"data", "data"}
	fieldMIMEType       = alias{"mimeType", "mime_type"}
	fieldSourceMetadata = alias{"sourceMetadata", "source_metadata"}
)

type object map[string]json.RawMessage

// lookup returns the first present spelling. An explicit null counts as absent.
func (o object) lookup(a alias) (json.RawMessage, bool) {
	for _, name := range a {
		if raw, ok := o[name]; ok && !isNull(raw) {
			return raw, true
		}
	}
	return nil, false
}

func (o object) has(a alias) bool {
	_, ok := o.lookup(a)
	return ok
}

func (o object) str(a alias) (string, error) {
	raw, ok := o.lookup(a)
	if !ok {
		return "", nil
	}
	var s string
	if err := codec.Unmarshal(raw, &s); err != nil {
		return "", &DecodeError{Field: a[0], Err: err}
	}
	return s, nil
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func parseObject(raw json.RawMessage, field string) (object, error) {
	var o object
	if err := codec.Unmarshal(raw, &o); err != nil {
		return nil, &DecodeError{Field: field, Err: err}
	}
	if o == nil {
		return nil, &DecodeError{Field: field, Err: errors.New("not an object")}
	}
	return o, nil
}

// Decode parses one inbound frame into exactly one Event. Frames of an unknown
// shape are a *DecodeError, not an event.
func Decode(data []byte) (Event, error) {
	msg, err := parseObject(data, "")
	if err != nil {
		return nil, err
	}

	switch {
	case msg.has(fieldSetupComplete):
		return HandshakeComplete{}, nil

	case msg.has(fieldWarning):
		text, err := msg.str(fieldWarning)
		if err != nil {
			return nil, err
		}
		return Warning{Text: text}, nil

	case msg.has(fieldFilteredPrompt):
		raw, _ := msg.lookup(fieldFilteredPrompt)
		payload, err := parseObject(raw, fieldFilteredPrompt[0])
		if err != nil {
			return nil, err
		}
		var ev PromptFiltered
		if ev.Reason, err = payload.str(fieldFilteredReason); err != nil {
			return nil, err
		}
		if ev.Reason == "" {
			if ev.Reason, err = payload.str(fieldReason); err != nil {
				return nil, err
			}
		}
		if ev.Text, err = payload.str(fieldText); err != nil {
			return nil, err
		}
		return ev, nil

	case msg.has(fieldServerContent):
		raw, _ := msg.lookup(fieldServerContent)
		return decodeServerContent(raw)
	}

	return nil, &DecodeError{Err: errUnrecognized}
}

func decodeServerContent(raw json.RawMessage) (Event, error) {
	content, err := parseObject(raw, fieldServerContent[0])
	if err != nil {
		return nil, err
	}

	var ev AudioChunks
	list, ok := content.lookup(fieldAudioChunks)
	if !ok {
		return ev, nil
	}
	var items []json.RawMessage
	if err := codec.Unmarshal(list, &items); err != nil {
		return nil, &DecodeError{Field: fieldAudioChunks[0], Err: err}
	}

	for i, item := range items {
		chunk, skip, err := decodeChunk(item)
		if err != nil {
			ev.Dropped = append(ev.Dropped, fmt.Errorf("chunk %d: %w", i, err))
			continue
		}
		if skip {
			continue
		}
		ev.Chunks = append(ev.Chunks, chunk)
	}
	return ev, nil
}

// decodeChunk decodes one audio chunk. A chunk without data is skipped.
func decodeChunk(raw json.RawMessage) (chunk AudioChunk, skip bool, err error) {
	obj, err := parseObject(raw, "audioChunk")
	if err != nil {
		return chunk, false, err
	}
	encoded, err := obj.str(fieldData)
	if err != nil {
		return chunk, false, err
	}
	if encoded == "" {
		return chunk, true, nil
	}
	chunk.Data, err = base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return chunk, false, &DecodeError{Field: fieldData[0], Err: err}
	}
	if chunk.MIMEType, err = obj.str(fieldMIMEType); err != nil {
		return chunk, false, err
	}
	if meta, ok := obj.lookup(fieldSourceMetadata); ok {
		chunk.Metadata = append(json.RawMessage(nil), meta...)
	}
	return chunk, false, nil
}
