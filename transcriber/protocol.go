package transcriber

import (
	"encoding/json"
	"errors"
	"fmt"

	"voxkey/audio"
)

const (
	DefaultEndpoint = "wss://stt-rt.soniox.com/transcribe-websocket"
	DefaultModel    = "stt-rt-preview"

	AudioFormat = "pcm_s16le"

	// PrimingSamples of silence are sent before the first captured frame.
	PrimingSamples = 1600
)

var (
	ErrConnectFailed    = errors.New("connect to transcription service failed")
	ErrConfigSendFailed = errors.New("send session config failed")
	ErrPrimingFailed    = errors.New("send priming audio failed")
	ErrTransportDropped = errors.New("transcription connection dropped")
)

// Config is the first message of every session.
type Config struct {
	APIKey      string `json:"api_key"`
	Model       string `json:"model"`
	AudioFormat string `json:"audio_format"`
	SampleRate  int    `json:"sample_rate"`
	NumChannels int    `json:"num_channels"`
}

// NewConfig returns the session config for 16 kHz mono PCM16. An empty model
// selects DefaultModel.
func NewConfig(apiKey, model string) Config {
	if model == "" {
		model = DefaultModel
	}
	return Config{
		APIKey:      apiKey,
		Model:       model,
		AudioFormat: AudioFormat,
		SampleRate:  audio.TargetSampleRate,
		NumChannels: 1,
	}
}

type Token struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

type Response struct {
	Tokens       []Token `json:"tokens"`
	Finished     bool    `json:"finished"`
	ErrorCode    *int    `json:"error_code,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
}

// Err returns the remote error carried by the response, if any.
func (r *Response) Err() error {
	if r.ErrorCode == nil && r.ErrorMessage == nil {
		return nil
	}
	e := &RemoteError{Message: "unknown error"}
	if r.ErrorCode != nil {
		e.Code = *r.ErrorCode
	}
	if r.ErrorMessage != nil {
		e.Message = *r.ErrorMessage
	}
	return e
}

// RemoteError is an error reported by the service. It ends the session.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}

func parseResponse(data []byte) (*Response, error) {
	var r Response
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func primingFrame() []byte {
	return make([]byte, PrimingSamples*2)
}
