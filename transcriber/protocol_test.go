package transcriber

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestConfigJSON(t *testing.T) {
	data, err := json.Marshal(NewConfig("k-1", ""))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"api_key":"k-1","model":"stt-rt-preview","audio_format":"pcm_s16le","sample_rate":16000,"num_channels":1}`
	if string(data) != want {
		t.Errorf("got  %s\nwant %s", data, want)
	}
}

func TestConfigCustomModel(t *testing.T) {
	if got := NewConfig("k", "stt-rt-v2").Model; got != "stt-rt-v2" {
		t.Errorf("model = %q", got)
	}
}

func TestParseResponse(t *testing.T) {
	r, err := parseResponse([]byte(`{"tokens":[{"text":"hi","is_final":true},{"text":" there"}],"finished":false}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Tokens) != 2 || !r.Tokens[0].IsFinal || r.Tokens[1].IsFinal || r.Tokens[1].Text != " there" {
		t.Errorf("tokens = %+v", r.Tokens)
	}
	if r.Err() != nil {
		t.Errorf("unexpected error %v", r.Err())
	}

	if _, err := parseResponse([]byte(`{"tokens":[`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestResponseErr(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"code and message", `{"error_code":401,"error_message":"bad key"}`, "remote error 401: bad key"},
		{"message only", `{"error_message":"quota"}`, "remote error 0: quota"},
		{"code only", `{"error_code":503}`, "remote error 503: unknown error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := parseResponse([]byte(tt.in))
			if err != nil {
				t.Fatal(err)
			}
			rerr := r.Err()
			var re *RemoteError
			if !errors.As(rerr, &re) {
				t.Fatalf("got %v, want *RemoteError", rerr)
			}
			if rerr.Error() != tt.want {
				t.Errorf("got %q, want %q", rerr.Error(), tt.want)
			}
		})
	}
}

func TestPrimingFrameIsSilence(t *testing.T) {
	p := primingFrame()
	if len(p) != 3200 {
		t.Fatalf("len = %d, want 3200", len(p))
	}
	if strings.Trim(string(p), "\x00") != "" {
		t.Error("priming frame should be all zero")
	}
}
