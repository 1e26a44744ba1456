package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyInbound(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want InboundKind
	}{
		{"offer", `{"type":"offer","sdp":"v=0..."}`, InboundOffer},
		{"candidate", `{"sdpMid":"0","sdpMLineIndex":0,"candidate":"candidate:1 1 udp ..."}`, InboundCandidate},
		{"candidate with null mid", `{"sdpMid":null,"sdpMLineIndex":null,"candidate":"candidate:1"}`, InboundCandidate},
		{"answer is not inbound", `{"type":"answer","sdp":"v=0..."}`, InboundUnknown},
		{"unknown type", `{"type":"ping"}`, InboundUnknown},
		{"empty object", `{}`, InboundUnknown},
		{"not json", `hello`, InboundUnknown},
		{"json array", `[1,2,3]`, InboundUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyInbound([]byte(tt.raw)))
		})
	}
}

func TestIceCandidate_NullableFields(t *testing.T) {
	var cand IceCandidate
	require.NoError(t, json.Unmarshal([]byte(`{"sdpMid":null,"sdpMLineIndex":null,"candidate":"candidate:1"}`), &cand))
	assert.Nil(t, cand.SDPMid)
	assert.Nil(t, cand.SDPMLineIndex)
	assert.Equal(t, "candidate:1", cand.Candidate)

	mid := "0"
	idx := uint16(0)
	out, err := json.Marshal(IceCandidate{SDPMid: &mid, SDPMLineIndex: &idx, Candidate: "candidate:2"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"sdpMid":"0","sdpMLineIndex":0,"candidate":"candidate:2"}`, string(out))
}

func TestNewAnswerMessage(t *testing.T) {
	out, err := json.Marshal(NewAnswerMessage("v=0..."))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"answer","sdp":"v=0..."}`, string(out))
}

func TestStreamMode_Capabilities(t *testing.T) {
	assert.True(t, ModeImageOnly.HasVideo())
	assert.False(t, ModeImageOnly.HasAudio())
	assert.False(t, ModeImageOnly.HasTracking())

	assert.False(t, ModeAudioOnly.HasVideo())
	assert.True(t, ModeAudioOnly.HasAudio())

	assert.True(t, ModeVideoOnly.HasVideo())
	assert.False(t, ModeVideoOnly.HasTracking())

	assert.True(t, ModeVideoAudioTracking.HasVideo())
	assert.True(t, ModeVideoAudioTracking.HasAudio())
	assert.True(t, ModeVideoAudioTracking.HasTracking())
}

func TestParseStreamMode(t *testing.T) {
	for _, mode := range []StreamMode{ModeImageOnly, ModeAudioOnly, ModeVideoOnly, ModeVideoAudioTracking} {
		parsed, err := ParseStreamMode(mode.String())
		require.NoError(t, err)
		assert.Equal(t, mode, parsed)
	}

	_, err := ParseStreamMode("vr_mode")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestUserMessage_ClassifiedFailures(t *testing.T) {
	assert.Contains(t, UserMessage(ErrEngineMissing), "not installed")
	assert.Contains(t, UserMessage(ErrCameraBusy), "in use by another application")
	assert.Contains(t, UserMessage(ErrPermissionDenied), "permission")
	assert.Empty(t, UserMessage(nil))
}
