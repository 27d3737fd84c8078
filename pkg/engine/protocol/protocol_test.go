package protocol

import (
	"encoding/json"
	"testing"

	"github.com/liveassist-ai/liveassist-go/pkg/core/types"
)

func TestDecodeServerFrame_Joined(t *testing.T) {
	t.Parallel()

	data := []byte(`{
		"type": "joined",
		"snapshot": {
			"session": {"id": "sess_1", "role": "host", "status": "in_progress"},
			"fragments": [{"text": "hello", "timestamp_ms": 1000, "source": "mic"}],
			"messages": [{"kind": "answer", "content": "Sure."}],
			"captures": [{"id": "cap_1", "image_ref": "s3://shots/1.png"}]
		}
	}`)

	frame, err := DecodeServerFrame(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	joined, ok := frame.(ServerJoined)
	if !ok {
		t.Fatalf("frame type %T, want ServerJoined", frame)
	}
	if joined.Snapshot.Session.ID != "sess_1" {
		t.Errorf("session id = %q", joined.Snapshot.Session.ID)
	}
	if joined.Snapshot.Session.Status != types.StatusInProgress {
		t.Errorf("status = %q", joined.Snapshot.Session.Status)
	}
	if len(joined.Snapshot.Fragments) != 1 || joined.Snapshot.Fragments[0].Text != "hello" {
		t.Errorf("fragments = %+v", joined.Snapshot.Fragments)
	}
	if len(joined.Snapshot.Messages) != 1 || joined.Snapshot.Messages[0].Kind != types.KindAnswer {
		t.Errorf("messages = %+v", joined.Snapshot.Messages)
	}
	if len(joined.Snapshot.Captures) != 1 {
		t.Errorf("captures = %+v", joined.Snapshot.Captures)
	}
}

func TestDecodeServerFrame_StreamFrames(t *testing.T) {
	t.Parallel()

	frame, err := DecodeServerFrame([]byte(`{"type": "ai_token", "kind": "code", "token": "func"}`))
	if err != nil {
		t.Fatalf("decode token: %v", err)
	}
	token, ok := frame.(ServerAIToken)
	if !ok || token.Kind != types.KindCode || token.Token != "func" {
		t.Fatalf("token frame = %#v", frame)
	}

	frame, err = DecodeServerFrame([]byte(`{"type": "ai_status", "kind": "answer", "status": "running"}`))
	if err != nil {
		t.Fatalf("decode status: %v", err)
	}
	status, ok := frame.(ServerAIStatus)
	if !ok || status.Status != "running" {
		t.Fatalf("status frame = %#v", frame)
	}

	frame, err = DecodeServerFrame([]byte(`{"type": "transcript_chunk", "text": "so", "timestamp_ms": 9, "source": "peer", "interim": true}`))
	if err != nil {
		t.Fatalf("decode chunk: %v", err)
	}
	chunk, ok := frame.(ServerTranscriptChunk)
	if !ok || !chunk.Interim || chunk.Source != types.SourceCounterpart {
		t.Fatalf("chunk frame = %#v", frame)
	}
}

func TestDecodeServerFrame_ErrorCarriesCode(t *testing.T) {
	t.Parallel()

	frame, err := DecodeServerFrame([]byte(`{"type": "error", "message": "bad join code", "code": "bad_credential"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	serverErr, ok := frame.(ServerError)
	if !ok {
		t.Fatalf("frame type %T", frame)
	}
	if serverErr.Code != CodeBadCredential || serverErr.Message != "bad join code" {
		t.Fatalf("error frame = %#v", serverErr)
	}
}

func TestDecodeServerFrame_MissingTypeRejected(t *testing.T) {
	t.Parallel()

	if _, err := DecodeServerFrame([]byte(`{"message": "hm"}`)); err == nil {
		t.Fatal("expected error for missing type")
	}
	if _, err := DecodeServerFrame([]byte(`not json`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestDecodeServerFrame_UnknownTypePreserved(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"type": "peer_typing", "peer": "host"}`)
	frame, err := DecodeServerFrame(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	unknown, ok := frame.(UnknownFrame)
	if !ok {
		t.Fatalf("frame type %T, want UnknownFrame", frame)
	}
	if unknown.Type != "peer_typing" {
		t.Errorf("type = %q", unknown.Type)
	}
	var payload map[string]any
	if err := json.Unmarshal(unknown.Raw, &payload); err != nil {
		t.Fatalf("raw payload not preserved: %v", err)
	}
	if payload["peer"] != "host" {
		t.Errorf("payload = %v", payload)
	}
}

func TestClientJoin_WireShape(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(ClientJoin{
		Type:            TypeJoin,
		ProtocolVersion: ProtocolVersion1,
		SessionID:       "sess_1",
		JoinCode:        "123456",
		Role:            types.RoleGuest,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var wire map[string]any
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for key, want := range map[string]string{
		"type":             "join",
		"protocol_version": "1",
		"session_id":       "sess_1",
		"join_code":        "123456",
		"role":             "guest",
	} {
		if wire[key] != want {
			t.Errorf("%s = %v, want %q", key, wire[key], want)
		}
	}
}
