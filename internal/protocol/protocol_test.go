package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecode_Login(t *testing.T) {
	req := require.New(t)

	envelope, err := Decode([]byte(`{"type":"Login","name":"alice"}`))

	req.NoError(err)
	req.Equal(Login{Name: "alice"}, envelope)
}

func TestDecode_Message(t *testing.T) {
	req := require.New(t)

	envelope, err := Decode([]byte(`{"type":"Message","chatter":"alice","text":"hi"}`))

	req.NoError(err)
	req.Equal(Chat{Chatter: "alice", Text: "hi"}, envelope)
}

func TestDecode_MessageWithEmptyChatter(t *testing.T) {
	req := require.New(t)

	envelope, err := Decode([]byte(`{"type":"Message","chatter":"","text":"hi"}`))

	req.NoError(err)
	req.Equal(Chat{Chatter: "", Text: "hi"}, envelope)
}

func TestDecode_IgnoresUnknownFields(t *testing.T) {
	req := require.New(t)

	envelope, err := Decode([]byte(`{"type":"Login","name":"alice","color":"red"}`))

	req.NoError(err)
	req.Equal(Login{Name: "alice"}, envelope)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{name: "not json", raw: `hello`, wantErr: ErrMalformed},
		{name: "json array", raw: `["Login"]`, wantErr: ErrMalformed},
		{name: "type is not a string", raw: `{"type":5}`, wantErr: ErrMalformed},
		{name: "missing type", raw: `{"name":"alice"}`, wantErr: ErrMissingType},
		{name: "null", raw: `null`, wantErr: ErrMissingType},
		{name: "unknown type", raw: `{"type":"Logout","name":"alice"}`, wantErr: ErrUnknownType},
		{name: "outbound tag sent inbound", raw: `{"type":"Chatters","chatters":[]}`, wantErr: ErrUnknownType},
		{name: "empty login name", raw: `{"type":"Login","name":""}`, wantErr: ErrInvalidEnvelope},
		{name: "login without name", raw: `{"type":"Login"}`, wantErr: ErrInvalidEnvelope},
		{name: "login name is null", raw: `{"type":"Login","name":null}`, wantErr: ErrInvalidEnvelope},
		{name: "login field name in another case", raw: `{"type":"Login","NAME":"alice"}`, wantErr: ErrInvalidEnvelope},
		{name: "message without chatter", raw: `{"type":"Message","text":"hi"}`, wantErr: ErrInvalidEnvelope},
		{name: "message without text", raw: `{"type":"Message","chatter":"alice"}`, wantErr: ErrInvalidEnvelope},
		{name: "message field name in another case", raw: `{"type":"Message","Chatter":"alice","text":"hi"}`, wantErr: ErrInvalidEnvelope},
		{name: "type is null", raw: `{"type":null,"name":"alice"}`, wantErr: ErrMissingType},
		{name: "text of wrong kind", raw: `{"type":"Message","chatter":"alice","text":[]}`, wantErr: ErrMalformed},
		{name: "name of wrong kind", raw: `{"type":"Login","name":42}`, wantErr: ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envelope, err := Decode([]byte(tt.raw))
			require.ErrorIs(t, err, tt.wantErr)
			require.Nil(t, envelope)
		})
	}
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		msg  Outbound
		want string
	}{
		{
			name: "login ack",
			msg:  LoginAck{Text: "alice"},
			want: `{"type":"LoginSystem","text":"alice"}`,
		},
		{
			name: "join notice",
			msg:  JoinNotice{Text: "alice joined!"},
			want: `{"type":"JoinSystem","text":"alice joined!"}`,
		},
		{
			name: "chat message",
			msg:  ChatMessage{Chatter: "alice", Time: 1700000000123, Text: "hi"},
			want: `{"type":"Message","chatter":"alice","time":1700000000123,"text":"hi"}`,
		},
		{
			name: "roster",
			msg:  RosterSnapshot{Chatters: []string{"alice", "bob"}},
			want: `{"type":"Chatters","chatters":["alice","bob"]}`,
		},
		{
			name: "empty roster is an empty array",
			msg:  RosterSnapshot{},
			want: `{"type":"Chatters","chatters":[]}`,
		},
		{
			name: "login rejected",
			msg:  LoginRejected{Text: "alice is already taken"},
			want: `{"type":"LoginRejected","text":"alice is already taken"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := Encode(tt.msg)
			require.NoError(t, err)
			require.JSONEq(t, tt.want, string(payload))
		})
	}
}

func TestEncode_Nil(t *testing.T) {
	_, err := Encode(nil)

	require.ErrorIs(t, err, ErrUnknownType)
}
