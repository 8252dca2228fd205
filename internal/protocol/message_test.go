package protocol

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func str(s string) []byte {
	return appendString(nil, s)
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestChat_MarshalBinary(t *testing.T) {
	t.Parallel()

	got, err := (&Chat{Text: "hi"}).MarshalBinary()
	require.NoError(t, err)

	want := []byte{0, 0, 0, 3, 'M', 'S', 'G', 0, 0, 0, 2, 'h', 'i'}
	assert.Equal(t, want, got)
}

func TestFileAnnounce_MarshalBinary(t *testing.T) {
	t.Parallel()

	got, err := (&FileAnnounce{Filename: "a.txt", Size: 258}).MarshalBinary()
	require.NoError(t, err)

	want := concat(str("FILE"), str("a.txt"), []byte{0, 0, 0, 0, 0, 0, 1, 2})
	assert.Equal(t, want, got)
}

func TestDecode(t *testing.T) {
	t.Parallel()

	size := binary.BigEndian.AppendUint64(nil, 1024)

	tests := []struct {
		name    string
		b       []byte
		want    Message
		wantErr error
	}{
		{
			name: "user with room",
			b:    concat(str("USER"), str("alice"), str("games")),
			want: &Join{Username: "alice", Room: "games"},
		},
		{
			name: "user with empty room",
			b:    concat(str("USER"), str("alice"), str("")),
			want: &Join{Username: "alice"},
		},
		{
			name: "join",
			b:    concat(str("JOIN"), str("games")),
			want: &ChangeRoom{Room: "games"},
		},
		{
			name: "msg",
			b:    concat(str("MSG"), str("hello, world")),
			want: &Chat{Text: "hello, world"},
		},
		{
			name: "file",
			b:    concat(str("FILE"), str("notes.pdf"), size),
			want: &FileAnnounce{Filename: "notes.pdf", Size: 1024},
		},
		{
			name:    "unknown header",
			b:       concat(str("PING")),
			wantErr: ErrUnknownHeader,
		},
		{
			name:    "empty payload",
			b:       nil,
			wantErr: ErrMalformed,
		},
		{
			name:    "user without room",
			b:       concat(str("USER"), str("alice")),
			wantErr: ErrMalformed,
		},
		{
			name:    "string length beyond payload",
			b:       concat(str("MSG"), []byte{0, 0, 0, 9, 'h', 'i'}),
			wantErr: ErrMalformed,
		},
		{
			name:    "file with short size",
			b:       concat(str("FILE"), str("x"), []byte{0, 1}),
			wantErr: ErrMalformed,
		},
		{
			name:    "trailing bytes",
			b:       concat(str("MSG"), str("hi"), []byte{0}),
			wantErr: ErrMalformed,
		},
		{
			name:    "invalid utf8",
			b:       concat(str("MSG"), []byte{0, 0, 0, 2, 0xff, 0xfe}),
			wantErr: ErrMalformed,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Decode(tt.b)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_MarshalledMessages(t *testing.T) {
	t.Parallel()

	msgs := []Message{
		&Join{Username: "bob", Room: "lobby"},
		&ChangeRoom{Room: ""},
		&Chat{Text: "héllo"},
		&FileAnnounce{Filename: "f", Size: 1<<40 + 7},
	}

	for _, m := range msgs {
		b, err := m.MarshalBinary()
		require.NoError(t, err)

		got, err := Decode(b)
		require.NoError(t, err)
		assert.Equal(t, m, got)
		assert.Equal(t, m.Header(), got.Header())
	}
}

func TestNotice_UnmarshalBinary(t *testing.T) {
	t.Parallel()

	var n Notice
	require.NoError(t, n.UnmarshalBinary(str("[12:00:00] alice: hello")))
	assert.Equal(t, "[12:00:00] alice: hello", n.Text)

	assert.ErrorIs(t, n.UnmarshalBinary([]byte{0, 0}), ErrMalformed)
	assert.ErrorIs(t, n.UnmarshalBinary(concat(str("a"), str("b"))), ErrMalformed)
}
