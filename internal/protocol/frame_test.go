package protocol

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFrame(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("abc")))
	assert.Equal(t, []byte{0, 0, 0, 3, 'a', 'b', 'c'}, buf.Bytes())
}

func TestReadFrame(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      []byte
		max     int
		want    []byte
		wantErr error
	}{
		{
			name: "single frame",
			in:   []byte{0, 0, 0, 2, 'h', 'i'},
			want: []byte("hi"),
		},
		{
			name: "empty frame",
			in:   []byte{0, 0, 0, 0},
			want: []byte{},
		},
		{
			name:    "clean eof",
			in:      nil,
			wantErr: io.EOF,
		},
		{
			name:    "truncated header",
			in:      []byte{0, 0},
			wantErr: io.ErrUnexpectedEOF,
		},
		{
			name:    "truncated payload",
			in:      []byte{0, 0, 0, 5, 'h'},
			wantErr: io.ErrUnexpectedEOF,
		},
		{
			name:    "over limit",
			in:      []byte{0, 0, 1, 0},
			max:     16,
			wantErr: ErrFrameTooLarge,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ReadFrame(bytes.NewReader(tt.in), tt.max)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadFrame_Sequence(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	for _, m := range []Message{&Chat{Text: "one"}, &ChangeRoom{Room: "two"}} {
		b, err := m.MarshalBinary()
		require.NoError(t, err)
		require.NoError(t, WriteFrame(&buf, b))
	}

	first, err := ReadFrame(&buf, 0)
	require.NoError(t, err)
	m, err := Decode(first)
	require.NoError(t, err)
	assert.Equal(t, &Chat{Text: "one"}, m)

	second, err := ReadFrame(&buf, 0)
	require.NoError(t, err)
	m, err = Decode(second)
	require.NoError(t, err)
	assert.Equal(t, &ChangeRoom{Room: "two"}, m)

	_, err = ReadFrame(&buf, 0)
	assert.ErrorIs(t, err, io.EOF)
}
