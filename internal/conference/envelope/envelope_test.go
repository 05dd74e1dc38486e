package envelope

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type pose struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
	Z float64 `json:"z" msgpack:"z"`
}

func TestRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatMsgPack} {
		t.Run(string(format), func(t *testing.T) {
			c, err := New(format)
			require.NoError(t, err)

			data, err := c.Encode("userMoved", pose{X: 1, Y: 2, Z: 3})
			require.NoError(t, err)

			msg, err := c.Decode(data)
			require.NoError(t, err)
			assert.Equal(t, "userMoved", msg.Command)

			var p pose
			require.NoError(t, msg.Bind(&p))
			assert.Equal(t, pose{X: 1, Y: 2, Z: 3}, p)
		})
	}
}

func TestForeignFingerprintRejected(t *testing.T) {
	c, err := New(FormatJSON)
	require.NoError(t, err)

	other, err := json.Marshal(map[string]any{"fingerprint": "Other", "command": "userMoved", "value": pose{}})
	require.NoError(t, err)
	_, err = c.Decode(other)
	assert.ErrorIs(t, err, ErrForeign)

	_, err = c.Decode([]byte(`{"command":"userMoved"}`))
	assert.ErrorIs(t, err, ErrForeign)

	_, err = c.Decode([]byte("not json"))
	assert.ErrorIs(t, err, ErrForeign)
}

func TestForeignFingerprintRejectedMsgPack(t *testing.T) {
	c, err := New(FormatMsgPack)
	require.NoError(t, err)

	other, err := msgpack.Marshal(&msgpackFrame{Fingerprint: "Other", Command: "emote"})
	require.NoError(t, err)
	_, err = c.Decode(other)
	assert.ErrorIs(t, err, ErrForeign)
}

func TestCommandWithoutValue(t *testing.T) {
	c, err := New("")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, c.Format())

	data, err := c.Encode("userInitRequest", nil)
	require.NoError(t, err)

	msg, err := c.Decode(data)
	require.NoError(t, err)
	assert.False(t, msg.HasValue())
	assert.Error(t, msg.Bind(&pose{}))
}

func TestUnsupportedFormat(t *testing.T) {
	_, err := New("xml")
	assert.Error(t, err)
}
