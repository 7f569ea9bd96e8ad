package rfboard

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSE(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSSE(&buf, []byte(`{"state_of_charge":66}`)))
	require.NoError(t, WriteSSE(&buf, nil))
	require.NoError(t, WriteSSE(&buf, []byte(`{"state_of_charge":65}`)))

	event, err := ReadSSE(&buf)
	require.NoError(t, err)
	assert.Equal(t, `{"state_of_charge":66}`, string(event))

	event, err = ReadSSE(&buf)
	require.NoError(t, err)
	assert.Empty(t, event)

	event, err = ReadSSE(&buf)
	require.NoError(t, err)
	assert.Equal(t, `{"state_of_charge":65}`, string(event))

	_, err = ReadSSE(&buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadSSE_TooLarge(t *testing.T) {
	_, err := ReadSSE(strings.NewReader(strings.Repeat("x", MaxSSE+1)))
	assert.ErrorIs(t, err, ErrSSETooLarge)
}
