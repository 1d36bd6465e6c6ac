package wire

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTell(t *testing.T) []byte {
	t.Helper()
	raw := `{
		"version":"1.0",
		"id":"` + uuid.New().String() + `",
		"timestamp":"` + time.Now().UTC().Format(time.RFC3339) + `",
		"type":"tell",
		"from":{"mud":"MudA","user":"alice"},
		"to":{"mud":"MudB","user":"bob"},
		"payload":{"message":"hi"},
		"metadata":{"priority":5,"ttl":300,"encoding":"utf-8","language":"en"}
	}`
	return []byte(raw)
}

func TestDecode_ValidTell(t *testing.T) {
	c := NewCodec(65536)
	env, derr := c.Decode(validTell(t))
	require.Nil(t, derr)
	assert.Equal(t, KindTell, env.Type)
	assert.Equal(t, "MudA", env.From.Mud)
}

func TestDecode_NotJSON(t *testing.T) {
	c := NewCodec(65536)
	_, derr := c.Decode([]byte("not json at all"))
	require.NotNil(t, derr)
	assert.Equal(t, NotJSON, derr.Kind)
}

func TestDecode_UnknownType(t *testing.T) {
	c := NewCodec(65536)
	raw := `{"version":"1.0","id":"` + uuid.New().String() + `","timestamp":"2025-01-26T12:00:00Z","type":"smell","from":{"mud":"A"},"to":{"mud":"B"},"payload":{},"metadata":{"priority":1,"ttl":60}}`
	_, derr := c.Decode([]byte(raw))
	require.NotNil(t, derr)
	assert.Equal(t, UnknownType, derr.Kind)
}

func TestDecode_TooLarge(t *testing.T) {
	c := NewCodec(10)
	_, derr := c.Decode(validTell(t))
	require.NotNil(t, derr)
	assert.Equal(t, TooLarge, derr.Kind)
}

func TestDecode_MissingTellMessage(t *testing.T) {
	c := NewCodec(65536)
	raw := `{"version":"1.0","id":"` + uuid.New().String() + `","timestamp":"2025-01-26T12:00:00Z","type":"tell","from":{"mud":"A"},"to":{"mud":"B"},"payload":{},"metadata":{"priority":1,"ttl":60}}`
	_, derr := c.Decode([]byte(raw))
	require.NotNil(t, derr)
	assert.Equal(t, SchemaViolation, derr.Kind)
}

func TestDecode_WrongVersion(t *testing.T) {
	c := NewCodec(65536)
	raw := `{"version":"2.0","id":"` + uuid.New().String() + `","timestamp":"2025-01-26T12:00:00Z","type":"ping","from":{"mud":"A"},"to":{"mud":"B"},"payload":{"timestamp":1},"metadata":{"priority":1,"ttl":60}}`
	_, derr := c.Decode([]byte(raw))
	require.NotNil(t, derr)
	assert.Equal(t, SchemaViolation, derr.Kind)
}

func TestIsExpired(t *testing.T) {
	env := Envelope{Timestamp: time.Now().Add(-2 * time.Minute), Metadata: Metadata{TTL: 60}}
	assert.True(t, env.IsExpired(time.Now()))

	fresh := Envelope{Timestamp: time.Now(), Metadata: Metadata{TTL: 60}}
	assert.False(t, fresh.IsExpired(time.Now()))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := NewCodec(65536)
	env, derr := c.Decode(validTell(t))
	require.Nil(t, derr)

	out, err := c.Encode(env)
	require.NoError(t, err)

	env2, derr2 := c.Decode(out)
	require.Nil(t, derr2)
	assert.Equal(t, env.ID, env2.ID)
	assert.Equal(t, env.Payload["message"], env2.Payload["message"])
}

func TestMudNameValidation(t *testing.T) {
	assert.True(t, ValidMudName("MudA"))
	assert.True(t, ValidMudName("mud-server_1"))
	assert.False(t, ValidMudName("Bad Name"))
	assert.False(t, ValidMudName("ab"))
	assert.False(t, ValidMudName(""))
}

func TestSuggestMudName(t *testing.T) {
	assert.Equal(t, "Bad-Name", SuggestMudName("Bad Name"))
	assert.Equal(t, "abc", SuggestMudName("a!@#b$%^c"))
}
