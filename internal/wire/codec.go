package wire

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

// Codec decodes, validates, and re-encodes Envelopes. It is the sole place
// the gateway trusts bytes from the wire.
//
// Grounded on the teacher's internal/validator.ValidateStruct (go-playground
// validator/v10 struct tags) generalized from HTTP JSON bodies to WebSocket
// frames, with a bluemonday policy added to strip markup from free-text
// fields before they are persisted into the history ring for operator
// introspection.
type Codec struct {
	MaxFrameBytes int
	validate      *validator.Validate
	sanitizer     *bluemonday.Policy
}

// NewCodec builds a Codec enforcing maxFrameBytes on every decode.
func NewCodec(maxFrameBytes int) *Codec {
	if maxFrameBytes <= 0 {
		maxFrameBytes = 65536
	}
	return &Codec{
		MaxFrameBytes: maxFrameBytes,
		validate:      validator.New(),
		sanitizer:     bluemonday.StrictPolicy(),
	}
}

// Decode parses and validates a raw frame. It never panics or returns a bare
// error — every failure is a *DecodeError (spec invariant: schema totality).
func (c *Codec) Decode(raw []byte) (Envelope, *DecodeError) {
	if len(raw) > c.MaxFrameBytes {
		return Envelope{}, errTooLarge(len(raw), c.MaxFrameBytes)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, errNotJSON(err.Error())
	}

	if env.Version != ProtocolVersion {
		return Envelope{}, errSchema("version", fmt.Sprintf("expected %q, got %q", ProtocolVersion, env.Version))
	}
	if !knownKinds[env.Type] {
		return Envelope{}, errUnknownType(string(env.Type))
	}
	if err := c.validate.Struct(env); err != nil {
		return Envelope{}, errSchema(firstInvalidField(err), err.Error())
	}
	if err := validatePayload(env); err != nil {
		return Envelope{}, err
	}

	c.sanitizeFreeText(&env)
	return env, nil
}

// Encode serializes an Envelope the gateway itself produced. This always
// succeeds for well-formed envelopes (spec §4.1).
func (c *Codec) Encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// sanitizeFreeText strips HTML/script markup from the handful of payload
// fields that end up rendered back to other peers or retained in the
// history ring for operator inspection.
func (c *Codec) sanitizeFreeText(env *Envelope) {
	for _, key := range []string{"message", "action"} {
		if v, ok := env.Payload[key].(string); ok {
			env.Payload[key] = c.sanitizer.Sanitize(v)
		}
	}
	if env.From.DisplayName != "" {
		env.From.DisplayName = c.sanitizer.Sanitize(env.From.DisplayName)
	}
	if env.To.DisplayName != "" {
		env.To.DisplayName = c.sanitizer.Sanitize(env.To.DisplayName)
	}
}

func firstInvalidField(err error) string {
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		return verrs[0].Field()
	}
	return ""
}
