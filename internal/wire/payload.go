package wire

// validatePayload enforces the per-kind payload schema in spec §4.1. The
// schemas are exhaustive: every field referenced by the Router or
// Gateway-Handled Ops for a given kind is checked here so that downstream
// code can assume the shape it needs without re-checking.
func validatePayload(env Envelope) *DecodeError {
	switch env.Type {
	case KindTell:
		return requireNonEmptyString(env, "message", 1, 4096)

	case KindEmote, KindEmoteTo:
		if _, ok := env.payloadString("action"); !ok {
			return errSchema("payload.action", "required for emote")
		}

	case KindChannel:
		if _, ok := env.payloadString("channel"); !ok {
			return errSchema("payload.channel", "required for channel message")
		}
		action, hasAction := env.payloadString("action")
		if hasAction {
			switch action {
			case "join", "leave", "list":
				return nil
			case "message":
				return requireNonEmptyString(env, "message", 1, 4096)
			default:
				return errSchema("payload.action", "must be one of join, leave, list, message")
			}
		}
		// No action implies a plain channel message.
		return requireNonEmptyString(env, "message", 1, 4096)

	case KindWho:
		if !env.PayloadBool("request") {
			return errSchema("payload.request", "who requests must set request=true")
		}
		if sort, ok := env.payloadString("sort"); ok {
			switch sort {
			case "alpha", "idle", "level", "random":
			default:
				return errSchema("payload.sort", "must be one of alpha, idle, level, random")
			}
		}
		if format, ok := env.payloadString("format"); ok {
			switch format {
			case "short", "long":
			default:
				return errSchema("payload.format", "must be one of short, long")
			}
		}

	case KindFinger, KindLocate:
		if _, ok := env.payloadString("user"); !ok {
			return errSchema("payload.user", "required")
		}
		if !env.PayloadBool("request") {
			return errSchema("payload.request", "must be true")
		}

	case KindPing, KindPong:
		if _, ok := env.Payload["timestamp"]; !ok {
			return errSchema("payload.timestamp", "required")
		}

	case KindAuth:
		if _, ok := env.payloadString("mudName"); !ok {
			return errSchema("payload.mudName", "required")
		}

	case KindMudlist, KindChannels:
		// Requests and replies share this kind; the payload is not
		// checked, so any payload (with or without request=true) is
		// accepted.

	case KindError:
		// The payload of an error frame is not checked.
	}
	return nil
}

func requireNonEmptyString(env Envelope, field string, min, max int) *DecodeError {
	v, ok := env.payloadString(field)
	if !ok {
		return errSchema("payload."+field, "required")
	}
	if len(v) < min || len(v) > max {
		return errSchema("payload."+field, "length out of range")
	}
	return nil
}
