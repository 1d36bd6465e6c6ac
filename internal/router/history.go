package router

import (
	"context"

	"github.com/mudmesh/gateway/internal/logging"
	"github.com/mudmesh/gateway/internal/registry"
	"github.com/mudmesh/gateway/internal/wire"
)

// defaultHistoryRingCap is the per-kind bound spec §3/§6 documents
// (`historyRingSize`, default 1000), used when New is not given an
// explicit size.
const defaultHistoryRingCap = 1000

// appendHistory pushes env onto the bounded ring for its kind and trims it
// to ringCap. Best-effort: a registry failure is logged, never reflected to
// the sender (spec §4.3 step 5, §4.7 failure policy).
func appendHistory(ctx context.Context, reg registry.Registry, codec *wire.Codec, env wire.Envelope, ringCap int) {
	raw, err := codec.Encode(env)
	if err != nil {
		logging.Router().Warn().Err(err).Msg("failed to encode envelope for history ring")
		return
	}
	key := registry.MessageHistoryKey(string(env.Type))
	if err := reg.ListPush(ctx, key, string(raw)); err != nil {
		logging.Router().Warn().Err(err).Str("kind", string(env.Type)).Msg("failed to push history entry")
		return
	}
	if err := reg.ListTrim(ctx, key, -ringCap, -1); err != nil {
		logging.Router().Warn().Err(err).Str("kind", string(env.Type)).Msg("failed to trim history ring")
	}
}
