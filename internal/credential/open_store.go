package credential

// OpenStore accepts any credential for any MUD name. It implements the
// documented source behavior spec §4.6 describes for deployments without a
// configured Credential Store: a bare {mudName} auth payload is treated as
// "unauthenticated but connected." Selecting this implementation is the
// gateway's requireCredential=false configuration path (spec §6).
type OpenStore struct{}

func (OpenStore) IssueCredential(mudName, adminSecret string) (string, error) { return "", nil }
func (OpenStore) Validate(mudName, credential string) bool                    { return true }
func (OpenStore) Revoke(mudName string) error                                 { return nil }
