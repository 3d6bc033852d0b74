package action

import (
	"context"
	"strings"

	"github.com/autoqliq/autoqliq/pkg/errors"
)

// Credential is one secret record from the credential store.
type Credential struct {
	Name     string            `json:"name"`
	Username string            `json:"username"`
	Password string            `json:"password"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// Field resolves a named field. "username" and "password" address the fixed
// fields; anything else is looked up in the extension map.
func (c *Credential) Field(name string) (string, bool) {
	switch strings.ToLower(name) {
	case "username":
		return c.Username, true
	case "password":
		return c.Password, true
	default:
		v, ok := c.Fields[name]
		return v, ok
	}
}

// CredentialProvider is the credential collaborator the executor consumes.
// Get returns (nil, nil) when no credential with that name exists.
type CredentialProvider interface {
	Get(ctx context.Context, name string) (*Credential, error)
}

// ResolveCredentialValue parses a "<credential>.<field>" key, fetches the
// credential, and reads the field. Missing credential or field is a
// credential error; so is a malformed key.
func ResolveCredentialValue(ctx context.Context, provider CredentialProvider, valueKey string) (string, error) {
	credName, field, ok := strings.Cut(valueKey, ".")
	if !ok || credName == "" || field == "" {
		return "", errors.Newf(errors.KindCredential,
			"malformed credential key %q (expected \"<credential>.<field>\")", valueKey)
	}
	if provider == nil {
		return "", errors.NewCredential(credName, "no credential provider configured")
	}
	cred, err := provider.Get(ctx, credName)
	if err != nil {
		return "", errors.Wrap(errors.KindCredential, "credential lookup failed", err).
			With(errors.CtxCredentialName, credName)
	}
	if cred == nil {
		return "", errors.NewCredential(credName, "credential not found")
	}
	value, ok := cred.Field(field)
	if !ok {
		return "", errors.NewCredential(credName, "credential has no field "+field)
	}
	return value, nil
}
