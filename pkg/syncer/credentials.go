package syncer

import (
	"context"
	"fmt"

	"github.com/jdziat/credibility-sync/pkg/core"
)

// CredentialProvider returns the bearer credential used to fetch a target.
// It returns core.ErrNotLinked when the user has not linked the account.
type CredentialProvider interface {
	Token(ctx context.Context, t core.SyncTarget) (string, error)
}

// CredentialFunc adapts a function to CredentialProvider.
type CredentialFunc func(ctx context.Context, t core.SyncTarget) (string, error)

// Token implements CredentialProvider.
func (f CredentialFunc) Token(ctx context.Context, t core.SyncTarget) (string, error) {
	return f(ctx, t)
}

// StaticCredentials uses one service token per source, for deployments
// that fetch public data through an application credential.
type StaticCredentials map[core.Source]string

// Token implements CredentialProvider.
func (s StaticCredentials) Token(_ context.Context, t core.SyncTarget) (string, error) {
	tok, ok := s[t.Source]
	if !ok || tok == "" {
		return "", fmt.Errorf("%w: %s", core.ErrNotLinked, t.Source)
	}
	return tok, nil
}
