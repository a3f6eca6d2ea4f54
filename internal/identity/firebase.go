package identity

import (
	"context"
	"fmt"
	"os"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
)

// Firebase is a Gate backed by Firebase Authentication. The mobile app
// performs the phone-OTP sign-in; this client is handed the resulting ID
// token (on disk, written by the sign-in tool) and verifies it to
// establish the local uid.
type Firebase struct {
	*state
	auth      *auth.Client
	tokenPath string
	logger    *zap.Logger
}

// NewFirebase creates the gate and attempts an initial sign-in from the
// stored token. A missing or invalid token is not an error: the gate
// starts signed out and Refresh can be called after the token is renewed.
func NewFirebase(ctx context.Context, app *firebase.App, tokenPath string, logger *zap.Logger) (*Firebase, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("create auth client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Firebase{
		state:     newState(),
		auth:      client,
		tokenPath: tokenPath,
		logger:    logger,
	}
	if err := g.Refresh(ctx); err != nil {
		logger.Info("starting signed out", zap.Error(err))
	}
	return g, nil
}

// Refresh re-reads the stored ID token, verifies it, and updates the
// current identity. Watchers are notified if the uid changed.
func (g *Firebase) Refresh(ctx context.Context) error {
	raw, err := os.ReadFile(g.tokenPath)
	if err != nil {
		g.set("")
		return fmt.Errorf("read token: %w", err)
	}
	token, err := g.auth.VerifyIDToken(ctx, strings.TrimSpace(string(raw)))
	if err != nil {
		g.set("")
		return fmt.Errorf("verify token: %w", err)
	}
	g.logger.Info("signed in", zap.String("uid", token.UID))
	g.set(token.UID)
	return nil
}

// SignOut clears the identity and notifies watchers.
func (g *Firebase) SignOut() {
	g.set("")
}
