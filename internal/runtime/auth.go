package runtime

import (
	"context"
	"log/slog"
	"os"

	"github.com/mbrt/gmailctl/cmd/gmailctl/localcred"
	"google.golang.org/api/gmail/v1"

	gc "github.com/joshsymonds/mailtriage/internal/gmail"
)

// NewGmailClient builds an authenticated client from a gmailctl-style
// credential directory. Triage mutates labels and trashes mail, so it always
// requests the modify scope.
func NewGmailClient(ctx context.Context, cfgDir string) (gc.Client, error) {
	svc, err := (localcred.Provider{}).ServiceWithScopes(ctx, cfgDir, gmail.GmailModifyScope)
	if err != nil {
		return nil, err
	}
	return NewGoogleAPIClient(svc), nil
}

func DefaultLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
