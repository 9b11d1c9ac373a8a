package checkout

import (
	"context"

	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/domain"
)

type Cart interface {
	Lines() []domain.CartLine
	// Deduct subtracts delivered quantities, dropping lines that reach zero.
	Deduct(ctx context.Context, delivered map[string]int) error
}

type SessionProvider interface {
	CreateSession(ctx context.Context, req domain.SessionRequest, idempotencyKey string) (*domain.Session, error)
}

type SessionVerifier interface {
	VerifySession(ctx context.Context, sessionID string) (*domain.SessionStatus, error)
}

type DownloadResolver interface {
	DownloadURL(ctx context.Context, fileID string) (string, error)
}

// PurchaseRecorder returns repository.ErrDuplicatePurchase when the id is taken and
// repository.ErrPurchaseNotFound from Get for an unknown id.
type PurchaseRecorder interface {
	Record(ctx context.Context, p *domain.Purchase) (string, error)
	Get(ctx context.Context, id string) (*domain.Purchase, error)
}
