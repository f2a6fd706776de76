package port

import (
	"context"

	"github.com/vanessasara/full-stack-Devops/internal/domain"
)

// ContextRetriever assembles a context bundle for the agent layer.
type ContextRetriever interface {
	RetrieveContext(ctx context.Context, req domain.ContextRequest) (domain.ContextBundle, error)
}
