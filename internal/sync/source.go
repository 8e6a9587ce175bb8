package sync

import (
	"context"

	"foodmap-backend/internal/instagram"
	"foodmap-backend/models"
)

// instagramSource adapts *instagram.Client to the engine's Source interface.
// The indirection exists only because ListSaved returns a concrete iterator.
type instagramSource struct {
	client *instagram.Client
}

// NewInstagramSource wraps the Instagram client as an engine Source.
func NewInstagramSource(client *instagram.Client) Source {
	return &instagramSource{client: client}
}

func (s *instagramSource) ListSaved(ctx context.Context, session *models.Session) (Feed, error) {
	return s.client.ListSaved(ctx, session)
}

func (s *instagramSource) FetchDetail(ctx context.Context, session *models.Session, id string) (*instagram.PostDetail, error) {
	return s.client.FetchDetail(ctx, session, id)
}

func (s *instagramSource) FetchMedia(ctx context.Context, session *models.Session, url string) ([]byte, error) {
	return s.client.FetchMedia(ctx, session, url)
}
