package watermark

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreConfig holds configuration for the Firestore watermark document.
type FirestoreConfig struct {
	ProjectID      string
	CollectionName string
	DocumentID     string
}

type watermarkDoc struct {
	Nanos int64 `firestore:"nanos"`
}

// FirestoreStore keeps the watermark in one Firestore document.
// Suitable for low volume deployments that already run on Google Cloud.
type FirestoreStore struct {
	client *firestore.Client
	doc    *firestore.DocumentRef
	logger zerolog.Logger
}

// NewFirestoreStore creates a FirestoreStore. The client's lifecycle is managed
// by the caller.
func NewFirestoreStore(cfg *FirestoreConfig, client *firestore.Client, logger zerolog.Logger) (*FirestoreStore, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client cannot be nil")
	}
	if cfg.CollectionName == "" || cfg.DocumentID == "" {
		return nil, fmt.Errorf("firestore collection and document id are required")
	}

	logger.Info().
		Str("project_id", cfg.ProjectID).
		Str("collection", cfg.CollectionName).
		Str("document", cfg.DocumentID).
		Msg("FirestoreStore initialized.")

	return &FirestoreStore{
		client: client,
		doc:    client.Collection(cfg.CollectionName).Doc(cfg.DocumentID),
		logger: logger.With().Str("component", "FirestoreStore").Logger(),
	}, nil
}

// Load reads the watermark document. A missing document or a document whose
// field cannot be mapped yields zero.
func (s *FirestoreStore) Load(ctx context.Context) (int64, error) {
	snap, err := s.doc.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			s.logger.Debug().Msg("Watermark document not found, using zero.")
			return 0, nil
		}
		return 0, fmt.Errorf("firestore get for watermark: %w", err)
	}

	var doc watermarkDoc
	if err := snap.DataTo(&doc); err != nil {
		s.logger.Warn().Err(err).Msg("Watermark document is malformed, using zero.")
		return 0, nil
	}
	return doc.Nanos, nil
}

// Save overwrites the watermark document.
func (s *FirestoreStore) Save(ctx context.Context, nanos int64) error {
	if _, err := s.doc.Set(ctx, watermarkDoc{Nanos: nanos}); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write watermark document to Firestore.")
		return fmt.Errorf("firestore set for watermark: %w", err)
	}
	s.logger.Debug().Int64("nanos", nanos).Msg("Watermark saved.")
	return nil
}
