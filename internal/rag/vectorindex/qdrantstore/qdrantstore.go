// Package qdrantstore is the alternate retrieval backend: chunks live in a
// Qdrant collection instead of the local snapshot index. Selected with
// VECTOR_BACKEND=qdrant.
package qdrantstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/hqlin/tcm-assistant/internal/config"
	"github.com/hqlin/tcm-assistant/internal/rag/embedding"
	"github.com/hqlin/tcm-assistant/pkg/logx"
	"github.com/qdrant/go-client/qdrant"
)

type Store struct {
	client     *qdrant.Client
	emb        embedding.Embedder
	collection string
	logger     *logx.Logger
}

// New connects to Qdrant and ensures the chunk collection exists with a
// cosine distance config matching the embedder's dimensionality.
func New(ctx context.Context, emb embedding.Embedder) (*Store, error) {
	logger := logx.NewLogger("qdrant")

	host := os.Getenv("QDRANT_HOST")
	port, er := strconv.Atoi(os.Getenv("QDRANT_PORT"))
	if host == "" || er != nil {
		host = config.QdrantHost
		port = config.QdrantGrpcPort
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:     host,
		Port:     port,
		UseTLS:   config.QdrantUseTLS,
		PoolSize: uint(config.QdrantPoolSize),
	})
	if err != nil {
		logger.Error("Could not instantiate Qdrant client", "error", err)
		return nil, err
	}

	s := &Store{
		client:     client,
		emb:        emb,
		collection: config.QdrantCollection,
		logger:     logger,
	}
	if err := s.ensureCollection(ctx); err != nil {
		logger.Error("Could not create collection", "collection", s.collection, "error", err)
		return nil, err
	}
	logger.Info("Qdrant store ready", "collection", s.collection, "host", host)
	return s, nil
}

func (s *Store) ensureCollection(ctx context.Context) error {
	if s.collection == "" {
		return errors.New("empty collection name")
	}
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.emb.Dimension()),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

// UpsertChunks embeds the chunks and writes them as points keyed by fresh
// UUIDs, tagged with their source document and position.
func (s *Store) UpsertChunks(ctx context.Context, docName string, chunks []string) error {
	if len(chunks) == 0 {
		return nil
	}
	vectors, err := s.emb.EmbedBatch(ctx, chunks)
	if err != nil {
		return err
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("mismatch: got %d chunks but %d vectors", len(chunks), len(vectors))
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, chunk := range chunks {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(uuid.New().String()),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				"content":     chunk,
				"doc_name":    docName,
				"chunk_order": i,
			}),
		}
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert failed: %w", err)
	}
	return nil
}

// Search embeds the query and returns the top-k chunk texts.
func (s *Store) Search(ctx context.Context, query string, k int) ([]string, error) {
	loggr := s.logger.With("traceId", ctx.Value(config.TRACE_ID_KEY))

	vec, err := s.emb.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	result, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vec...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		loggr.Error("Error querying Qdrant", "error", err)
		return nil, err
	}

	matches := make([]string, 0, len(result))
	for _, hit := range result {
		if content := hit.Payload["content"].GetStringValue(); content != "" {
			matches = append(matches, content)
		}
	}
	return matches, nil
}

// Populated reports whether the collection holds any points. Errors count as
// not populated; the caller only uses this to pick the no-data answer.
func (s *Store) Populated() bool {
	count, err := s.client.Count(context.Background(), &qdrant.CountPoints{
		CollectionName: s.collection,
	})
	if err != nil {
		s.logger.Warn("Could not count collection points", "error", err)
		return false
	}
	return count > 0
}

// Close releases the underlying gRPC connection.
func (s *Store) Close() error {
	s.logger.Info("Shutting down Qdrant")
	return s.client.Close()
}
