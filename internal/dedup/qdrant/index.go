package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"docpipe/internal/config"
	"docpipe/internal/domain"
	"docpipe/internal/port"
)

// Index is a Qdrant-backed DuplicateIndex. Each registered document is one
// point: the embedding as the vector, the content hash, document id, and
// serialized result in the payload.
type Index struct {
	client     *qdrant.Client
	collection string
	vectorSize uint64
}

// New connects to Qdrant and ensures the dedup collection exists.
func New(ctx context.Context, cfg *config.QdrantConfig) (*Index, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	idx := &Index{client: client, collection: cfg.Collection, vectorSize: cfg.VectorSize}
	if err := idx.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (i *Index) ensureCollection(ctx context.Context) error {
	if _, err := i.client.GetCollectionInfo(ctx, i.collection); err == nil {
		return nil
	}
	log.Printf("dedup.qdrant: creating collection %s (size=%d)", i.collection, i.vectorSize)
	err := i.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: i.collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     i.vectorSize,
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("creating qdrant collection %s: %w", i.collection, err)
	}
	return nil
}

func (i *Index) LookupSimilar(ctx context.Context, contentHash string, embedding []float32, threshold float64) (*port.ExistingResultRef, error) {
	// Exact hash match first: cheapest, and always correct.
	if ref, err := i.lookupByHash(ctx, contentHash); err != nil || ref != nil {
		return ref, err
	}
	if len(embedding) == 0 {
		return nil, nil
	}

	limit := uint64(1)
	scoreThreshold := float32(threshold)
	hits, err := i.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: i.collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          &limit,
		ScoreThreshold: &scoreThreshold,
		WithPayload: &qdrant.WithPayloadSelector{
			SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("querying qdrant: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}
	return refFromPayload(hits[0].Payload, float64(hits[0].Score))
}

func (i *Index) lookupByHash(ctx context.Context, contentHash string) (*port.ExistingResultRef, error) {
	limit := uint64(1)
	hits, err := i.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: i.collection,
		Limit:          &limit,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				{
					ConditionOneOf: &qdrant.Condition_Field{
						Field: &qdrant.FieldCondition{
							Key: "content_hash",
							Match: &qdrant.Match{
								MatchValue: &qdrant.Match_Keyword{Keyword: contentHash},
							},
						},
					},
				},
			},
		},
		WithPayload: &qdrant.WithPayloadSelector{
			SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("querying qdrant by hash: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}
	return refFromPayload(hits[0].Payload, 1.0)
}

func (i *Index) Register(ctx context.Context, contentHash string, embedding []float32, documentID uuid.UUID, result *domain.ValidatedResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}

	point := &qdrant.PointStruct{
		Id: qdrant.NewIDUUID(documentID.String()),
		Payload: qdrant.NewValueMap(map[string]any{
			"content_hash": contentHash,
			"document_id":  documentID.String(),
			"result":       string(resultJSON),
		}),
	}
	if len(embedding) > 0 {
		point.Vectors = qdrant.NewVectors(embedding...)
	} else {
		point.Vectors = qdrant.NewVectors(make([]float32, i.vectorSize)...)
	}

	wait := true
	_, err = i.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: i.collection,
		Points:         []*qdrant.PointStruct{point},
		Wait:           &wait,
	})
	if err != nil {
		return fmt.Errorf("upserting into qdrant: %w", err)
	}
	return nil
}

func refFromPayload(payload map[string]*qdrant.Value, score float64) (*port.ExistingResultRef, error) {
	docID, err := uuid.Parse(payload["document_id"].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("parsing document_id payload: %w", err)
	}
	var result domain.ValidatedResult
	if raw := payload["result"].GetStringValue(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &result); err != nil {
			return nil, fmt.Errorf("unmarshaling result payload: %w", err)
		}
	}
	return &port.ExistingResultRef{
		DocumentID:  docID,
		ContentHash: payload["content_hash"].GetStringValue(),
		Score:       score,
		Result:      &result,
	}, nil
}
