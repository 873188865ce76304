/**
 * Qdrant Vector Index for the Glyph Store
 *
 * Maintains one point per glyph, embedding the glyph's meaning. Similarity
 * search over meanings supplies the reconstruction module with known glyphs
 * close to a damaged candidate. Uses Qdrant's native gRPC API.
 */

package storage

import (
	"context"
	"fmt"
	"time"

	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// GlyphVectorIndex handles vector operations against the glyph collection.
type GlyphVectorIndex struct {
	client           qdrant.PointsClient
	collectionClient qdrant.CollectionsClient
	conn             *grpc.ClientConn
	collectionName   string
	dimensions       int
}

// GlyphNeighbor is one similarity hit.
type GlyphNeighbor struct {
	Symbol  string
	Meaning string
	Score   float32
}

// NewGlyphVectorIndex connects to Qdrant and ensures the glyph collection
// exists with the configured embedding dimensions.
func NewGlyphVectorIndex(address, collectionName string, dimensions int) (*GlyphVectorIndex, error) {
	if address == "" {
		return nil, fmt.Errorf("qdrant address is required")
	}
	if collectionName == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be positive")
	}

	conn, err := grpc.Dial(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}

	index := &GlyphVectorIndex{
		client:           qdrant.NewPointsClient(conn),
		collectionClient: qdrant.NewCollectionsClient(conn),
		conn:             conn,
		collectionName:   collectionName,
		dimensions:       dimensions,
	}

	if err := index.ensureCollection(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}

	return index, nil
}

// ensureCollection creates the collection if it doesn't exist
func (g *GlyphVectorIndex) ensureCollection(ctx context.Context) error {
	listResp, err := g.collectionClient.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, col := range listResp.Collections {
		if col.Name == g.collectionName {
			return nil
		}
	}

	_, err = g.collectionClient.Create(ctx, &qdrant.CreateCollection{
		CollectionName: g.collectionName,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(g.dimensions),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

// UpsertGlyphMeaning stores or refreshes the meaning embedding for a glyph.
// The glyph row ID doubles as the point ID so updates replace in place.
func (g *GlyphVectorIndex) UpsertGlyphMeaning(ctx context.Context, glyphID, symbol, meaning string, vector []float32) error {
	if glyphID == "" {
		return fmt.Errorf("glyph ID is required")
	}
	if len(vector) != g.dimensions {
		return fmt.Errorf("invalid vector dimensions: expected %d, got %d", g.dimensions, len(vector))
	}

	point := &qdrant.PointStruct{
		Id: &qdrant.PointId{
			PointIdOptions: &qdrant.PointId_Uuid{
				Uuid: glyphID,
			},
		},
		Vectors: &qdrant.Vectors{
			VectorsOptions: &qdrant.Vectors_Vector{
				Vector: &qdrant.Vector{
					Data: vector,
				},
			},
		},
		Payload: map[string]*qdrant.Value{
			"symbol": {
				Kind: &qdrant.Value_StringValue{StringValue: symbol},
			},
			"meaning": {
				Kind: &qdrant.Value_StringValue{StringValue: meaning},
			},
			"timestamp": {
				Kind: &qdrant.Value_IntegerValue{IntegerValue: time.Now().Unix()},
			},
		},
	}

	_, err := g.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: g.collectionName,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert glyph vector: %w", err)
	}

	return nil
}

// SearchSimilar returns the glyphs whose meaning embeddings are closest to
// the query vector.
func (g *GlyphVectorIndex) SearchSimilar(ctx context.Context, queryVector []float32, limit int) ([]*GlyphNeighbor, error) {
	if len(queryVector) != g.dimensions {
		return nil, fmt.Errorf("invalid query vector dimensions: expected %d, got %d", g.dimensions, len(queryVector))
	}
	if limit <= 0 {
		limit = 10
	}

	results, err := g.client.Search(ctx, &qdrant.SearchPoints{
		CollectionName: g.collectionName,
		Vector:         queryVector,
		Limit:          uint64(limit),
		WithPayload: &qdrant.WithPayloadSelector{
			SelectorOptions: &qdrant.WithPayloadSelector_Enable{
				Enable: true,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search glyph vectors: %w", err)
	}

	neighbors := make([]*GlyphNeighbor, 0, len(results.Result))
	for _, result := range results.Result {
		neighbor := &GlyphNeighbor{Score: result.Score}
		if result.Payload != nil {
			if v, ok := result.Payload["symbol"]; ok {
				neighbor.Symbol = v.GetStringValue()
			}
			if v, ok := result.Payload["meaning"]; ok {
				neighbor.Meaning = v.GetStringValue()
			}
		}
		if neighbor.Symbol == "" {
			continue
		}
		neighbors = append(neighbors, neighbor)
	}

	return neighbors, nil
}

// DeleteGlyph removes a glyph's point from the index.
func (g *GlyphVectorIndex) DeleteGlyph(ctx context.Context, glyphID string) error {
	if glyphID == "" {
		return fmt.Errorf("glyph ID is required")
	}

	_, err := g.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: g.collectionName,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{
					Ids: []*qdrant.PointId{
						{
							PointIdOptions: &qdrant.PointId_Uuid{
								Uuid: glyphID,
							},
						},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete glyph vector: %w", err)
	}

	return nil
}

// CollectionInfo returns collection statistics.
func (g *GlyphVectorIndex) CollectionInfo(ctx context.Context) (map[string]interface{}, error) {
	info, err := g.collectionClient.Get(ctx, &qdrant.GetCollectionInfoRequest{
		CollectionName: g.collectionName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get collection info: %w", err)
	}

	return map[string]interface{}{
		"collection_name": g.collectionName,
		"vectors_count":   info.Result.GetVectorsCount(),
		"points_count":    info.Result.GetPointsCount(),
		"status":          info.Result.GetStatus().String(),
	}, nil
}

// Close closes the Qdrant connection.
func (g *GlyphVectorIndex) Close() error {
	if g.conn != nil {
		return g.conn.Close()
	}
	return nil
}
