// Package vector provides an optional qdrant-backed index over FAQ group
// centroids, used by the clustering engine to shortlist candidate groups.
package vector

import (
	"context"
	"crypto/tls"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// Config holds connection settings for the centroid index
type Config struct {
	Host       string
	Port       int
	Collection string
	APIKey     string // Qdrant Cloud API key (enables TLS automatically)
	Dimensions int
}

// apiKeyInterceptor adds the API key to outgoing request metadata
func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// CentroidIndex stores one point per FAQ group, keyed by group id
type CentroidIndex struct {
	conn       *grpc.ClientConn
	points     pb.PointsClient
	collection pb.CollectionsClient
	name       string
	dimensions int
}

// NewCentroidIndex connects to qdrant. Local instances connect without TLS;
// setting an API key switches to TLS for Qdrant Cloud.
func NewCentroidIndex(cfg *Config) (*CentroidIndex, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	var opts []grpc.DialOption
	if cfg.APIKey != "" {
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS13})
		opts = append(opts,
			grpc.WithTransportCredentials(creds),
			grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return &CentroidIndex{
		conn:       conn,
		points:     pb.NewPointsClient(conn),
		collection: pb.NewCollectionsClient(conn),
		name:       cfg.Collection,
		dimensions: cfg.Dimensions,
	}, nil
}

// Close closes the gRPC connection
func (ci *CentroidIndex) Close() error {
	return ci.conn.Close()
}

// EnsureCollection creates the centroid collection if it does not exist
func (ci *CentroidIndex) EnsureCollection(ctx context.Context) error {
	_, err := ci.collection.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: ci.name,
	})
	if err == nil {
		return nil // Collection exists
	}

	_, err = ci.collection.Create(ctx, &pb.CreateCollection{
		CollectionName: ci.name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(ci.dimensions),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

// UpsertCentroid writes or replaces the centroid point for a group
func (ci *CentroidIndex) UpsertCentroid(ctx context.Context, groupID int64, category string, centroid []float64) error {
	vector := make([]float32, len(centroid))
	for i, v := range centroid {
		vector[i] = float32(v)
	}

	points := []*pb.PointStruct{
		{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Num{Num: uint64(groupID)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: vector},
				},
			},
			Payload: map[string]*pb.Value{
				"category": {Kind: &pb.Value_StringValue{StringValue: category}},
			},
		},
	}

	_, err := ci.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: ci.name,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert centroid: %w", err)
	}

	return nil
}

// NearestGroups returns the ids of the groups whose centroids are closest to the
// vector, optionally restricted to one category
func (ci *CentroidIndex) NearestGroups(ctx context.Context, vector []float64, category string, limit int) ([]int64, error) {
	query := make([]float32, len(vector))
	for i, v := range vector {
		query[i] = float32(v)
	}

	req := &pb.SearchPoints{
		CollectionName: ci.name,
		Vector:         query,
		Limit:          uint64(limit),
	}

	if category != "" {
		req.Filter = &pb.Filter{
			Must: []*pb.Condition{
				{
					ConditionOneOf: &pb.Condition_Field{
						Field: &pb.FieldCondition{
							Key: "category",
							Match: &pb.Match{
								MatchValue: &pb.Match_Keyword{Keyword: category},
							},
						},
					},
				},
			},
		}
	}

	resp, err := ci.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to search centroids: %w", err)
	}

	ids := make([]int64, 0, len(resp.Result))
	for _, scored := range resp.Result {
		ids = append(ids, int64(scored.Id.GetNum()))
	}

	return ids, nil
}
