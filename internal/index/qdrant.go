package index

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// QdrantConfig configures the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname. Default: "localhost".
	Host string

	// Port is the Qdrant gRPC port (not the HTTP REST port).
	// Default: 6334.
	Port int

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// APIKey is the optional API key. Empty for local development.
	APIKey string

	// RequestTimeout bounds individual requests. Default: 30s.
	RequestTimeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
}

// Validate validates the client configuration.
func (c *QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port %d", ErrInvalidConfig, c.Port)
	}
	return nil
}

// QdrantClient implements Client over Qdrant's official Go client.
type QdrantClient struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger
}

// NewQdrantClient creates a Qdrant gRPC client.
func NewQdrantClient(config QdrantConfig, logger *zap.Logger) (*QdrantClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	qdrantConfig := &qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		APIKey: config.APIKey,
	}
	if !config.UseTLS {
		qdrantConfig.GrpcOptions = append(qdrantConfig.GrpcOptions,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
	}

	client, err := qdrant.NewClient(qdrantConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: creating client: %v", ErrIndex, err)
	}

	logger.Info("qdrant client created",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
	)

	return &QdrantClient{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// EnsureCollection drops the collection if it exists and recreates it
// with the given dimension and cosine distance.
func (c *QdrantClient) EnsureCollection(ctx context.Context, name string, dimension int) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	exists, err := c.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("%w: checking collection %s: %v", ErrIndex, name, err)
	}
	if exists {
		c.logger.Info("deleting existing collection", zap.String("collection", name))
		if err := c.client.DeleteCollection(ctx, name); err != nil {
			return fmt.Errorf("%w: deleting collection %s: %v", ErrIndex, name, err)
		}
	}

	err = c.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: creating collection %s: %v", ErrIndex, name, err)
	}

	c.logger.Info("collection created",
		zap.String("collection", name),
		zap.Int("dimension", dimension),
	)
	return nil
}

// Upsert inserts or overwrites points by id.
func (c *QdrantClient) Upsert(ctx context.Context, name string, points []Point) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	qdrantPoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		payload := make(map[string]*qdrant.Value, len(p.Payload))
		for k, v := range p.Payload {
			payload[k] = toQdrantValue(v)
		}
		qdrantPoints[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: payload,
		}
	}

	_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Points:         qdrantPoints,
	})
	if err != nil {
		return fmt.Errorf("%w: upserting %d points into %s: %v", ErrIndex, len(points), name, err)
	}
	return nil
}

// Search returns at most k nearest neighbors by descending score.
func (c *QdrantClient) Search(ctx context.Context, name string, vector []float32, k int) ([]ScoredPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	results, err := c.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: searching %s: %v", ErrIndex, name, err)
	}

	hits := make([]ScoredPoint, len(results))
	for i, r := range results {
		hits[i] = ScoredPoint{
			Point: Point{
				ID:      pointIDNum(r.Id),
				Payload: fromQdrantPayload(r.Payload),
			},
			Score: r.Score,
		}
	}
	return hits, nil
}

// Close closes the client connection.
func (c *QdrantClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func toQdrantValue(v any) *qdrant.Value {
	switch val := v.(type) {
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
	default:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: fmt.Sprintf("%v", val)}}
	}
}

func fromQdrantPayload(payload map[string]*qdrant.Value) map[string]any {
	if payload == nil {
		return nil
	}
	result := make(map[string]any, len(payload))
	for k, v := range payload {
		result[k] = fromQdrantValue(v)
	}
	return result
}

func fromQdrantValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch val := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	default:
		return nil
	}
}

func pointIDNum(id *qdrant.PointId) uint64 {
	if id == nil {
		return 0
	}
	return id.GetNum()
}

var _ Client = (*QdrantClient)(nil)
