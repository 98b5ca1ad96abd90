package qdrant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/ragserve/internal/logging"
	"github.com/fyrsmithlabs/ragserve/internal/retry"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// GRPCClient implements Client with the official qdrant Go client.
type GRPCClient struct {
	client *qdrant.Client
	config *ClientConfig
	logger *logging.Logger
}

// ClientConfig configures the qdrant gRPC client.
type ClientConfig struct {
	// Host is the qdrant server hostname. Default: "localhost".
	Host string
	// Port is the gRPC port, not the REST port. Default: 6334.
	Port   int
	UseTLS bool
	APIKey string

	// MaxMessageSize bounds gRPC messages in bytes. Default: 50MB.
	MaxMessageSize int
	// DialTimeout bounds the startup health check. Default: 5s.
	DialTimeout time.Duration
	// RequestTimeout bounds each request including retries. Default: 30s.
	RequestTimeout time.Duration
	// Retry is the policy for transient failures. Default: 3 attempts from 200ms.
	Retry retry.Policy
}

// DefaultClientConfig returns defaults for a local qdrant.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Host:           "localhost",
		Port:           6334,
		MaxMessageSize: 50 * 1024 * 1024,
		DialTimeout:    5 * time.Second,
		RequestTimeout: 30 * time.Second,
		Retry: retry.Policy{
			MaxAttempts:    3,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			MaxJitter:      100 * time.Millisecond,
		},
	}
}

// ApplyDefaults sets default values for unset fields.
func (c *ClientConfig) ApplyDefaults() {
	d := DefaultClientConfig()
	if c.Host == "" {
		c.Host = d.Host
	}
	if c.Port == 0 {
		c.Port = d.Port
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry = d.Retry
	}
	c.Retry.Retryable = isTransientError
}

// Validate validates the client configuration.
func (c *ClientConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Port)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("invalid max message size: %d (must be > 0)", c.MaxMessageSize)
	}
	return nil
}

// NewGRPCClient connects to qdrant and verifies it answers a health check.
func NewGRPCClient(config *ClientConfig, logger *logging.Logger) (*GRPCClient, error) {
	if config == nil {
		config = DefaultClientConfig()
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	qcfg := &qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		APIKey: config.APIKey,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	}
	if !config.UseTLS {
		qcfg.GrpcOptions = append(qcfg.GrpcOptions, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	client, err := qdrant.NewClient(qcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	c := &GRPCClient{client: client, config: config, logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()

	logger.Info(ctx, "connecting to qdrant", zap.String("host", config.Host), zap.Int("port", config.Port))
	if err := c.Health(ctx); err != nil {
		_ = client.Close()
		logger.Error(ctx, "qdrant health check failed", zap.String("host", config.Host), zap.Error(err))
		return nil, err
	}
	logger.Info(ctx, "qdrant connection established", zap.String("host", config.Host), zap.Int("port", config.Port))
	return c, nil
}

// Health performs a health check on the qdrant connection.
func (c *GRPCClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	if _, err := c.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// EnsureCollection creates the collection, dropping an existing one first
// when recreate is set.
func (c *GRPCClient) EnsureCollection(ctx context.Context, name string, vectorSize uint64, distance Distance, recreate bool) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	exists, err := do(ctx, c, "qdrant.collection_exists", func(ctx context.Context) (bool, error) {
		return c.client.CollectionExists(ctx, name)
	})
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", name, err)
	}

	if exists && recreate {
		if _, err := do(ctx, c, "qdrant.delete_collection", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.client.DeleteCollection(ctx, name)
		}); err != nil {
			return fmt.Errorf("dropping collection %s: %w", name, err)
		}
		c.logger.Info(ctx, "dropped existing qdrant collection", zap.String("collection", name))
		exists = false
	}
	if exists {
		return nil
	}

	_, err = do(ctx, c, "qdrant.create_collection", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     vectorSize,
				Distance: toQdrantDistance(distance),
			}),
		})
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", name, err)
	}
	return nil
}

// Upsert writes points and waits until they are searchable.
func (c *GRPCClient) Upsert(ctx context.Context, collection string, points []*Point) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	qpoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		qpoints[i] = convertToQdrantPoint(p)
	}

	_, err := do(ctx, c, "qdrant.upsert", func(ctx context.Context) (*qdrant.UpdateResult, error) {
		return c.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Wait:           qdrant.PtrOf(true),
			Points:         qpoints,
		})
	})
	return err
}

// Search returns the limit points nearest to vector that pass filter.
func (c *GRPCClient) Search(ctx context.Context, collection string, vector []float32, limit uint64, filter *Filter) ([]*ScoredPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	results, err := do(ctx, c, "qdrant.search", func(ctx context.Context) ([]*qdrant.ScoredPoint, error) {
		return c.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: collection,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(limit),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         convertToQdrantFilter(filter),
		})
	})
	if err != nil {
		return nil, err
	}

	out := make([]*ScoredPoint, len(results))
	for i, r := range results {
		out[i] = &ScoredPoint{
			Point: Point{ID: extractPointID(r.Id), Payload: extractPayload(r.Payload)},
			Score: r.Score,
		}
	}
	return out, nil
}

// Delete removes points by id.
func (c *GRPCClient) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(id)
	}

	_, err := do(ctx, c, "qdrant.delete", func(ctx context.Context) (*qdrant.UpdateResult, error) {
		return c.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: collection,
			Wait:           qdrant.PtrOf(true),
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Points{
					Points: &qdrant.PointsIdsList{Ids: pointIDs},
				},
			},
		})
	})
	return err
}

// Close closes the client connection.
func (c *GRPCClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func do[T any](ctx context.Context, c *GRPCClient, name string, op func(context.Context) (T, error)) (T, error) {
	return retry.Do(ctx, c.logger, c.config.Retry, name, op)
}

// isTransientError extends the embedding classifier with Aborted, which
// qdrant returns on write conflicts.
func isTransientError(err error) bool {
	if retry.IsTransient(err) {
		return true
	}
	st, ok := status.FromError(err)
	return ok && st.Code() == codes.Aborted
}

func toQdrantDistance(d Distance) qdrant.Distance {
	switch d {
	case DistanceCosine:
		return qdrant.Distance_Cosine
	case DistanceEuclid:
		return qdrant.Distance_Euclid
	default:
		return qdrant.Distance_Dot
	}
}

func convertToQdrantPoint(p *Point) *qdrant.PointStruct {
	payload := make(map[string]*qdrant.Value, len(p.Payload))
	for k, v := range p.Payload {
		payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
	}
	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(p.ID),
		Vectors: qdrant.NewVectors(p.Vector...),
		Payload: payload,
	}
}

func convertToQdrantFilter(f *Filter) *qdrant.Filter {
	if f == nil || len(f.Must) == 0 {
		return nil
	}
	filter := &qdrant.Filter{Must: make([]*qdrant.Condition, len(f.Must))}
	for i, m := range f.Must {
		filter.Must[i] = &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: m.Field,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: m.Keyword},
					},
				},
			},
		}
	}
	return filter
}

func extractPointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	if n := id.GetNum(); n != 0 {
		return fmt.Sprintf("%d", n)
	}
	return ""
}

// extractPayload keeps string values only; this client never writes others.
func extractPayload(payload map[string]*qdrant.Value) map[string]string {
	if payload == nil {
		return nil
	}
	out := make(map[string]string, len(payload))
	for k, v := range payload {
		if s, ok := v.GetKind().(*qdrant.Value_StringValue); ok {
			out[k] = s.StringValue
		}
	}
	return out
}

var _ Client = (*GRPCClient)(nil)
