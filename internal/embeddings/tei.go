package embeddings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/ragserve/internal/logging"
	"github.com/fyrsmithlabs/ragserve/internal/ragerr"
	"github.com/fyrsmithlabs/ragserve/internal/retry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// emptyInputPlaceholder replaces empty strings on the wire; TEI rejects them.
const emptyInputPlaceholder = " "

// TEIConfig configures the TEI gRPC client.
type TEIConfig struct {
	Host string
	Port int
	// Target overrides Host and Port with a full gRPC target.
	Target string

	Model     string
	Dimension int
	Normalize bool

	// MaxInputChars bounds the aggregate length of one batch.
	MaxInputChars int
	// RequestTimeout bounds each stream attempt.
	RequestTimeout time.Duration
	Retry          retry.Policy

	// MaxMessageSize bounds a single received message (bytes).
	MaxMessageSize int

	// DialOptions are appended to the defaults.
	DialOptions []grpc.DialOption
}

// ApplyDefaults fills zero fields.
func (c *TEIConfig) ApplyDefaults() {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry = retry.DefaultPolicy()
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 16 * 1024 * 1024
	}
}

// Validate checks the configuration.
func (c *TEIConfig) Validate() error {
	if c.Target == "" {
		if c.Host == "" {
			return fmt.Errorf("%w: host is required", ErrInvalidConfig)
		}
		if c.Port < 1 || c.Port > 65535 {
			return fmt.Errorf("%w: invalid port %d", ErrInvalidConfig, c.Port)
		}
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

func (c *TEIConfig) target() string {
	if c.Target != "" {
		return c.Target
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// TEIClient embeds text through TEI's EmbedStream RPC.
//
// Each batch goes out on one bidirectional stream per attempt. The stream
// is ordered and yields exactly one response per request, so responses are
// paired with inputs by position; any other response count fails the call.
type TEIClient struct {
	conn    *grpc.ClientConn
	cfg     TEIConfig
	logger  *logging.Logger
	metrics *Metrics
}

// NewTEIClient creates a client. The connection is established lazily.
func NewTEIClient(cfg TEIConfig, logger *logging.Logger) (*TEIClient, error) {
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize)),
	}, cfg.DialOptions...)

	conn, err := grpc.NewClient(cfg.target(), opts...)
	if err != nil {
		return nil, fmt.Errorf("creating TEI client for %s: %w", cfg.target(), err)
	}

	logger.Info(context.Background(), "TEI embedding client created",
		zap.String("target", cfg.target()),
		zap.String("model", cfg.Model),
		zap.Int("dimension", cfg.Dimension),
	)

	return &TEIClient{
		conn:    conn,
		cfg:     cfg,
		logger:  logger,
		metrics: NewMetrics(logger),
	}, nil
}

// EmbedDocuments embeds document texts.
func (c *TEIClient) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return c.embed(ctx, "embed_documents", texts)
}

// EmbedQueries embeds query texts.
func (c *TEIClient) EmbedQueries(ctx context.Context, texts []string) ([][]float32, error) {
	return c.embed(ctx, "embed_queries", texts)
}

// Dimension returns the configured vector width.
func (c *TEIClient) Dimension() int {
	return c.cfg.Dimension
}

// Close closes the gRPC connection.
func (c *TEIClient) Close() error {
	return c.conn.Close()
}

func (c *TEIClient) embed(ctx context.Context, operation string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := checkInputSize(texts, c.cfg.MaxInputChars); err != nil {
		return nil, err
	}

	wire := make([]string, len(texts))
	for i, t := range texts {
		if t == "" {
			t = emptyInputPlaceholder
		}
		wire[i] = t
	}

	start := time.Now()
	vectors, err := retry.Do(ctx, c.logger, c.cfg.Retry, "tei."+operation, func(ctx context.Context) ([][]float32, error) {
		return c.streamOnce(ctx, wire)
	})
	if err != nil {
		err = classifyTEIError(ctx, err)
	}
	c.metrics.RecordGeneration(ctx, c.cfg.Model, operation, time.Since(start), len(texts), err)
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

// streamOnce runs one EmbedStream call. Requests are sent from a separate
// goroutine while responses are read, so the server never stalls on a full
// send window.
func (c *TEIClient) streamOnce(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	stream, err := c.conn.NewStream(ctx, embedStreamDesc, EmbedStreamMethod)
	if err != nil {
		return nil, err
	}

	var g errgroup.Group
	g.Go(func() error {
		for _, t := range texts {
			if err := stream.SendMsg(tei.newRequest(t, c.cfg.Normalize)); err != nil {
				// io.EOF means the stream was aborted; RecvMsg reports why.
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
		}
		return stream.CloseSend()
	})

	vectors, recvErr := c.receive(stream, len(texts))
	if recvErr != nil {
		cancel()
	}
	sendErr := g.Wait()

	if recvErr != nil {
		return nil, recvErr
	}
	if sendErr != nil {
		return nil, sendErr
	}
	return vectors, nil
}

func (c *TEIClient) receive(stream grpc.ClientStream, want int) ([][]float32, error) {
	vectors := make([][]float32, 0, want)
	for {
		resp := tei.newResponse()
		err := stream.RecvMsg(resp)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(vectors) == want {
			return nil, fmt.Errorf("%w: received more than %d embeddings", ErrEmbeddingFailed, want)
		}
		vectors = append(vectors, tei.vector(resp))
	}

	if len(vectors) != want {
		return nil, fmt.Errorf("%w: received %d embeddings for %d inputs", ErrEmbeddingFailed, len(vectors), want)
	}
	if err := checkDimensions(vectors, c.cfg.Dimension); err != nil {
		return nil, err
	}
	return vectors, nil
}

// classifyTEIError maps a final error onto the taxonomy. Transient errors
// were already wrapped by retry.Do.
func classifyTEIError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(err, ctxErr) {
			return err
		}
		return fmt.Errorf("embedding aborted: %w", ctxErr)
	}
	if errors.Is(err, ragerr.ErrTransient) || errors.Is(err, ErrEmbeddingFailed) || errors.Is(err, ErrDimensionMismatch) {
		return err
	}
	switch status.Code(err) {
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return fmt.Errorf("%w: embedding service rejected input: %s", ragerr.ErrInvalidInput, status.Convert(err).Message())
	}
	return fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
}
