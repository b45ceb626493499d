package redisio

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	errs "github.com/vnykmshr/chunkflow/pkg/common/errors"
	"github.com/vnykmshr/chunkflow/pkg/streaming/chunk"
)

// DefaultEndMarker is the list value that signals end of stream. It is a
// distinct sentinel rather than an empty value, so zero-length chunks pass
// through as ordinary data.
const DefaultEndMarker = "\x00chunkflow:end\x00"

// DefaultBlockTimeout is how long ListSource blocks per BLPOP round before
// re-checking its context.
const DefaultBlockTimeout = time.Second

// Config holds configuration for Redis-list backed sources and sinks.
type Config struct {
	// Redis is the client used for list operations. Required.
	Redis redis.UniversalClient

	// Key is the Redis list key chunks travel through. Required.
	Key string

	// EndMarker is the sentinel value marking end of stream. Defaults to
	// DefaultEndMarker.
	EndMarker string

	// BlockTimeout bounds each blocking pop, so a canceled consumer stops
	// within one round. Defaults to DefaultBlockTimeout.
	BlockTimeout time.Duration

	// EndOnClose makes ListSink push the end marker when it is closed,
	// ending the consuming stream on the other side of the list.
	EndOnClose bool
}

func (c *Config) validate() error {
	if c.Redis == nil || c.Key == "" {
		return errs.ErrInvalidConfiguration
	}
	if c.EndMarker == "" {
		c.EndMarker = DefaultEndMarker
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = DefaultBlockTimeout
	}
	return nil
}

// ListSource consumes chunks from a Redis list, oldest first. A producer
// appends with RPUSH (ListSink does); the source pops with BLPOP, so chunks
// arrive in push order. The stream ends when the end marker is popped.
//
// It implements the readable Source contract and is used with
// readable.FromSource.
type ListSource struct {
	cfg Config
}

// NewListSource creates a list source for the given key.
func NewListSource(cfg Config) (*ListSource, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &ListSource{cfg: cfg}, nil
}

// NextChunk pops the next list element, blocking in bounded rounds until
// one is available, the end marker arrives, or ctx is canceled.
func (s *ListSource) NextChunk(ctx context.Context) (chunk.Chunk, bool, error) {
	for {
		vals, err := s.cfg.Redis.BLPop(ctx, s.cfg.BlockTimeout, s.cfg.Key).Result()
		if errors.Is(err, redis.Nil) {
			// Nothing arrived this round; go again unless canceled.
			select {
			case <-ctx.Done():
				return chunk.Chunk{}, false, ctx.Err()
			default:
			}
			continue
		}
		if err != nil {
			return chunk.Chunk{}, false, err
		}

		// BLPop returns [key, value].
		payload := vals[1]
		if payload == s.cfg.EndMarker {
			return chunk.Chunk{}, false, nil
		}
		return chunk.FromString(payload), true, nil
	}
}

// Close implements the source contract. The client is owned by the caller
// and stays open.
func (s *ListSource) Close() error {
	return nil
}

// ListSink appends chunks to a Redis list with RPUSH, preserving write
// order for a ListSource consuming the same key.
//
// It implements the writable Sink contract.
type ListSink struct {
	cfg Config
}

// NewListSink creates a list sink for the given key.
func NewListSink(cfg Config) (*ListSink, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &ListSink{cfg: cfg}, nil
}

// Accept appends one chunk to the list.
func (s *ListSink) Accept(ctx context.Context, c chunk.Chunk) error {
	return s.cfg.Redis.RPush(ctx, s.cfg.Key, string(c.Bytes())).Err()
}

// Close pushes the end marker if EndOnClose is set. The client is owned by
// the caller and stays open.
func (s *ListSink) Close() error {
	if !s.cfg.EndOnClose {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.BlockTimeout)
	defer cancel()
	return s.cfg.Redis.RPush(ctx, s.cfg.Key, s.cfg.EndMarker).Err()
}
