package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// JetStreamStore keeps blobs in a NATS JetStream object store bucket.
type JetStreamStore struct {
	conn  *nats.Conn
	store jetstream.ObjectStore
}

// NewJetStreamStore connects to natsURL and opens bucket, creating it if it
// does not exist yet.
func NewJetStreamStore(ctx context.Context, natsURL, bucket string) (*JetStreamStore, error) {
	conn, err := nats.Connect(natsURL, nats.Name("relay-blob"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	store, err := js.ObjectStore(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		store, err = js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
			Bucket:      bucket,
			Description: "encrypted relay file bodies",
		})
	}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open bucket %q: %w", bucket, err)
	}

	return &JetStreamStore{conn: conn, store: store}, nil
}

func (s *JetStreamStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = defaultContentType
	}

	meta := jetstream.ObjectMeta{
		Name: key,
		Headers: nats.Header{
			"Content-Type": []string{contentType},
		},
	}

	info, err := s.store.Put(ctx, meta, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}

	return info.Name, nil
}

func (s *JetStreamStore) Get(ctx context.Context, key string) ([]byte, string, error) {
	res, err := s.store.Get(ctx, key)
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("get object: %w", err)
	}
	defer res.Close()

	data, err := io.ReadAll(res)
	if err != nil {
		return nil, "", fmt.Errorf("read object: %w", err)
	}

	info, err := res.Info()
	if err != nil {
		return nil, "", fmt.Errorf("object info: %w", err)
	}

	contentType := defaultContentType
	if info.Headers != nil && info.Headers.Get("Content-Type") != "" {
		contentType = info.Headers.Get("Content-Type")
	}

	return data, contentType, nil
}

func (s *JetStreamStore) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	return nil
}
