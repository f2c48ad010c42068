package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrArtifactNotFound is returned when an artifact reference does not
// resolve.
var ErrArtifactNotFound = errors.New("export artifact not found")

// ArtifactStore persists finished export archives for later download.
type ArtifactStore interface {
	// Put writes the archive under ref, overwriting any previous artifact.
	Put(ctx context.Context, ref string, data []byte) error

	// Get reads the archive stored under ref.
	Get(ctx context.Context, ref string) ([]byte, error)

	// Delete removes the artifact. Missing artifacts are not an error.
	Delete(ctx context.Context, ref string) error
}

// MemoryStore keeps artifacts in process memory. Test environments only.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory artifact store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Put(_ context.Context, ref string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	m.data[ref] = buf
	return nil
}

func (m *MemoryStore) Get(_ context.Context, ref string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[ref]
	if !ok {
		return nil, ErrArtifactNotFound
	}
	return data, nil
}

func (m *MemoryStore) Delete(_ context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, ref)
	return nil
}

// FilesystemStore writes artifacts below a root directory. Refs are
// sanitized so they cannot escape the root.
type FilesystemStore struct {
	root string
}

// NewFilesystemStore creates the root directory if needed.
func NewFilesystemStore(root string) (*FilesystemStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &FilesystemStore{root: root}, nil
}

func (f *FilesystemStore) path(ref string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(ref))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid artifact ref %q", ref)
	}
	return filepath.Join(f.root, clean), nil
}

func (f *FilesystemStore) Put(_ context.Context, ref string, data []byte) error {
	path, err := f.path(ref)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (f *FilesystemStore) Get(_ context.Context, ref string) ([]byte, error) {
	path, err := f.path(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrArtifactNotFound
	}
	return data, err
}

func (f *FilesystemStore) Delete(_ context.Context, ref string) error {
	path, err := f.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// S3Config holds S3 artifact store settings.
type S3Config struct {
	Bucket string
	Region string

	// Endpoint overrides the S3 endpoint for S3-compatible services.
	Endpoint string

	// Prefix is prepended to artifact refs, e.g. "exports/".
	Prefix string

	// ForcePathStyle is required for Localstack/MinIO.
	ForcePathStyle bool

	// AccessKeyID and SecretAccessKey, when both set, bypass the AWS
	// default credential chain. Typically paired with Endpoint for
	// S3-compatible servers.
	AccessKeyID     string
	SecretAccessKey string
}

// S3Store keeps artifacts in an S3 bucket.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store creates a store with an existing client.
func NewS3Store(client *s3.Client, cfg S3Config) *S3Store {
	return &S3Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}
}

// NewS3StoreFromConfig builds the S3 client from the AWS default chain
// plus the given overrides.
func NewS3StoreFromConfig(ctx context.Context, cfg S3Config) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return NewS3Store(s3.NewFromConfig(awsCfg, s3Opts...), cfg), nil
}

func (s *S3Store) key(ref string) string {
	return s.prefix + ref
}

func (s *S3Store) Put(ctx context.Context, ref string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(ref)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/zip"),
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, ref string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(ref)),
	})
	if err != nil {
		return nil, ErrArtifactNotFound
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *S3Store) Delete(ctx context.Context, ref string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(ref)),
	})
	return err
}
