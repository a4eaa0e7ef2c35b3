package bundle

import (
	"context"
	"fmt"
	"io"
	"os"

	"widget-controlplane/pkg/config"

	"github.com/minio/minio-go/v7"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Source loads the base widget bundle produced by the external build step.
type Source interface {
	Load(ctx context.Context) (string, error)
}

// FileSource reads the bundle from local disk.
type FileSource struct {
	Path string
}

func (s *FileSource) Load(ctx context.Context) (string, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return "", fmt.Errorf("read bundle %s: %w", s.Path, err)
	}
	return string(b), nil
}

// MinioSource reads the bundle from object storage.
type MinioSource struct {
	Client *minio.Client
	Bucket string
	Object string
}

func (s *MinioSource) Load(ctx context.Context) (string, error) {
	obj, err := s.Client.GetObject(ctx, s.Bucket, s.Object, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("get bundle object %s/%s: %w", s.Bucket, s.Object, err)
	}
	defer obj.Close()

	b, err := io.ReadAll(obj)
	if err != nil {
		return "", fmt.Errorf("read bundle object %s/%s: %w", s.Bucket, s.Object, err)
	}
	return string(b), nil
}

type sourceParams struct {
	fx.In
	Config *config.Config
	Minio  *minio.Client `optional:"true"`
}

// ProvideSource resolves the configured bundle source.
func ProvideSource(p sourceParams) Source {
	switch p.Config.Bundle.Source {
	case "minio":
		if p.Minio == nil {
			zap.L().Fatal("bundle source is minio but no MinIO client is configured")
		}
		return &MinioSource{
			Client: p.Minio,
			Bucket: p.Config.Minio.BucketName,
			Object: p.Config.Bundle.Object,
		}
	default:
		return &FileSource{Path: p.Config.Bundle.Path}
	}
}
