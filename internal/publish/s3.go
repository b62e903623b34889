package publish

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/siteforge-labs/siteforge-backend/config"
)

// objectAPI is the slice of the S3 client the publisher needs.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Publisher pushes finished site versions to an S3 bucket fronted by a
// CDN. Uploads are additive, every version lives under its own prefix.
type Publisher struct {
	client  objectAPI
	bucket  string
	baseURL string
}

func New(ctx context.Context, cfg config.PublishConfig) (*Publisher, error) {
	awsCfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("aws config load: %w", err)
	}
	return newWithClient(s3.NewFromConfig(awsCfg), cfg.Bucket, cfg.BaseURL), nil
}

func newWithClient(client objectAPI, bucket, baseURL string) *Publisher {
	return &Publisher{
		client:  client,
		bucket:  bucket,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// PublishSite uploads every non-blank file of a build under
// sites/{public_id}/v{version}/ and returns the base URL of the
// published version.
func (p *Publisher) PublishSite(ctx context.Context, publicID string, version int, files map[string]string) (string, error) {
	prefix := fmt.Sprintf("sites/%s/v%d", publicID, version)

	paths := make([]string, 0, len(files))
	for fp := range files {
		paths = append(paths, fp)
	}
	sort.Strings(paths)

	uploaded := 0
	for _, fp := range paths {
		if strings.TrimSpace(files[fp]) == "" {
			continue
		}

		key := prefix + "/" + fp
		_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(p.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader([]byte(files[fp])),
			ContentType: aws.String(contentTypeFor(fp)),
		})
		if err != nil {
			return "", fmt.Errorf("upload %s: %w", key, err)
		}
		uploaded++
	}

	log.Printf("[publish] uploaded %d files project=%s version=%d", uploaded, publicID, version)
	return fmt.Sprintf("%s/%s/", p.baseURL, prefix), nil
}

// PublishArchive uploads a packaged zip under archives/{public_id}/
// and returns its URL.
func (p *Publisher) PublishArchive(ctx context.Context, publicID, name string, data []byte) (string, error) {
	key := fmt.Sprintf("archives/%s/%s", publicID, name)
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/zip"),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return fmt.Sprintf("%s/%s", p.baseURL, key), nil
}

func contentTypeFor(fp string) string {
	switch strings.ToLower(path.Ext(fp)) {
	case ".html", ".htm":
		return "text/html; charset=utf-8"
	case ".css":
		return "text/css; charset=utf-8"
	case ".js", ".mjs":
		return "text/javascript; charset=utf-8"
	case ".json":
		return "application/json"
	case ".svg":
		return "image/svg+xml"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".ico":
		return "image/x-icon"
	case ".txt", ".md":
		return "text/plain; charset=utf-8"
	case ".xml":
		return "application/xml"
	case ".woff2":
		return "font/woff2"
	default:
		return "application/octet-stream"
	}
}
