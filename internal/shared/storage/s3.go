package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/nextconvert/reelmix/internal/shared/config"
	"github.com/samber/lo"
)

// maxDeleteBatch is the DeleteObjects request limit.
const maxDeleteBatch = 1000

// S3Backend keeps zones as key prefixes in one bucket. Works with AWS S3 and
// S3-compatible stores such as MinIO.
type S3Backend struct {
	client *s3.Client
	bucket string
}

var (
	_ Backend      = (*S3Backend)(nil)
	_ Presigner    = (*S3Backend)(nil)
	_ BatchDeleter = (*S3Backend)(nil)
)

// NewS3Backend creates a new S3 storage backend
func NewS3Backend(cfg config.StorageConfig) (*S3Backend, error) {
	if cfg.S3Bucket == "" {
		return nil, errors.New("S3_BUCKET is required for s3 storage backend")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(lo.Ternary(cfg.S3Region != "", cfg.S3Region, "us-east-1")),
	}
	// Static keys when given; the default credential chain otherwise
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Backend{client: client, bucket: cfg.S3Bucket}, nil
}

// Path returns the object key, zone/filename
func (b *S3Backend) Path(zone Zone, filename string) string {
	return path.Join(string(zone), filename)
}

// Store uploads reader under zone/filename. PutObject needs a length, so
// readers that cannot seek are spooled to a temp file first.
func (b *S3Backend) Store(ctx context.Context, zone Zone, filename string, reader io.Reader) (string, error) {
	key := b.Path(zone, filename)

	body, size, cleanup, err := sizedBody(reader)
	if err != nil {
		return "", err
	}
	defer cleanup()

	input := putInput(zone, filename, time.Now())
	input.Bucket = aws.String(b.bucket)
	input.Key = aws.String(key)
	input.Body = body
	input.ContentLength = aws.Int64(size)

	if _, err := b.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("s3 upload of %s failed: %w", key, err)
	}
	return key, nil
}

// putInput fills the object headers for a file in zone. Rendered outputs
// download under their base name, without the run directory; every object
// carries its zone expiry.
func putInput(zone Zone, filename string, now time.Time) *s3.PutObjectInput {
	input := &s3.PutObjectInput{
		ContentType: aws.String(contentTypeFor(filename)),
		Expires:     aws.Time(now.Add(zone.TTL())),
		Metadata:    map[string]string{"zone": string(zone)},
	}
	if zone == ZoneOutput {
		input.ContentDisposition = aws.String(attachment(path.Base(filename)))
	}
	return input
}

func sizedBody(reader io.Reader) (io.Reader, int64, func(), error) {
	noop := func() {}
	if seeker, ok := reader.(io.ReadSeeker); ok {
		current, err := seeker.Seek(0, io.SeekCurrent)
		if err == nil {
			end, err := seeker.Seek(0, io.SeekEnd)
			if err == nil {
				if _, err := seeker.Seek(current, io.SeekStart); err == nil {
					return seeker, end - current, noop, nil
				}
			}
		}
	}

	tmp, err := os.CreateTemp("", "reelmix-s3-*")
	if err != nil {
		return nil, 0, noop, fmt.Errorf("failed to create spool file: %w", err)
	}
	cleanup := func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}
	n, err := io.Copy(tmp, reader)
	if err == nil {
		_, err = tmp.Seek(0, io.SeekStart)
	}
	if err != nil {
		cleanup()
		return nil, 0, noop, fmt.Errorf("failed to spool upload: %w", err)
	}
	return tmp, n, cleanup, nil
}

func (b *S3Backend) Retrieve(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 download of %s failed: %w", key, err)
	}
	return resp.Body, nil
}

func (b *S3Backend) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete of %s failed: %w", key, err)
	}
	return nil
}

// DeleteBatch removes keys with DeleteObjects, at most maxDeleteBatch per request.
// It returns how many objects S3 confirmed as deleted.
func (b *S3Backend) DeleteBatch(ctx context.Context, keys []string) (int, error) {
	deleted := 0
	var errs []error
	for _, chunk := range lo.Chunk(keys, maxDeleteBatch) {
		resp, err := b.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(b.bucket),
			Delete: &types.Delete{
				Objects: objectIdentifiers(chunk),
				Quiet:   aws.Bool(false),
			},
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("s3 batch delete failed: %w", err))
			continue
		}
		deleted += len(resp.Deleted)
		for _, e := range resp.Errors {
			errs = append(errs, fmt.Errorf("s3 delete of %s: %s", aws.ToString(e.Key), aws.ToString(e.Message)))
		}
	}
	return deleted, errors.Join(errs...)
}

func objectIdentifiers(keys []string) []types.ObjectIdentifier {
	return lo.Map(keys, func(k string, _ int) types.ObjectIdentifier {
		return types.ObjectIdentifier{Key: aws.String(k)}
	})
}

func (b *S3Backend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.head(ctx, key)
	if isNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

func (b *S3Backend) GetSize(ctx context.Context, key string) (int64, error) {
	resp, err := b.head(ctx, key)
	if err != nil {
		return 0, err
	}
	return aws.ToInt64(resp.ContentLength), nil
}

func (b *S3Backend) head(ctx context.Context, key string) (*s3.HeadObjectOutput, error) {
	resp, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("s3 head of %s failed: %w", key, err)
	}
	return resp, nil
}

// PresignDownload returns a GET URL valid for expiry. The response is served
// as an attachment named after the object.
func (b *S3Backend) PresignDownload(ctx context.Context, key string, expiry time.Duration) (string, error) {
	resp, err := s3.NewPresignClient(b.client).PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(b.bucket),
		Key:                        aws.String(key),
		ResponseContentDisposition: aws.String(attachment(path.Base(key))),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return resp.URL, nil
}

func (b *S3Backend) ListExpired(ctx context.Context, zone Zone, cutoff time.Time) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(string(zone) + "/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list of %s zone failed: %w", zone, err)
		}
		keys = append(keys, expiredKeys(page.Contents, cutoff)...)
	}
	return keys, nil
}

func expiredKeys(objects []types.Object, cutoff time.Time) []string {
	return lo.FilterMap(objects, func(obj types.Object, _ int) (string, bool) {
		if obj.Key == nil || obj.LastModified == nil {
			return "", false
		}
		return *obj.Key, obj.LastModified.Before(cutoff)
	})
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	return errors.As(err, &notFound) || errors.As(err, &noSuchKey)
}

func attachment(filename string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": filename})
}

// contentTypeFor covers the containers the service accepts and renders.
func contentTypeFor(filename string) string {
	switch path.Ext(filename) {
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a", ".aac":
		return "audio/aac"
	case ".wav":
		return "audio/wav"
	case ".flac":
		return "audio/flac"
	case ".ogg":
		return "audio/ogg"
	case ".png":
		return "image/png"
	}
	return "application/octet-stream"
}
