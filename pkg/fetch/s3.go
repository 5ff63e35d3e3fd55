package fetch

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client used by S3Transport.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Transport serves pages straight from a bucket holding the built site.
//
// Example usage:
//
//	client := fetch.NewS3Client(fetch.S3ClientOptions{Region: "eu-west-1"})
//	t := fetch.NewS3Transport(client, "architech-site", "public/")
type S3Transport struct {
	client S3API
	bucket string
	prefix string

	// IndexDocument is appended to directory-like paths.
	// Default: "index.html"
	IndexDocument string

	// MaxBodySize caps the object size. Default: 8 MiB.
	MaxBodySize int64
}

// NewS3Transport creates a transport reading objects under prefix.
func NewS3Transport(client S3API, bucket, prefix string) *S3Transport {
	return &S3Transport{
		client:        client,
		bucket:        bucket,
		prefix:        strings.TrimLeft(prefix, "/"),
		IndexDocument: "index.html",
	}
}

// Key maps a page href to its object key: "/" → "index.html",
// "/about" → "about/index.html", "/feed.json" → "feed.json".
func (t *S3Transport) Key(href string) string {
	href, _, _ = strings.Cut(href, "?")
	p := strings.Trim(path.Clean("/"+href), "/")
	index := t.IndexDocument
	if index == "" {
		index = "index.html"
	}
	switch {
	case p == "":
		p = index
	case path.Ext(p) == "":
		p = p + "/" + index
	}
	return t.prefix + p
}

// Get implements Transport. A missing object answers 404.
func (t *S3Transport) Get(ctx context.Context, href string, _ http.Header) (*Response, error) {
	key := t.Key(href)
	out, err := t.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if stderrors.As(err, &nsk) {
			return &Response{Status: http.StatusNotFound}, nil
		}
		return nil, fmt.Errorf("s3 get %s: %w", key, err)
	}
	defer out.Body.Close()

	limit := t.MaxBodySize
	if limit <= 0 {
		limit = DefaultMaxBodySize
	}
	body, err := io.ReadAll(io.LimitReader(out.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("s3 read %s: %w", key, err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("s3 object %s exceeds %d bytes", key, limit)
	}

	contentType := aws.ToString(out.ContentType)
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(key))
	}
	return &Response{Status: http.StatusOK, ContentType: contentType, Body: body}, nil
}

// S3ClientOptions configures NewS3Client.
type S3ClientOptions struct {
	Region string

	// Endpoint overrides the S3 endpoint (MinIO, LocalStack).
	Endpoint string

	// Anonymous skips request signing, for public buckets.
	Anonymous bool
}

// NewS3Client builds an S3 client. Unless Anonymous is set, credentials
// come from AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and AWS_SESSION_TOKEN.
func NewS3Client(opts S3ClientOptions) *s3.Client {
	var creds aws.CredentialsProvider = aws.AnonymousCredentials{}
	if !opts.Anonymous {
		creds = aws.NewCredentialsCache(aws.CredentialsProviderFunc(envCredentials))
	}

	o := s3.Options{
		Region:      opts.Region,
		Credentials: creds,
	}
	if opts.Endpoint != "" {
		o.BaseEndpoint = aws.String(opts.Endpoint)
		o.UsePathStyle = true
	}
	return s3.New(o)
}

func envCredentials(context.Context) (aws.Credentials, error) {
	id := os.Getenv("AWS_ACCESS_KEY_ID")
	secret := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if id == "" || secret == "" {
		return aws.Credentials{}, stderrors.New("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")
	}
	return aws.Credentials{
		AccessKeyID:     id,
		SecretAccessKey: secret,
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		Source:          "environment",
	}, nil
}
