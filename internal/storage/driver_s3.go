package storage

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func init() {
	Register("s3", openS3Driver)
}

// S3Config selects a bucket and key prefix. Credentials fall back to the
// default AWS chain when AccessKey is empty.
type S3Config struct {
	BucketName string
	Prefix     string
	Region     string
	AccessKey  string
	SecretKey  string
	Endpoint   string
}

// s3ConfigFromURL reads s3://[key:secret@]bucket/prefix?region=..&endpoint=..
func s3ConfigFromURL(u *url.URL) *S3Config {
	q := u.Query()
	cfg := &S3Config{
		BucketName: u.Host,
		Prefix:     strings.Trim(u.Path, "/"),
		Region:     q.Get("region"),
		Endpoint:   q.Get("endpoint"),
	}
	if u.User != nil {
		cfg.AccessKey = u.User.Username()
		cfg.SecretKey, _ = u.User.Password()
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	return cfg
}

type S3Driver struct {
	client *s3.Client
	cfg    *S3Config
	url    string
}

func NewS3Driver(client *s3.Client, cfg *S3Config, displayURL string) *S3Driver {
	return &S3Driver{client: client, cfg: cfg, url: displayURL}
}

func openS3Driver(ctx context.Context, u *url.URL, _ Options) (Driver, error) {
	cfg := s3ConfigFromURL(u)
	if cfg.BucketName == "" {
		return nil, errors.New("s3 root URL has no bucket")
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithHTTPClient(httpClient),
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, Wrap("open", u.Redacted(), err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3Driver(client, cfg, u.Redacted()), nil
}

func (d *S3Driver) objectKey(key string) string {
	return JoinKey(d.cfg.Prefix, key)
}

func isS3NotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}

func (d *S3Driver) Get(ctx context.Context, key, dstPath string) error {
	resp, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &d.cfg.BucketName,
		Key:    aws.String(d.objectKey(key)),
	})
	if isS3NotFound(err) {
		return NotFound("get", key)
	} else if err != nil {
		return Wrap("get", key, err)
	}
	defer resp.Body.Close()

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return Wrap("get", key, err)
	}
	if _, err := dst.ReadFrom(resp.Body); err != nil {
		dst.Close()
		os.Remove(dstPath)
		return Wrap("get", key, err)
	}
	return Wrap("get", key, dst.Close())
}

func (d *S3Driver) Put(ctx context.Context, key, srcPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return Wrap("put", key, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return Wrap("put", key, err)
	}

	_, err = d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &d.cfg.BucketName,
		Key:           aws.String(d.objectKey(key)),
		Body:          src,
		ContentLength: aws.Int64(info.Size()),
	})
	return Wrap("put", key, err)
}

// Delete checks existence first since S3 deletes of missing keys succeed.
func (d *S3Driver) Delete(ctx context.Context, key string) error {
	objKey := aws.String(d.objectKey(key))
	_, err := d.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &d.cfg.BucketName,
		Key:    objKey,
	})
	if isS3NotFound(err) {
		return NotFound("delete", key)
	} else if err != nil {
		return Wrap("delete", key, err)
	}

	_, err = d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &d.cfg.BucketName,
		Key:    objKey,
	})
	return Wrap("delete", key, err)
}

func (d *S3Driver) URL() string {
	return d.url
}

func (d *S3Driver) Close() error {
	return nil
}
