package mirror

import (
	"bytes"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// S3Writer uploads mirror files to an S3 bucket instead of a local
// directory: one PutObject per mirror path, content type inferred from the
// path's extension since the mirror no longer carries the original
// response headers by this stage.
type S3Writer struct {
	svc    *s3.S3
	bucket string
	prefix string
}

func init() {
	register("s3", newS3Writer)
}

// newS3Writer expects path in "<region>:<bucket>[:<key-prefix>]" form.
func newS3Writer(path string) (Writer, error) {
	parts := strings.SplitN(path, ":", 3)
	if len(parts) < 2 {
		return nil, fmt.Errorf(`mirror: s3 target %q does not have expected format "<region>:<bucket>[:<prefix>]"`, path)
	}
	region, bucket := parts[0], parts[1]
	prefix := ""
	if len(parts) == 3 {
		prefix = strings.Trim(parts[2], "/")
	}
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("mirror: s3 session: %w", err)
	}
	return &S3Writer{svc: s3.New(sess), bucket: bucket, prefix: prefix}, nil
}

func (w *S3Writer) Write(mirrorPath string, body []byte) error {
	key := strings.TrimPrefix(mirrorPath, "/")
	if w.prefix != "" {
		key = w.prefix + "/" + key
	}

	obj := &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentTypeForPath(key)),
	}
	_, err := w.svc.PutObject(obj)
	if err != nil {
		return fmt.Errorf("mirror: s3 put %s: %w", key, err)
	}
	return nil
}

func (w *S3Writer) Close() error { return nil }

func contentTypeForPath(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
