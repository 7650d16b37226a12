package pdf

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, _ := io.ReadAll(in.Body)
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[key] = data
	f.types[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

type fakePresigner struct {
	key     string
	expires time.Duration
}

func (p *fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*presignedRequest, error) {
	o := &s3.PresignOptions{}
	for _, fn := range opts {
		fn(o)
	}
	p.key, p.expires = aws.ToString(in.Key), o.Expires
	return &presignedRequest{URL: "https://bucket.s3.example/" + p.key + "?sig=1"}, nil
}

func TestS3Store_PutAndOpen(t *testing.T) {
	ctx := context.Background()
	api := newFakeS3()
	s := newS3Store(api, &fakePresigner{}, S3Config{Bucket: "immo", Prefix: "guides/"})

	require.NoError(t, s.Put(ctx, "retraite.pdf", []byte("%PDF")))
	assert.Equal(t, []byte("%PDF"), api.objects["immo/guides/retraite.pdf"])
	assert.Equal(t, "application/pdf", api.types["immo/guides/retraite.pdf"])

	rc, err := s.Open(ctx, "retraite.pdf")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "%PDF", string(data))

	require.NoError(t, s.Delete(ctx, "retraite.pdf"))
	_, err = s.Open(ctx, "retraite.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestS3Store_PutError(t *testing.T) {
	api := newFakeS3()
	api.putErr = errors.New("access denied")
	s := newS3Store(api, &fakePresigner{}, S3Config{Bucket: "immo"})
	err := s.Put(context.Background(), "x.pdf", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestS3Store_URLPresigns(t *testing.T) {
	p := &fakePresigner{}
	s := newS3Store(newFakeS3(), p, S3Config{Bucket: "immo", Prefix: "guides/"})

	u, err := s.URL(context.Background(), "famille.pdf", 0)
	require.NoError(t, err)
	assert.Equal(t, "https://bucket.s3.example/guides/famille.pdf?sig=1", u)
	assert.Equal(t, 15*time.Minute, p.expires)

	_, err = s.URL(context.Background(), "famille.pdf", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, p.expires)
}
