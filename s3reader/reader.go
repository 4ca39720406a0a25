// Package s3reader adapts an S3 object into the seekable byte stream the archive index needs, using ranged GetObject
// calls so that only the trailer, the central directory, and whatever entries the caller opens are ever transferred.
package s3reader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Reader reads an S3 object via ranged GetObject.
type Reader interface {
	io.ReadSeeker
	io.ReaderAt

	// Size returns the object's size in bytes.
	Size() int64
}

// Client abstracts the S3 APIs needed to implement Reader.
type Client interface {
	GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Options customises New.
type Options struct {
	// CtxFn returns the context.Context used for every GetObject or HeadObject call.
	//
	// By default, context.Background is used.
	CtxFn func() context.Context

	// ModifyGetObjectInput can be used to modify the GetObject input parameters such as adding
	// ExpectedBucketOwner. Its return value is what gets sent.
	ModifyGetObjectInput func(*s3.GetObjectInput) *s3.GetObjectInput

	// ModifyHeadObjectInput can likewise modify the HeadObject call that determines the object size.
	ModifyHeadObjectInput func(*s3.HeadObjectInput) *s3.HeadObjectInput
}

// New returns a Reader over the object at bucket and key, sized via HeadObject.
func New(client Client, bucket, key string, optFns ...func(*Options)) (Reader, error) {
	opts := &Options{
		CtxFn:                 context.Background,
		ModifyGetObjectInput:  func(input *s3.GetObjectInput) *s3.GetObjectInput { return input },
		ModifyHeadObjectInput: func(input *s3.HeadObjectInput) *s3.HeadObjectInput { return input },
	}
	for _, fn := range optFns {
		fn(opts)
	}

	headObjectOutput, err := client.HeadObject(opts.CtxFn(), opts.ModifyHeadObjectInput(&s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}))
	if err != nil {
		return nil, fmt.Errorf("determine object size error: %w", err)
	}

	return &reader{
		client: client,
		bucket: bucket,
		key:    key,
		opts:   opts,
		size:   aws.ToInt64(headObjectOutput.ContentLength),
	}, nil
}

// NewWithSize is New for callers that already know the object size, skipping the HeadObject call.
func NewWithSize(client Client, bucket, key string, size int64, optFns ...func(*Options)) Reader {
	opts := &Options{
		CtxFn:                context.Background,
		ModifyGetObjectInput: func(input *s3.GetObjectInput) *s3.GetObjectInput { return input },
	}
	for _, fn := range optFns {
		fn(opts)
	}

	return &reader{client: client, bucket: bucket, key: key, opts: opts, size: size}
}

// bufferSize is the smallest range ever requested by Read; sequential small reads are served from this buffer instead
// of one GetObject each.
const bufferSize = 64 * 1024

type reader struct {
	client      Client
	bucket, key string
	opts        *Options
	size        int64
	off         int64
	buf         bytes.Buffer
}

func (r *reader) Size() int64 {
	return r.size
}

func (r *reader) Read(p []byte) (n int, err error) {
	if r.off >= r.size {
		return 0, io.EOF
	}

	if r.buf.Len() == 0 {
		end := min(r.off+max(int64(len(p)), bufferSize), r.size) - 1
		if err = r.fill(r.off, end); err != nil {
			return 0, err
		}
	}

	n, err = r.buf.Read(p)
	r.off += int64(n)
	return n, err
}

func (r *reader) ReadAt(p []byte, off int64) (n int, err error) {
	if off >= r.size {
		return 0, io.EOF
	}

	end := min(off+int64(len(p)), r.size) - 1
	getObjectOutput, err := r.getRange(off, end)
	if err != nil {
		return 0, err
	}
	defer getObjectOutput.Body.Close()

	n, err = io.ReadFull(getObjectOutput.Body, p[:end-off+1])
	if err == nil && int64(n) < int64(len(p)) {
		err = io.EOF
	}
	return n, err
}

func (r *reader) Seek(offset int64, whence int) (int64, error) {
	var off int64
	switch whence {
	case io.SeekStart:
		off = offset
	case io.SeekCurrent:
		off = r.off + offset
	case io.SeekEnd:
		off = r.size + offset
	default:
		return 0, fmt.Errorf("invalid whence: %d", whence)
	}

	if off < 0 {
		return 0, errors.New("seek before start of object")
	}

	if off != r.off {
		r.off = off
		r.buf.Reset()
	}
	return r.off, nil
}

// fill replaces the read-ahead buffer with the inclusive byte range [start, end].
func (r *reader) fill(start, end int64) error {
	r.buf.Reset()

	getObjectOutput, err := r.getRange(start, end)
	if err != nil {
		return err
	}

	_, err = r.buf.ReadFrom(getObjectOutput.Body)
	if closeErr := getObjectOutput.Body.Close(); err == nil {
		err = closeErr
	}
	return err
}

func (r *reader) getRange(start, end int64) (*s3.GetObjectOutput, error) {
	return r.client.GetObject(r.opts.CtxFn(), r.opts.ModifyGetObjectInput(&s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", start, end)),
	}))
}
