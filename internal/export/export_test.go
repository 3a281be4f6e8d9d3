package export

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/emla-tracker/internal/result"
	"github.com/sells-group/emla-tracker/internal/tabular"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakePutter struct {
	key, bucket, contentType string
	body                     []byte
	err                      error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bucket = aws.ToString(in.Bucket)
	f.key = aws.ToString(in.Key)
	f.contentType = aws.ToString(in.ContentType)
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

var finished = time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

func failedResult() *result.UploadResult {
	r := &result.UploadResult{}
	r.AddError(3, "Update failed: timeout", []tabular.Cell{{Header: "Customer Name", Value: "Acme"}})
	return r.Finalize()
}

func TestFileSink_Put(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	loc, err := FileSink{Dir: dir}.Put(context.Background(), "../escape.csv", []byte("a,b\n"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "escape.csv"), loc)

	data, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(data))
}

func TestS3Sink_Put(t *testing.T) {
	fp := &fakePutter{}
	sink := newS3Sink(fp, S3Config{Bucket: "emla-exports", Prefix: "/failed/"})

	loc, err := sink.Put(context.Background(), "x.csv", []byte("data"))
	require.NoError(t, err)
	assert.Equal(t, "s3://emla-exports/failed/x.csv", loc)
	assert.Equal(t, "failed/x.csv", fp.key)
	assert.Equal(t, "emla-exports", fp.bucket)
	assert.Equal(t, "text/csv", fp.contentType)
	assert.Equal(t, "data", string(fp.body))
}

func TestS3Sink_PutError(t *testing.T) {
	sink := newS3Sink(&fakePutter{err: errors.New("access denied")}, S3Config{Bucket: "b"})
	_, err := sink.Put(context.Background(), "x.csv", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://b/x.csv")
}

func TestNewS3Sink_RequiresBucket(t *testing.T) {
	_, err := NewS3Sink(context.Background(), S3Config{})
	assert.Error(t, err)
}

func TestFailedRows(t *testing.T) {
	dir := t.TempDir()

	loc, err := FailedRows(context.Background(), FileSink{Dir: dir}, failedResult(), finished)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "failed-rows-20240501-123000.csv"), loc)

	data, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Update failed: timeout"`)

	loc, err = FailedRows(context.Background(), FileSink{Dir: dir}, (&result.UploadResult{}).Finalize(), finished)
	require.NoError(t, err)
	assert.Empty(t, loc)
}
