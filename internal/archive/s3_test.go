package archive

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/lexiqai/article-voice/internal/pipeline"
)

type MockPutter struct {
	mock.Mock
}

func (m *MockPutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.PutObjectOutput)
	return out, args.Error(1)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "req-1/part_3.mp3", Key("req-1", pipeline.NewArtifact(3, nil)))
}

func TestSave_Success(t *testing.T) {
	putter := new(MockPutter)
	artifact := pipeline.NewArtifact(0, []byte("mp3-bytes"))

	putter.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		body, _ := io.ReadAll(in.Body)
		return aws.ToString(in.Bucket) == "audio" &&
			aws.ToString(in.Key) == "req-1/part_0.mp3" &&
			aws.ToString(in.ContentType) == "audio/mpeg" &&
			string(body) == "mp3-bytes"
	})).Return(&s3.PutObjectOutput{}, nil)

	location, err := NewS3Archive(putter, "audio").Save(context.Background(), "req-1", artifact)

	assert.NoError(t, err)
	assert.Equal(t, "s3://audio/req-1/part_0.mp3", location)
	putter.AssertExpectations(t)
}

func TestSave_Error(t *testing.T) {
	putter := new(MockPutter)
	putter.On("PutObject", mock.Anything, mock.Anything).Return(nil, errors.New("AccessDenied"))

	_, err := NewS3Archive(putter, "audio").Save(context.Background(), "req-1", pipeline.NewArtifact(2, nil))

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "req-1/part_2.mp3")
	assert.Contains(t, err.Error(), "AccessDenied")
}
