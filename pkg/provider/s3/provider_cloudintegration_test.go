//go:build cloudintegration

package s3

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/vr180/test/cloudtest"
)

func TestProvider_PutObject_Cloud(t *testing.T) {
	cloudtest.SkipIfUnavailable(t)
	ctx := context.Background()
	bucket := cloudtest.CreateBucket(t, ctx)

	p, err := New(ctx, Config{
		Bucket:          bucket,
		Prefix:          "exports",
		Region:          cloudtest.Region,
		Endpoint:        cloudtest.Endpoint,
		AccessKeyID:     cloudtest.AccessKeyID,
		SecretAccessKey: cloudtest.SecretAccessKey,
		ForcePathStyle:  true,
	})
	require.NoError(t, err)

	body := []byte("converted")
	require.NoError(t, p.PutObject(ctx, "vr180-clip.mp4", bytes.NewReader(body), int64(len(body))))

	got, contentType := cloudtest.GetObject(t, ctx, bucket, "exports/vr180-clip.mp4")
	assert.Equal(t, body, got)
	assert.Equal(t, ContentType, contentType)

	require.NoError(t, p.DeleteObject(ctx, "vr180-clip.mp4"))
}
