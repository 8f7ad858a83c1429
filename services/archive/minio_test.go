package archivesvc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "s1/s1_shards.gob.zst", objectKey("s1", "/data/s1/s1_shards.gob.zst"))
	assert.Equal(t, "s1/hrv_features.csv", objectKey("s1", "hrv_features.csv"))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "text/csv", contentType("/data/s1/hrv_features.csv"))
	assert.Equal(t, "application/zstd", contentType("/data/s1/s1_shards.gob.zst"))
	assert.Equal(t, "application/octet-stream", contentType("/data/s1/landmarks_001"))
}
