package bootstrap

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yigit/educhat/internal/config"
	"github.com/yigit/educhat/internal/pkg/filestorage"
)

func TestLocalAttachmentURLMatchesStaticRoute(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.Port = "4000"
	cfg.Storage.Driver = config.StorageLocal
	cfg.Storage.Path = t.TempDir()

	storage := SetupFileStorage(cfg)
	local, ok := storage.(*filestorage.LocalStorage)
	require.True(t, ok)
	assert.Equal(t, cfg.Storage.Path, local.Dir())

	ctx := context.Background()
	_, err := storage.Save(ctx, "1718000000000_report.pdf", strings.NewReader("%PDF-1.4"), "application/pdf")
	require.NoError(t, err)

	u, err := storage.URL(ctx, "1718000000000_report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:4000/uploads/1718000000000_report.pdf", u)
}

func TestS3BackendSelected(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Driver = config.StorageS3
	cfg.Storage.S3.Bucket = "attachments"
	cfg.Storage.S3.Region = "us-east-1"

	_, ok := SetupFileStorage(cfg).(*filestorage.S3Storage)
	assert.True(t, ok)
}
