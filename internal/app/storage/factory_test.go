package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acectf/roster-sync/internal/config"
)

func TestNewStorageFactory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     *config.Config
		wantErr string
	}{
		{name: "nil config", wantErr: "config cannot be nil"},
		{name: "memory", cfg: &config.Config{Storage: config.StorageConfig{Type: config.StorageTypeMemory}}},
		{
			name:    "database without settings",
			cfg:     &config.Config{Storage: config.StorageConfig{Type: config.StorageTypeDatabase}},
			wantErr: "database configuration is required",
		},
		{
			name:    "unknown type",
			cfg:     &config.Config{Storage: config.StorageConfig{Type: "file"}},
			wantErr: "unknown storage type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			factory, err := NewStorageFactory(context.Background(), tt.cfg)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			defer factory.Cleanup()

			backend := factory.Backend()
			require.NotNil(t, backend)
			assert.NoError(t, backend.Ping(context.Background()))
			standings, err := backend.Standings(context.Background())
			require.NoError(t, err)
			assert.Empty(t, standings)
		})
	}
}
