package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"supportchat/internal/ai"
	"supportchat/internal/config"
	"supportchat/internal/logging"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	cfg.LLM.APIKey = ""
	cfg.Redis.Enabled = false
	cfg.RabbitMQ.Enabled = false
	return cfg
}

func TestNewGateway_SelectsProvider(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	gw, err := NewGateway(ctx, cfg)
	require.NoError(t, err)
	require.IsType(t, ai.Unconfigured{}, gw)

	cfg.LLM.APIKey = "key"
	cfg.LLM.Provider = config.ProviderGemini
	gw, err = NewGateway(ctx, cfg)
	require.NoError(t, err)
	require.IsType(t, &ai.GeminiClient{}, gw)

	cfg.LLM.Provider = config.ProviderOpenAI
	cfg.LLM.BaseURL = "http://127.0.0.1:1/v1"
	gw, err = NewGateway(ctx, cfg)
	require.NoError(t, err)
	require.IsType(t, &ai.OpenAICompatibleClient{}, gw)
}

func TestNew_WiresSQLiteApp(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t)
	cfg.SQLite.Path = filepath.Join(dir, "database.sqlite")
	cfg.Chat.CorpusPath = filepath.Join(dir, "docs.json")
	require.NoError(t, os.WriteFile(cfg.Chat.CorpusPath, []byte(`[{"title":"Hours","content":"9 to 5"}]`), 0o600))

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	require.NotNil(t, a.DB)
	require.NotNil(t, a.ChatService)
	require.Nil(t, a.Redis)
	require.Nil(t, a.MQConn)
	require.True(t, a.DB.Migrator().HasTable("sessions"))
	require.True(t, a.DB.Migrator().HasTable("messages"))
	require.IsType(t, &logging.GormLogger{}, a.DB.Logger)
}

func TestNew_MissingCorpus(t *testing.T) {
	cfg := testConfig(t)
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "database.sqlite")
	cfg.Chat.CorpusPath = filepath.Join(t.TempDir(), "none.json")

	_, err := New(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "load corpus failed")
}
