package crawler

import (
	"path/filepath"
	"testing"

	"booruscraper/pkg/config"
	"booruscraper/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactName(t *testing.T) {
	assert.Equal(t, "touhou_00001.jpg", ArtifactName("touhou", 1, "jpg"))
	assert.Equal(t, "touhou_12345.webm", ArtifactName("touhou", 12345, "webm"))
	assert.Equal(t, "touhou_123456.png", ArtifactName("touhou", 123456, "png"))
}

func TestFilePrefix(t *testing.T) {
	tests := []struct {
		tag  string
		want string
	}{
		{"hatsune_miku", "hatsune_miku"},
		{"hatsune_miku rating:general", "hatsune_miku"},
		{"kagamine_rin+kagamine_len", "kagamine_rin"},
		{"fate/grand_order", "fate_grand_order"},
		{"shirakami_fubuki_(1st_costume)", "shirakami_fubuki_(1st_costume)"},
		{"   ", "post"},
		{"???", "post"},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			assert.Equal(t, tt.want, FilePrefix(tt.tag))
		})
	}
}

func TestDatasetName(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"plain", func(*config.Config) {}, "danbooru_touhou"},
		{"ratings and sample", func(c *config.Config) {
			c.Filter.Ratings = []string{"General", "sensitive"}
			c.Output.Sample = true
		}, "danbooru_touhou_general_sensitive_sample"},
		{"single character with video", func(c *config.Config) {
			c.Filter.SingleCharacter = true
			c.Filter.Media = config.MediaWithVideo
		}, "danbooru_touhou_single-character_with-video"},
		{"video only on sankaku", func(c *config.Config) {
			c.Site.Name = config.SiteSankaku
			c.Filter.Media = config.MediaVideoOnly
		}, "sankaku_touhou_video-only"},
		{"ai excluded", func(c *config.Config) { c.Search.AI = config.AIExclude }, filepath.Join("danbooru_touhou", "no_ai")},
		{"ai only", func(c *config.Config) { c.Search.AI = config.AIOnly }, filepath.Join("danbooru_touhou", "ai_only")},
		{"explicit dataset", func(c *config.Config) { c.Output.Dataset = "mine" }, "mine"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Crawl.Tags = []string{"touhou"}
			tt.mutate(cfg)
			assert.Equal(t, tt.want, DatasetName(cfg))
		})
	}
}

func TestPlannerSingleTag(t *testing.T) {
	root := t.TempDir()
	store, err := storage.NewManager(root, "")
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Crawl.Tags = []string{"hakurei_reimu"}
	cfg.Filter.Ratings = []string{"General"}

	target, err := NewPlanner(cfg, store).Target("hakurei_reimu")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "danbooru_hakurei_reimu_general"), target.Dir)
	assert.Equal(t, "hakurei_reimu -holostars rating:general", target.Query)
	assert.Equal(t, "hakurei_reimu", target.Prefix)
}

func TestPlannerGivesEachTagItsOwnScope(t *testing.T) {
	root := t.TempDir()
	store, err := storage.NewManager(root, "")
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Crawl.Tags = []string{"hakurei_reimu", "kirisame_marisa"}
	cfg.Filter.Ratings = []string{"general", "sensitive"}
	cfg.Search.ExcludeTags = nil
	planner := NewPlanner(cfg, store)

	reimu, err := planner.Target("hakurei_reimu")
	require.NoError(t, err)
	marisa, err := planner.Target("kirisame_marisa")
	require.NoError(t, err)

	dataset := filepath.Join(root, "danbooru_hakurei_reimu_general_sensitive")
	assert.Equal(t, filepath.Join(dataset, "hakurei_reimu"), reimu.Dir)
	assert.Equal(t, filepath.Join(dataset, "kirisame_marisa"), marisa.Dir)
	assert.Equal(t, "kirisame_marisa", marisa.Query, "several ratings are filtered locally, not in the query")
}

func TestPlannerRejectsEscapingScope(t *testing.T) {
	store, err := storage.NewManager(t.TempDir(), "")
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Output.Dataset = "../outside"
	cfg.Crawl.Tags = []string{"touhou"}

	_, err = NewPlanner(cfg, store).Target("touhou")
	assert.Error(t, err)
}
