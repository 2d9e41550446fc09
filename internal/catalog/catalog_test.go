package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mlefevre/steamharvest/internal/harvest"
)

const sampleCatalog = `[
  {"URL": "https://store.steampowered.com/app/440/Team_Fortress_2/", "Name": "TF2"},
  {"URL": "https://store.steampowered.com/app/570/Dota_2/"},
  {"URL": "https://store.steampowered.com/app/440/duplicate/"},
  {"URL": "https://store.steampowered.com/bundle/123/not_an_app/"},
  {"Name": "no url at all"}
]`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDiscover_ExtractsUniqueIDs(t *testing.T) {
	t.Parallel()

	universe, err := Discover(writeFile(t, "catalog.json", sampleCatalog))
	require.NoError(t, err)
	require.Equal(t, map[harvest.Identifier]struct{}{440: {}, 570: {}}, universe)
}

func TestDiscover_MissingCatalogIsFatal(t *testing.T) {
	t.Parallel()

	_, err := Discover(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}

func TestDiscover_EmptyCatalogIsFatal(t *testing.T) {
	t.Parallel()

	_, err := Discover(writeFile(t, "catalog.json", `[{"URL": "https://example.com/nope"}]`))
	require.Error(t, err)

	_, err = Discover(writeFile(t, "bad.json", `{broken`))
	require.Error(t, err)
}

func TestLoadUniverse_WritesAndReusesCache(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := Config{
		SourcePath: writeFile(t, "catalog.json", sampleCatalog),
		CachePath:  filepath.Join(dir, "ids.txt"),
	}

	universe, err := LoadUniverse(cfg, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, universe, 2)

	cached, err := os.ReadFile(cfg.CachePath)
	require.NoError(t, err)
	require.Equal(t, "440\n570\n", string(cached))

	// Second load must come from the cache: break the source to prove
	// the catalog is not reread.
	cfg.SourcePath = filepath.Join(dir, "gone.json")
	again, err := LoadUniverse(cfg, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, universe, again)
}

func TestLoadUniverse_RefreshForcesRediscovery(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cachePath := filepath.Join(dir, "ids.txt")
	require.NoError(t, os.WriteFile(cachePath, []byte("999\n"), 0o600))

	cfg := Config{
		SourcePath: writeFile(t, "catalog.json", sampleCatalog),
		CachePath:  cachePath,
		Refresh:    true,
	}

	universe, err := LoadUniverse(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotContains(t, universe, harvest.Identifier(999))
	require.Contains(t, universe, harvest.Identifier(440))

	// And the cache now reflects the fresh discovery.
	cached, err := os.ReadFile(cachePath)
	require.NoError(t, err)
	require.Equal(t, "440\n570\n", string(cached))
}

func TestLoadUniverse_SkipsJunkCacheLines(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cachePath := filepath.Join(dir, "ids.txt")
	require.NoError(t, os.WriteFile(cachePath, []byte("10\nnot-a-number\n\n-3\n20\n"), 0o600))

	universe, err := LoadUniverse(Config{CachePath: cachePath}, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, map[harvest.Identifier]struct{}{10: {}, 20: {}}, universe)
}
