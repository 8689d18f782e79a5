package inventory

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Statements that change lot remainders, create lots, or touch the
// adjustment ledger may only appear in this package. Everything else goes
// through Consume/Restock/Recount so the ledger stays authoritative.
var forbiddenOutsideEngine = []string{
	"UPDATE inventory_lots",
	"INSERT INTO inventory_lots",
	"INSERT INTO inventory_adjustments",
	"stock_quantity =",
	"stock_quantity=",
}

func TestStockMutationsStayInsideEngine(t *testing.T) {
	root := moduleRoot(t)
	engineDir := filepath.Join(root, "internal", "inventory")

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			// Skip vendored/reference trees and the engine itself.
			if strings.HasPrefix(info.Name(), "_") || info.Name() == "vendor" || path == engineDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		for _, pattern := range forbiddenOutsideEngine {
			if strings.Contains(string(content), pattern) {
				t.Errorf("%s contains %q; stock mutations must go through internal/inventory", path, pattern)
			}
		}
		return nil
	})
	require.NoError(t, err)
}

// moduleRoot walks up from the package directory to the go.mod.
func moduleRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	require.NoError(t, err)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		require.NotEqual(t, dir, parent, "go.mod not found above package directory")
		dir = parent
	}
}
