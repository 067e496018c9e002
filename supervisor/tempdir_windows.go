//go:build windows

// devtools-protocol - a Go CDP pipe-transport broker.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See https://www.gnu.org/licenses/ for details.

package supervisor

import (
	"os"
	"path/filepath"
)

// removeTempDirWithFallback walks dir, chmod-ing read-only files to
// writable before retrying delete, per spec §4.7 ("On Windows the
// temp-dir removal walks the tree..."), grounded on original_source/
// devtools/browser.py's finish_close.
func removeTempDirWithFallback(dir string) error {
	err := os.RemoveAll(dir)
	if err == nil {
		return nil
	}

	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if !info.Mode().IsDir() && info.Mode().Perm()&0o200 == 0 {
			_ = os.Chmod(path, 0o600)
		}
		return nil
	})
	if walkErr != nil {
		return walkErr
	}
	return os.RemoveAll(dir)
}
