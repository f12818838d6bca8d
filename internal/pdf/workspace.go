package pdf

import (
	"os"
	"path/filepath"

	"github.com/qiuxuhao/pdf-merge-tool/internal/storage"
)

const metaFilename = "meta.json"

func manifestPath(ws storage.Workspace) string {
	return filepath.Join(ws.Dir, manifestFilename)
}

func metaPath(ws storage.Workspace) string {
	return filepath.Join(ws.OutDir, metaFilename)
}

func removeDir(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
