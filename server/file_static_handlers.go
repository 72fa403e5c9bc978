package server

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
)

//go:embed static/*
var staticFiles embed.FS

// staticAsset is an embedded file ready to be served
type staticAsset struct {
	data        []byte
	contentType string
	etag        string
}

// staticAssets indexes the embedded files once, keyed by their path under static/
var staticAssets = sync.OnceValues(func() (map[string]staticAsset, error) {
	assets := map[string]staticAsset{}
	err := fs.WalkDir(StaticFilesFS(), ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := fs.ReadFile(StaticFilesFS(), path)
		if err != nil {
			return err
		}
		sum := sha256.Sum256(data)
		assets[path] = staticAsset{
			data:        data,
			contentType: contentTypeFor(path, data),
			etag:        `"` + hex.EncodeToString(sum[:8]) + `"`,
		}
		return nil
	})
	return assets, err
})

func StaticFilesFS() fs.FS {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic("Failed to create sub filesystem: " + err.Error())
	}
	return subFS
}

// StreamFile writes the embedded asset fileName. A request whose If-None-Match
// carries the asset's ETag gets a 304. Unknown files return an error wrapping
// fs.ErrNotExist.
func StreamFile(w http.ResponseWriter, r *http.Request, fileName string) error {
	assets, err := staticAssets()
	if err != nil {
		return fmt.Errorf("failed to index static files: %w", err)
	}
	asset, ok := assets[fileName]
	if !ok {
		return fmt.Errorf("static file %s: %w", fileName, fs.ErrNotExist)
	}

	w.Header().Set("ETag", asset.etag)
	if r != nil && r.Header.Get("If-None-Match") == asset.etag {
		w.WriteHeader(http.StatusNotModified)
		return nil
	}
	w.Header().Set("Content-Type", asset.contentType)
	if _, err := w.Write(asset.data); err != nil {
		return fmt.Errorf("failed to write %s content: %w", fileName, err)
	}
	return nil
}

func contentTypeFor(fileName string, data []byte) string {
	ctype := mime.TypeByExtension(strings.ToLower(filepath.Ext(fileName)))
	if ctype == "" {
		ctype = http.DetectContentType(data)
	}
	// Ensure UTF-8 for text types when not present
	if strings.HasPrefix(ctype, "text/") && !strings.Contains(strings.ToLower(ctype), "charset=") {
		ctype += "; charset=utf-8"
	}
	return ctype
}
