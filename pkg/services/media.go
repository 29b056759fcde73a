package services

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dev-sujan/prepdesk/pkg/corpus"
	"github.com/dev-sujan/prepdesk/pkg/models"
)

// MediaFile describes one stored asset and the path guides reference it by.
type MediaFile struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

// Media stores and lists the files guides embed. Storage and reference
// folders come from the site config, with per-collection overrides winning.
type Media struct {
	repoPath string
	site     *models.SiteConfig
}

// NewMedia creates a Media service rooted at the repository.
func NewMedia(repoPath string, site *models.SiteConfig) *Media {
	return &Media{repoPath: repoPath, site: site}
}

func (m *Media) folders(collectionName string) (string, string, error) {
	mediaFolder, publicFolder := m.site.MediaFolder, m.site.PublicFolder
	if collectionName != "" {
		if col := m.site.CollectionByName(collectionName); col != nil && col.MediaFolder != "" {
			mediaFolder, publicFolder = col.MediaFolder, col.PublicFolder
		}
	}
	if mediaFolder == "" {
		return "", "", fmt.Errorf("media_folder not configured")
	}
	return mediaFolder, publicFolder, nil
}

// refPath builds the path guides use to reference an asset. Without an
// explicit public folder, static/ trees serve from the web root and content/
// images resolve relative to the page.
func refPath(mediaFolder, publicFolder, name string) string {
	if publicFolder != "" {
		return path.Join("/", filepath.ToSlash(publicFolder), name)
	}
	folder := filepath.ToSlash(mediaFolder)
	switch {
	case strings.HasPrefix(folder, "static/"):
		return path.Join("/", strings.TrimPrefix(folder, "static/"), name)
	case strings.HasPrefix(folder, "content/"):
		return name
	default:
		return path.Join("/", folder, name)
	}
}

// List returns the assets in the collection's media folder, sorted by name.
// The folder is created on first use.
func (m *Media) List(collectionName string) ([]MediaFile, error) {
	mediaFolder, publicFolder, err := m.folders(collectionName)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(m.repoPath, filepath.FromSlash(mediaFolder))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("media folder: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}

	var files []MediaFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		ref := refPath(mediaFolder, publicFolder, entry.Name())
		files = append(files, MediaFile{Name: entry.Name(), Path: ref, Size: info.Size(), URL: ref})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Save stores an upload under a timestamped name so re-uploads of the same
// file never clobber each other.
func (m *Media) Save(header *multipart.FileHeader, collectionName string) (*MediaFile, error) {
	mediaFolder, publicFolder, err := m.folders(collectionName)
	if err != nil {
		return nil, err
	}

	src, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer func() { _ = src.Close() }()

	base := strings.ReplaceAll(filepath.Base(header.Filename), " ", "_")
	ext := filepath.Ext(base)
	name := fmt.Sprintf("%s_%d%s", strings.TrimSuffix(base, ext), time.Now().Unix(), ext)

	absPath, err := corpus.SafeJoin(m.repoPath, filepath.FromSlash(mediaFolder), name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("media folder: %w", err)
	}

	dst, err := os.Create(absPath)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	defer func() { _ = dst.Close() }()
	if _, err := io.Copy(dst, src); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	ref := refPath(mediaFolder, publicFolder, name)
	return &MediaFile{Name: name, Path: ref, Size: header.Size, URL: ref}, nil
}

// Delete removes one asset by name.
func (m *Media) Delete(filename, collectionName string) error {
	absPath, err := m.AbsPath(filename, collectionName)
	if err != nil {
		return err
	}
	if err := os.Remove(absPath); err != nil {
		return fmt.Errorf("delete media %s: %w", filename, err)
	}
	return nil
}

// AbsPath resolves an asset name inside the media folder for raw serving.
func (m *Media) AbsPath(filename, collectionName string) (string, error) {
	mediaFolder, _, err := m.folders(collectionName)
	if err != nil {
		return "", err
	}
	return corpus.SafeJoin(m.repoPath, filepath.FromSlash(mediaFolder), filepath.Base(filename))
}
