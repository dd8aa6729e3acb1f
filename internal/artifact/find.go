package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/JakeFAU/site-screenshot-crawler/internal/crawler"
)

// Entry describes one screenshot on disk.
type Entry struct {
	Path    string             `json:"path"`
	Domain  string             `json:"domain"`
	RunID   string             `json:"run_id,omitempty"`
	Device  crawler.DeviceName `json:"device"`
	Size    int64              `json:"size"`
	ModTime time.Time          `json:"mod_time"`
}

// Filter narrows Find. Zero fields match everything.
type Filter struct {
	// Date is a capture day as YYYY-MM-DD, compared against the file's mtime in UTC.
	Date   string
	Domain string
	Device crawler.DeviceName
}

// GalleryDir groups the images of one directory.
type GalleryDir struct {
	Dir    string   `json:"dir"`
	Images []string `json:"images"`
}

// Find lists the screenshots under the root that match filter, ordered by path.
func (s *Store) Find(filter Filter) ([]Entry, error) {
	if filter.Date != "" {
		if _, err := time.Parse(time.DateOnly, filter.Date); err != nil {
			return nil, fmt.Errorf("date must be YYYY-MM-DD: %w", err)
		}
	}
	domain := DomainLabel(filter.Domain)

	var out []Entry
	err := s.walkImages(func(rel string, info fs.FileInfo) {
		entry, ok := parseEntry(rel, info)
		if !ok {
			return
		}
		if domain != "" && entry.Domain != domain {
			return
		}
		if filter.Device != "" && entry.Device != filter.Device {
			return
		}
		if filter.Date != "" && entry.ModTime.UTC().Format(time.DateOnly) != filter.Date {
			return
		}
		out = append(out, entry)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Gallery groups every image under the root by its directory.
func (s *Store) Gallery() ([]GalleryDir, error) {
	byDir := make(map[string][]string)
	err := s.walkImages(func(rel string, _ fs.FileInfo) {
		dir := filepath.Dir(rel)
		byDir[dir] = append(byDir[dir], filepath.Base(rel))
	})
	if err != nil {
		return nil, err
	}
	out := make([]GalleryDir, 0, len(byDir))
	for dir, images := range byDir {
		sort.Strings(images)
		out = append(out, GalleryDir{Dir: filepath.ToSlash(dir), Images: images})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Dir < out[j].Dir })
	return out, nil
}

func (s *Store) walkImages(fn func(rel string, info fs.FileInfo)) error {
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(p), ".png") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return nil
		}
		fn(rel, info)
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk artifacts: %w", err)
	}
	return nil
}

// parseEntry reads domain, run and device from label/run/device/file or
// label/device/file.
func parseEntry(rel string, info fs.FileInfo) (Entry, bool) {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	entry := Entry{
		Path:    filepath.ToSlash(rel),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	switch len(parts) {
	case 3:
		entry.Domain, entry.Device = parts[0], crawler.DeviceName(parts[1])
	case 4:
		entry.Domain, entry.RunID, entry.Device = parts[0], parts[1], crawler.DeviceName(parts[2])
	default:
		return Entry{}, false
	}
	return entry, true
}
