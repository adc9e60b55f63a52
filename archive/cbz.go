package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrEmptySource is returned when a staging directory holds no files.
var ErrEmptySource = errors.New("staging directory is empty")

// PartSuffix marks an image that is still being written.
const PartSuffix = ".part"

// Build folds every file in stagingDir plus the metadata document into
// destDir/<name>.cbz and returns the archive path.
//
// Files are flattened (sub directories are walked but only base names are
// kept) and added in name order, so zero-padded page names keep page order.
// The archive is written to a temp file in destDir and renamed into place,
// so an interrupted build never leaves a truncated .cbz behind. The staging
// directory is removed only after the rename succeeded.
func Build(stagingDir string, info *ComicInfo, destDir, name string) (string, error) {
	files, err := stagedFiles(stagingDir)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		log.Printf("[Archive] ⚠️ No files found in %s", stagingDir)
		return "", fmt.Errorf("%s: %w", stagingDir, ErrEmptySource)
	}

	metadata, err := info.Marshal()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create destination %s: %w", destDir, err)
	}

	finalPath := filepath.Join(destDir, name+".cbz")

	tmp, err := os.CreateTemp(destDir, "."+name+".*.cbz.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp archive: %w", err)
	}
	tmpPath := tmp.Name()

	if err := writeZip(tmp, files, metadata); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to sync archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close archive: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to move archive into place: %w", err)
	}

	log.Printf("[Archive] ✓ Created %s (%d pages)", finalPath, len(files))

	if err := os.RemoveAll(stagingDir); err != nil {
		log.Printf("[Archive] Failed to clean up %s: %v", stagingDir, err)
	} else {
		log.Printf("[Archive] Cleaned up %s", stagingDir)
	}

	return finalPath, nil
}

// stagedFiles lists regular files below dir, sorted by base name.
func stagedFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		// .part files are unfinished downloads from an interrupted run
		if d.Type().IsRegular() && !strings.HasSuffix(d.Name(), PartSuffix) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read staging directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool {
		return filepath.Base(files[i]) < filepath.Base(files[j])
	})
	return files, nil
}

func writeZip(w io.Writer, files []string, metadata []byte) error {
	zw := zip.NewWriter(w)

	for _, path := range files {
		if err := addFile(zw, path); err != nil {
			zw.Close()
			return err
		}
	}

	mw, err := zw.CreateHeader(&zip.FileHeader{Name: ComicInfoName, Method: zip.Deflate})
	if err != nil {
		zw.Close()
		return fmt.Errorf("error creating zip entry %s: %w", ComicInfoName, err)
	}
	if _, err := mw.Write(metadata); err != nil {
		zw.Close()
		return fmt.Errorf("error writing %s: %w", ComicInfoName, err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("error closing zip writer: %w", err)
	}
	return nil
}

func addFile(zw *zip.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = filepath.Base(path)
	header.Method = zip.Deflate

	entry, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("error creating zip entry %s: %w", header.Name, err)
	}
	if _, err := io.Copy(entry, f); err != nil {
		return fmt.Errorf("error writing %s: %w", header.Name, err)
	}
	return nil
}
