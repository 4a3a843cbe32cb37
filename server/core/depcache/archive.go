package depcache

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// pack writes dir as a gzipped tarball to w. Entry names are relative to
// dir so the archive can be restored anywhere.
func pack(dir string, w io.Writer) error {
	gzw := gzip.NewWriter(w)
	tw := tar.NewWriter(gzw)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		relName, err := filepath.Rel(dir, path)
		if err != nil {
			return errors.Wrap(err, "relativizing path")
		}
		if relName == "." {
			return nil
		}

		var link string
		if info.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return errors.Wrap(err, "reading symlink")
			}
		}

		header, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return errors.Wrap(err, "building tar header")
		}
		header.Name = relName
		if err := tw.WriteHeader(header); err != nil {
			return errors.Wrap(err, "writing tar header")
		}

		if !info.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return errors.Wrap(err, "opening file")
		}
		defer f.Close() //nolint:errcheck
		if _, err := io.Copy(tw, f); err != nil {
			return errors.Wrapf(err, "archiving %s", relName)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := tw.Close(); err != nil {
		return errors.Wrap(err, "closing tar writer")
	}
	return errors.Wrap(gzw.Close(), "closing gzip writer")
}

// unpack restores a gzipped tarball into dir, refusing entries that would
// escape it.
func unpack(r io.Reader, dir string) error {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return errors.Wrap(err, "opening gzip reader")
	}
	defer gzr.Close() //nolint:errcheck

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "reading tar entry")
		}

		dest := filepath.Join(dir, filepath.Clean(header.Name))
		if !strings.HasPrefix(dest, filepath.Clean(dir)+string(os.PathSeparator)) {
			return errors.Errorf("tar entry %q escapes destination", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, os.FileMode(header.Mode)); err != nil {
				return errors.Wrap(err, "creating directory")
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
				return errors.Wrap(err, "creating symlink parent")
			}
			if err := os.Symlink(header.Linkname, dest); err != nil && !os.IsExist(err) {
				return errors.Wrap(err, "restoring symlink")
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
				return errors.Wrap(err, "creating parent directory")
			}
			f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode))
			if err != nil {
				return errors.Wrap(err, "creating file")
			}
			// nolint: gosec
			if _, err := io.Copy(f, tr); err != nil {
				f.Close() //nolint:errcheck
				return errors.Wrapf(err, "restoring %s", header.Name)
			}
			if err := f.Close(); err != nil {
				return errors.Wrap(err, "closing file")
			}
		}
	}
}
