// Package archive packs a directory into a .tar.gz file and unpacks one
// back, refusing entries that would escape the destination.
package archive

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

var ErrUnsafePath = errors.New("archive entry escapes destination")

// Pack writes the regular files under srcDir into dest. The archive is
// written to a sibling temp file and renamed into place, so dest either does
// not exist or is complete.
func Pack(srcDir, dest string) (err error) {
	tmp := dest + ".partial"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrap(err, "create archive")
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	err = filepath.Walk(srcDir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if !info.Mode().IsRegular() && !info.IsDir() {
			return nil
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, in)
		_ = in.Close()
		return err
	})
	if err != nil {
		return errors.Wrap(err, "write archive entries")
	}
	if err = tw.Close(); err != nil {
		return errors.Wrap(err, "close tar")
	}
	if err = gz.Close(); err != nil {
		return errors.Wrap(err, "close gzip")
	}
	if err = f.Sync(); err != nil {
		return errors.Wrap(err, "sync archive")
	}
	if err = f.Close(); err != nil {
		return errors.Wrap(err, "close archive")
	}
	if err = os.Rename(tmp, dest); err != nil {
		return errors.Wrap(err, "rename archive")
	}
	return nil
}

// Unpack extracts src into destDir and returns the relative paths of the
// regular files written.
func Unpack(src, destDir string) ([]string, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, errors.Wrap(err, "open archive")
	}
	defer func() { _ = f.Close() }()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrap(err, "read gzip header")
	}
	defer func() { _ = gz.Close() }()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "mkdir destination")
	}

	var files []string
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return files, nil
		}
		if err != nil {
			return files, errors.Wrap(err, "read tar entry")
		}
		target, err := safeJoin(destDir, hdr.Name)
		if err != nil {
			return files, err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return files, errors.Wrap(err, "mkdir entry")
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return files, errors.Wrap(err, "mkdir entry parent")
			}
			if err := writeFile(target, tr, os.FileMode(hdr.Mode).Perm()); err != nil {
				return files, err
			}
			files = append(files, filepath.ToSlash(hdr.Name))
		default:
			// links and devices are never produced by Pack
		}
	}
}

func writeFile(path string, r io.Reader, mode os.FileMode) error {
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return errors.Wrap(err, "create entry")
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return errors.Wrap(err, "write entry")
	}
	return errors.Wrap(out.Close(), "close entry")
}

func safeJoin(root, name string) (string, error) {
	if name == "" || filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", errors.Wrapf(ErrUnsafePath, "%q", name)
	}
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.Wrapf(ErrUnsafePath, "%q", name)
	}
	return filepath.Join(root, clean), nil
}
