package fetch

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/xi2/xz"

	"github.com/hoover/setup/internal/errs"
	"github.com/hoover/setup/internal/logger"
)

// ArchiveID is the plan identity of an archive-sourced component: a digest
// of the archive URL, standing in for a cloned commit. Release URLs embed
// the version, so a changed URL is a changed desired version.
func ArchiveID(url string) string {
	sum := sha256.Sum256([]byte(url))
	return "archive:" + hex.EncodeToString(sum[:])[:12]
}

// InstallArchive downloads url and unpacks it so that the archive's
// top-level directory becomes dir. An existing dir is replaced only after
// the new tree is fully extracted.
func InstallArchive(ctx context.Context, url, dir string) error {
	tmp, err := os.MkdirTemp(filepath.Dir(dir), ".fetch-*")
	if err != nil {
		return errs.Wrap(errs.KindExecution, err, "create staging directory")
	}
	defer os.RemoveAll(tmp)

	archive := filepath.Join(tmp, path.Base(url))
	if err := download(ctx, url, archive); err != nil {
		return err
	}

	top, err := extract(archive, filepath.Join(tmp, "unpacked"))
	if err != nil {
		return errs.Wrap(errs.KindExecution, err, "extract %s", path.Base(url))
	}

	if err := os.RemoveAll(dir); err != nil {
		return errs.Wrap(errs.KindExecution, err, "remove old %s", dir)
	}
	if err := os.Rename(top, dir); err != nil {
		return errs.Wrap(errs.KindExecution, err, "move unpacked tree to %s", dir)
	}
	return nil
}

func download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errs.Wrap(errs.KindValidation, err, "build request for %s", url)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return errs.Wrap(errs.KindNetwork, err, "download %s", url)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logger.Warn("[WARN] Failed to close response body: %v\n", cerr)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return errs.New(errs.KindNetwork, "download %s: HTTP status %d", url, resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return errs.Wrap(errs.KindExecution, err, "create %s", dest)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return errs.Wrap(errs.KindNetwork, err, "write %s", dest)
	}
	if err := out.Close(); err != nil {
		return errs.Wrap(errs.KindExecution, err, "close %s", dest)
	}
	logger.Debug("[DEBUG] Downloaded %s to %s\n", url, dest)
	return nil
}

// extract unpacks src into dest and returns the path of the archive's
// top-level directory. Format is routed by file extension.
func extract(src, dest string) (string, error) {
	switch {
	case strings.HasSuffix(src, ".zip"):
		return extractZip(src, dest)
	case strings.HasSuffix(src, ".7z"):
		return extract7z(src, dest)
	case strings.HasSuffix(src, ".tar"),
		strings.HasSuffix(src, ".tar.gz"), strings.HasSuffix(src, ".tgz"),
		strings.HasSuffix(src, ".tar.bz2"), strings.HasSuffix(src, ".tar.xz"):
		return extractTar(src, dest)
	default:
		return "", fmt.Errorf("unsupported archive format: %s", src)
	}
}

func extractTar(src, dest string) (string, error) {
	f, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var reader io.Reader = f
	switch {
	case strings.HasSuffix(src, ".tar.gz"), strings.HasSuffix(src, ".tgz"):
		gr, err := gzip.NewReader(f)
		if err != nil {
			return "", err
		}
		defer gr.Close()
		reader = gr
	case strings.HasSuffix(src, ".tar.bz2"):
		reader = bzip2.NewReader(f)
	case strings.HasSuffix(src, ".tar.xz"):
		xzr, err := xz.NewReader(f, 0)
		if err != nil {
			return "", err
		}
		reader = xzr
	}

	tr := tar.NewReader(reader)
	var topLevel string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		target, err := securePath(dest, hdr.Name)
		if err != nil {
			return "", err
		}
		if topLevel == "" {
			topLevel = topLevelOf(hdr.Name)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return "", err
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr, hdr.FileInfo().Mode()); err != nil {
				return "", err
			}
		}
	}
	return filepath.Join(dest, topLevel), nil
}

func extractZip(src, dest string) (string, error) {
	r, err := zip.OpenReader(src)
	if err != nil {
		return "", err
	}
	defer r.Close()

	var topLevel string
	for _, f := range r.File {
		target, err := securePath(dest, f.Name)
		if err != nil {
			return "", err
		}
		if topLevel == "" {
			topLevel = topLevelOf(f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return "", err
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		err = writeEntry(target, rc, f.Mode())
		rc.Close()
		if err != nil {
			return "", err
		}
	}
	return filepath.Join(dest, topLevel), nil
}

func extract7z(src, dest string) (string, error) {
	r, err := sevenzip.OpenReader(src)
	if err != nil {
		return "", fmt.Errorf("open 7z archive: %w", err)
	}
	defer r.Close()

	var topLevel string
	for _, f := range r.File {
		target, err := securePath(dest, f.Name)
		if err != nil {
			return "", err
		}
		if topLevel == "" {
			topLevel = topLevelOf(f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return "", err
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		err = writeEntry(target, rc, f.Mode())
		rc.Close()
		if err != nil {
			return "", err
		}
	}
	return filepath.Join(dest, topLevel), nil
}

func writeEntry(target string, src io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm()|0o400)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// securePath joins an archive entry name onto dest, rejecting entries that
// would escape it.
func securePath(dest, name string) (string, error) {
	target := filepath.Join(dest, name)
	if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry escapes extraction root: %s", name)
	}
	return target, nil
}

func topLevelOf(name string) string {
	parts := strings.Split(filepath.ToSlash(name), "/")
	return parts[0]
}
