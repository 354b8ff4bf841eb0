package aurgate

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// renameFile is swapped out in tests to simulate a cross-device rename.
var renameFile = os.Rename

func copyFile(src, dst string, progress io.Writer) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	var w io.Writer = out
	if progress != nil {
		w = io.MultiWriter(out, progress)
	}
	if _, err := io.Copy(w, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	// Copy file mode
	return os.Chmod(dst, info.Mode())
}

// copyDirContents recursively copies the entries of src into dst, which is
// created if needed. Symlinks are recreated, not followed.
func copyDirContents(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		switch {
		case entry.Type()&os.ModeSymlink != 0:
			target, err := os.Readlink(srcPath)
			if err != nil {
				return err
			}
			if err := os.Symlink(target, dstPath); err != nil {
				return err
			}
		case entry.IsDir():
			if err := copyDirContents(srcPath, dstPath); err != nil {
				return err
			}
		default:
			if err := copyFile(srcPath, dstPath, nil); err != nil {
				return err
			}
		}
	}

	return nil
}

// moveFile renames src to dst. When both live on different filesystems the
// file is copied and the source removed instead; any other rename failure is
// returned unchanged.
func moveFile(src, dst string) error {
	err := renameFile(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, unix.EXDEV) {
		return err
	}

	if err := copyFile(src, dst, copyProgress(src)); err != nil {
		os.Remove(dst)
		return fmt.Errorf("cross-device copy of %s to %s: %w", src, dst, err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("failed to remove %s after copying it to %s: %w", src, dst, err)
	}
	return nil
}

// copyProgress returns a progress bar for copying src when stderr is a
// terminal, nil otherwise.
func copyProgress(src string) io.Writer {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}
	info, err := os.Stat(src)
	if err != nil {
		return nil
	}
	return progressbar.NewOptions64(info.Size(),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("copying "+filepath.Base(src)),
		progressbar.OptionShowBytes(true),
		progressbar.OptionClearOnFinish(),
	)
}
