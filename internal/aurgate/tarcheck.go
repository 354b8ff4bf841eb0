package aurgate

import (
	"archive/tar"
	"bufio"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
	"golang.org/x/sys/unix"
)

// TarIssue is one problem found in an archive entry.
type TarIssue struct {
	Entry  string
	Reason string
}

// TarReport is the result of reading a package archive end to end.
type TarReport struct {
	Path    string
	Entries []string
	PkgInfo map[string]string
	Issues  []TarIssue
}

// VerificationError reports every issue that made an archive unacceptable.
type VerificationError struct {
	Path   string
	Issues []TarIssue
}

func (e *VerificationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s has %d problem(s):", e.Path, len(e.Issues))
	for _, is := range e.Issues {
		fmt.Fprintf(&b, "\n  %s: %s", is.Entry, is.Reason)
	}
	return b.String()
}

// TarChecker verifies pacman package archives.
type TarChecker struct{}

// Verify fails when the archive cannot be read or contains unsafe entries.
func (TarChecker) Verify(archivePath string) error {
	report, err := InspectArchive(archivePath)
	if err != nil {
		return err
	}
	if len(report.Issues) > 0 {
		return &VerificationError{Path: archivePath, Issues: report.Issues}
	}
	return nil
}

// decompressor picks the decoder for archivePath from its extension.
func decompressor(archivePath string, f io.Reader) (io.Reader, func(), error) {
	noop := func() {}
	switch {
	case strings.HasSuffix(archivePath, ".tar.zst"):
		zst, err := zstd.NewReader(f)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create zstd reader for %s: %w", archivePath, err)
		}
		return zst, zst.Close, nil
	case strings.HasSuffix(archivePath, ".tar.xz"):
		xzr, err := xz.NewReader(f)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create xz reader for %s: %w", archivePath, err)
		}
		return xzr, noop, nil
	case strings.HasSuffix(archivePath, ".tar.gz"):
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create gzip reader for %s: %w", archivePath, err)
		}
		return gz, func() { gz.Close() }, nil
	case strings.HasSuffix(archivePath, ".tar.bz2"):
		return bzip2.NewReader(f), noop, nil
	case strings.HasSuffix(archivePath, ".tar"):
		return f, noop, nil
	default:
		return nil, nil, fmt.Errorf("unsupported archive format: %s", archivePath)
	}
}

// InspectArchive reads every entry of a package archive, collects its
// .PKGINFO and flags entries that a package must never contain.
func InspectArchive(archivePath string) (*TarReport, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", archivePath, err)
	}
	defer f.Close()

	r, closeFn, err := decompressor(archivePath, bufio.NewReader(f))
	if err != nil {
		return nil, err
	}
	defer closeFn()

	report := &TarReport{Path: archivePath}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		// With tarinsecurepath=0 the header is still returned; entryIssues reports it.
		if err != nil && !errors.Is(err, tar.ErrInsecurePath) {
			return nil, fmt.Errorf("error reading tar header in %s: %w", archivePath, err)
		}
		if hdr.Typeflag == tar.TypeXHeader || hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}
		report.Entries = append(report.Entries, hdr.Name)
		report.Issues = append(report.Issues, entryIssues(hdr)...)

		if path.Clean(hdr.Name) == ".PKGINFO" {
			data, err := io.ReadAll(tr)
			if err != nil {
				return nil, fmt.Errorf("failed to read .PKGINFO from %s: %w", archivePath, err)
			}
			report.PkgInfo = parsePkgInfo(data)
		}
	}

	if report.PkgInfo == nil {
		report.Issues = append(report.Issues, TarIssue{Entry: ".PKGINFO", Reason: "missing package metadata"})
	} else if report.PkgInfo["pkgname"] == "" {
		report.Issues = append(report.Issues, TarIssue{Entry: ".PKGINFO", Reason: "no pkgname"})
	}
	return report, nil
}

func entryIssues(hdr *tar.Header) []TarIssue {
	var issues []TarIssue
	add := func(reason string) {
		issues = append(issues, TarIssue{Entry: hdr.Name, Reason: reason})
	}
	if escapesRoot(hdr.Name) {
		add("path escapes the package root")
	}
	switch hdr.Typeflag {
	case tar.TypeChar, tar.TypeBlock, tar.TypeFifo:
		add("device or fifo node")
	case tar.TypeLink:
		if escapesRoot(hdr.Linkname) {
			add("hard link target escapes the package root")
		}
	case tar.TypeReg, tar.TypeDir:
		if hdr.Mode&unix.S_ISUID != 0 {
			add("setuid bit set")
		}
		if hdr.Mode&unix.S_ISGID != 0 && hdr.Typeflag == tar.TypeReg {
			add("setgid bit set")
		}
		if hdr.Mode&0o002 != 0 && hdr.Mode&unix.S_ISVTX == 0 {
			add("world-writable without sticky bit")
		}
	}
	return issues
}

func escapesRoot(name string) bool {
	if strings.HasPrefix(name, "/") {
		return true
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

// parsePkgInfo reads "key = value" lines; repeated keys keep their first value.
func parsePkgInfo(data []byte) map[string]string {
	meta := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if _, seen := meta[key]; !seen {
			meta[key] = strings.TrimSpace(val)
		}
	}
	return meta
}
