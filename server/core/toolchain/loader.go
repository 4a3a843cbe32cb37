package toolchain

import (
	"fmt"
	"runtime"

	getter "github.com/hashicorp/go-getter"
	"github.com/hashicorp/go-version"
	"github.com/pkg/errors"
)

// HashiGetAny is swapped out in tests to avoid real downloads.
var HashiGetAny = func(dst, src string) error {
	return getter.GetAny(dst, src)
}

const (
	NodeToolName = "node"
	UvToolName   = "uv"
)

// NodeVersionLoader downloads a node release tarball and returns the bin
// directory of the unpacked distribution.
type NodeVersionLoader struct {
	downloadURL string
}

func NewNodeVersionLoader(downloadURL string) *NodeVersionLoader {
	return &NodeVersionLoader{
		downloadURL: downloadURL,
	}
}

func (l *NodeVersionLoader) LoadVersion(v *version.Version, destPath string) (FilePath, error) {
	distName := fmt.Sprintf("node-v%s-%s-%s", v.String(), runtime.GOOS, nodeArch())
	versionURLPrefix := fmt.Sprintf("%s/v%s", l.downloadURL, v.String())
	binURL := fmt.Sprintf("%s/%s.tar.gz", versionURLPrefix, distName)
	checksumURL := fmt.Sprintf("%s/SHASUMS256.txt", versionURLPrefix)
	fullSrcURL := fmt.Sprintf("%s?checksum=file:%s", binURL, checksumURL)

	if err := HashiGetAny(destPath, fullSrcURL); err != nil {
		return LocalFilePath(""), errors.Wrapf(err, "downloading node version %s at %q", v.String(), fullSrcURL)
	}

	return LocalFilePath(destPath).Join(distName, "bin"), nil
}

// UvVersionLoader downloads a uv release archive and returns the directory
// holding the uv and uvx binaries.
type UvVersionLoader struct {
	downloadURL string
}

func NewUvVersionLoader(downloadURL string) *UvVersionLoader {
	return &UvVersionLoader{
		downloadURL: downloadURL,
	}
}

func (l *UvVersionLoader) LoadVersion(v *version.Version, destPath string) (FilePath, error) {
	target := fmt.Sprintf("uv-%s", uvTarget())
	versionURLPrefix := fmt.Sprintf("%s/%s", l.downloadURL, v.Original())
	binURL := fmt.Sprintf("%s/%s.tar.gz", versionURLPrefix, target)
	checksumURL := fmt.Sprintf("%s/%s.tar.gz.sha256", versionURLPrefix, target)
	fullSrcURL := fmt.Sprintf("%s?checksum=file:%s", binURL, checksumURL)

	if err := HashiGetAny(destPath, fullSrcURL); err != nil {
		return LocalFilePath(""), errors.Wrapf(err, "downloading uv version %s at %q", v.String(), fullSrcURL)
	}

	return LocalFilePath(destPath).Join(target), nil
}

func nodeArch() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x64"
	default:
		return runtime.GOARCH
	}
}

func uvTarget() string {
	arch := "x86_64"
	if runtime.GOARCH == "arm64" {
		arch = "aarch64"
	}
	if runtime.GOOS == "darwin" {
		return fmt.Sprintf("%s-apple-darwin", arch)
	}
	return fmt.Sprintf("%s-unknown-linux-gnu", arch)
}
