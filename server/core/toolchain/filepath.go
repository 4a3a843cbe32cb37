package toolchain

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"
)

// FilePath is a generic wrapper over a filesystem location so cache layers
// can resolve, join and link paths without caring where they live.
type FilePath interface {
	NotExists() bool
	Join(elem ...string) FilePath
	Symlink(newname string) (FilePath, error)
	Resolve() string
}

type LocalFilePath string

func (fp LocalFilePath) NotExists() bool {
	_, err := os.Stat(fp.Resolve())
	return os.IsNotExist(err)
}

func (fp LocalFilePath) Join(elem ...string) FilePath {
	pathComponents := []string{fp.Resolve()}
	pathComponents = append(pathComponents, elem...)
	return LocalFilePath(filepath.Join(pathComponents...))
}

func (fp LocalFilePath) Symlink(newname string) (FilePath, error) {
	if err := os.MkdirAll(filepath.Dir(newname), 0700); err != nil {
		return LocalFilePath(""), errors.Wrap(err, "creating symlink parent directory")
	}
	if err := os.Symlink(fp.Resolve(), newname); err != nil {
		return LocalFilePath(""), errors.Wrap(err, "creating symlink")
	}
	return LocalFilePath(newname), nil
}

func (fp LocalFilePath) Resolve() string {
	return string(fp)
}

// Exec lets tests swap out PATH lookups and version probes.
type Exec interface {
	LookPath(file string) (string, error)
	CombinedOutput(args []string, envs map[string]string, workdir string) (string, error)
}

type LocalExec struct{}

func (e LocalExec) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (e LocalExec) CombinedOutput(args []string, envs map[string]string, workdir string) (string, error) {
	envVars := os.Environ()
	for key, val := range envs {
		envVars = append(envVars, key+"="+val)
	}

	// nolint: gosec
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Env = envVars
	cmd.Dir = workdir

	output, err := cmd.CombinedOutput()
	return string(output), err
}
