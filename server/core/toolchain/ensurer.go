package toolchain

import (
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/greenlightci/greenlight/server/core/config/valid"
	"github.com/greenlightci/greenlight/server/logging"
	"github.com/greenlightci/greenlight/server/metrics"
	"github.com/hashicorp/go-version"
	"github.com/pkg/errors"
	"github.com/uber-go/tally/v4"
)

var (
	exactVersionRegex = regexp.MustCompile(`^v?\d+\.\d+\.\d+$`)
	majorOnlyRegex    = regexp.MustCompile(`^v?(\d+)$`)
	majorMinorRegex   = regexp.MustCompile(`^v?(\d+)\.(\d+)$`)

	// matches the version triple inside "v20.18.1" or "uv 0.5.24".
	versionOutputRegex = regexp.MustCompile(`\d+\.\d+\.\d+`)
)

// Resolver picks a concrete release for a requested version spec.
type Resolver struct{}

// Resolve returns the newest release satisfying spec. An empty spec falls
// back to the toolchain's default version.
func (r *Resolver) Resolve(tc valid.Toolchain, spec string) (*version.Version, error) {
	if spec == "" {
		spec = tc.DefaultVersion
	}
	if spec == "" {
		return nil, errors.New("no version requested and no default configured")
	}
	if exactVersionRegex.MatchString(spec) {
		return version.NewVersion(spec)
	}

	constraint, err := parseConstraint(spec)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing version spec %q", spec)
	}

	// releases are listed newest first so the first hit wins.
	for _, release := range tc.Releases {
		v, err := version.NewVersion(release)
		if err != nil {
			continue
		}
		if constraint.Check(v) {
			return v, nil
		}
	}
	return nil, errors.Errorf("no known release satisfies %q", spec)
}

// parseConstraint widens the shorthand specs "20" and "20.11" into range
// constraints the way users expect them to behave.
func parseConstraint(spec string) (version.Constraints, error) {
	if m := majorOnlyRegex.FindStringSubmatch(spec); m != nil {
		return version.NewConstraint(fmt.Sprintf("~> %s.0", m[1]))
	}
	if m := majorMinorRegex.FindStringSubmatch(spec); m != nil {
		return version.NewConstraint(fmt.Sprintf("~> %s.%s.0", m[1], m[2]))
	}
	return version.NewConstraint(spec)
}

// Ensurer makes a requested toolchain version available locally and
// returns the bin directory to prepend to PATH.
type Ensurer struct {
	toolchains map[string]valid.Toolchain
	caches     map[string]VersionCache
	resolver   *Resolver
	exec       Exec
}

func NewEnsurer(toolchains map[string]valid.Toolchain, versionRootDir string, scope tally.Scope) *Ensurer {
	caches := make(map[string]VersionCache, len(toolchains))
	for name, tc := range toolchains {
		var loadVersion func(v *version.Version, destPath string) (FilePath, error)
		switch name {
		case NodeToolName:
			loadVersion = NewNodeVersionLoader(tc.DownloadURL).LoadVersion
		case UvToolName:
			loadVersion = NewUvVersionLoader(tc.DownloadURL).LoadVersion
		default:
			continue
		}

		downloads := scope.Tagged(map[string]string{
			metrics.ToolTag: name,
		}).Counter(metrics.ToolchainDownloadMetric)
		instrumented := func(v *version.Version, destPath string) (FilePath, error) {
			downloads.Inc(1)
			return loadVersion(v, destPath)
		}

		caches[name] = NewLayeredLoadingCache(name, versionRootDir, instrumented)
	}

	return &Ensurer{
		toolchains: toolchains,
		caches:     caches,
		resolver:   &Resolver{},
		exec:       LocalExec{},
	}
}

func (e *Ensurer) EnsureToolchain(log logging.Logger, tool string, spec string) (string, error) {
	tc, ok := e.toolchains[tool]
	if !ok {
		return "", errors.Errorf("unknown toolchain %q", tool)
	}

	if binDir, ok := e.localToolchain(log, tool, spec); ok {
		return binDir, nil
	}

	v, err := e.resolver.Resolve(tc, spec)
	if err != nil {
		return "", errors.Wrapf(err, "resolving %s version", tool)
	}

	cache, ok := e.caches[tool]
	if !ok {
		return "", errors.Errorf("no loader for toolchain %q", tool)
	}
	return cache.Get(v)
}

// localToolchain reports the directory of a PATH install whose version
// already satisfies the requested spec.
func (e *Ensurer) localToolchain(log logging.Logger, tool string, spec string) (string, bool) {
	path, err := e.exec.LookPath(tool)
	if err != nil {
		return "", false
	}

	output, err := e.exec.CombinedOutput([]string{tool, "--version"}, nil, "")
	if err != nil {
		return "", false
	}
	raw := versionOutputRegex.FindString(output)
	if raw == "" {
		return "", false
	}
	v, err := version.NewVersion(raw)
	if err != nil {
		return "", false
	}

	if spec != "" {
		constraint, err := parseConstraint(spec)
		if err != nil || !constraint.Check(v) {
			return "", false
		}
	}
	log.Info(fmt.Sprintf("using %s %s found on PATH", tool, v.String()))
	return filepath.Dir(path), true
}
