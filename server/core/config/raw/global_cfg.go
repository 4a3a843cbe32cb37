package raw

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/graymeta/stow"
	stow_local "github.com/graymeta/stow/local"
	stow_s3 "github.com/graymeta/stow/s3"
	"github.com/greenlightci/greenlight/server/core/config/valid"
	"github.com/hashicorp/go-version"
)

// GlobalCfg is the server-side config file. Everything is optional, values
// overlay the built-in defaults.
type GlobalCfg struct {
	Repos             []Repo               `yaml:"repos" json:"repos"`
	Shell             string               `yaml:"shell" json:"shell"`
	StatusName        string               `yaml:"status-name" json:"status-name"`
	RunnerLabels      []string             `yaml:"runner-labels" json:"runner-labels"`
	JobTimeoutMinutes int                  `yaml:"job-timeout-minutes" json:"job-timeout-minutes"`
	MaxParallelJobs   int                  `yaml:"max-parallel-jobs" json:"max-parallel-jobs"`
	Toolchains        map[string]Toolchain `yaml:"toolchains" json:"toolchains"`
	Metrics           Metrics              `yaml:"metrics" json:"metrics"`
	Persistence       Persistence          `yaml:"persistence" json:"persistence"`
}

func (g GlobalCfg) Validate() error {
	return validation.ValidateStruct(&g,
		validation.Field(&g.Repos),
		validation.Field(&g.JobTimeoutMinutes, validation.Min(0)),
		validation.Field(&g.MaxParallelJobs, validation.Min(0)),
		validation.Field(&g.Toolchains),
		validation.Field(&g.Metrics),
		validation.Field(&g.Persistence),
	)
}

// ToValid overlays this config onto defaultCfg.
func (g GlobalCfg) ToValid(defaultCfg valid.GlobalCfg) valid.GlobalCfg {
	out := defaultCfg

	for _, r := range g.Repos {
		out.Repos = append(out.Repos, r.ToValid())
	}
	if g.Shell != "" {
		out.Shell = g.Shell
	}
	if g.StatusName != "" {
		out.StatusName = g.StatusName
	}
	if len(g.RunnerLabels) > 0 {
		out.RunnerLabels = g.RunnerLabels
	}
	if g.JobTimeoutMinutes != 0 {
		out.JobTimeout = time.Duration(g.JobTimeoutMinutes) * time.Minute
	}
	if g.MaxParallelJobs != 0 {
		out.MaxParallelJobs = g.MaxParallelJobs
	}

	toolchains := make(map[string]valid.Toolchain, len(defaultCfg.Toolchains))
	for name, tc := range defaultCfg.Toolchains {
		toolchains[name] = tc
	}
	for name, tc := range g.Toolchains {
		merged := toolchains[name]
		if tc.DefaultVersion != "" {
			merged.DefaultVersion = tc.DefaultVersion
		}
		if tc.DownloadURL != "" {
			merged.DownloadURL = strings.TrimSuffix(tc.DownloadURL, "/")
		}
		if len(tc.Releases) > 0 {
			merged.Releases = tc.Releases
		}
		toolchains[name] = merged
	}
	out.Toolchains = toolchains

	if g.Metrics.Statsd != nil {
		out.Metrics = valid.Metrics{
			Statsd: &valid.Statsd{
				Host: g.Metrics.Statsd.Host,
				Port: g.Metrics.Statsd.Port,
			},
		}
	}

	out.PersistenceConfig = g.Persistence.ToValid(defaultCfg.PersistenceConfig)
	return out
}

// Repo is one per-repo override. The id is either an exact repo ID or a
// regex surrounded by slashes, ex. /github.com\/owner\/.*/.
type Repo struct {
	ID            string `yaml:"id" json:"id"`
	WorkflowsPath string `yaml:"workflows-path" json:"workflows-path"`
	CheckoutDepth int    `yaml:"checkout-depth" json:"checkout-depth"`
}

// HasRegexID returns true if the id is a regex.
func (r Repo) HasRegexID() bool {
	return strings.HasPrefix(r.ID, "/") && strings.HasSuffix(r.ID, "/")
}

func (r Repo) Validate() error {
	idValid := func(value interface{}) error {
		id, _ := value.(string)
		if !r.HasRegexID() {
			return nil
		}
		if _, err := regexp.Compile(id[1 : len(id)-1]); err != nil {
			return fmt.Errorf("parsing: %s: %s", id, err)
		}
		return nil
	}
	return validation.ValidateStruct(&r,
		validation.Field(&r.ID, validation.Required, validation.By(idValid)),
		validation.Field(&r.CheckoutDepth, validation.Min(0)),
	)
}

func (r Repo) ToValid() valid.Repo {
	out := valid.Repo{
		WorkflowsPath: r.WorkflowsPath,
		CheckoutDepth: r.CheckoutDepth,
	}
	if r.HasRegexID() {
		// the regex is already known to compile
		out.IDRegex = regexp.MustCompile(r.ID[1 : len(r.ID)-1])
	} else {
		out.ID = r.ID
	}
	return out
}

type Toolchain struct {
	DefaultVersion string   `yaml:"default-version" json:"default-version"`
	DownloadURL    string   `yaml:"download-url" json:"download-url"`
	Releases       []string `yaml:"releases" json:"releases"`
}

func (t Toolchain) Validate() error {
	versionsValid := func(value interface{}) error {
		vs, _ := value.([]string)
		for _, v := range vs {
			if _, err := version.NewVersion(v); err != nil {
				return fmt.Errorf("parsing release %q: %s", v, err)
			}
		}
		return nil
	}
	versionValid := func(value interface{}) error {
		v, _ := value.(string)
		if v == "" {
			return nil
		}
		if _, err := version.NewVersion(v); err != nil {
			return fmt.Errorf("parsing version %q: %s", v, err)
		}
		return nil
	}
	return validation.ValidateStruct(&t,
		validation.Field(&t.DefaultVersion, validation.By(versionValid)),
		validation.Field(&t.DownloadURL, is.URL),
		validation.Field(&t.Releases, validation.By(versionsValid)),
	)
}

type Metrics struct {
	Statsd *Statsd `yaml:"statsd" json:"statsd"`
}

func (m Metrics) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Statsd),
	)
}

type Statsd struct {
	Host string `yaml:"host" json:"host"`
	Port string `yaml:"port" json:"port"`
}

func (s Statsd) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Host, validation.Required, is.Host),
		validation.Field(&s.Port, validation.Required, is.Port),
	)
}

// Persistence names the data stores the job logs and the dependency cache
// are written to.
type Persistence struct {
	// DefaultStore is the name of the store used when no per-concern
	// override is set.
	DefaultStore string `yaml:"default-store" json:"default-store"`
	// DataStores holds the configuration of all stores by name.
	DataStores map[string]DataStore `yaml:"data-stores" json:"data-stores"`
	// Prefix is prepended to all object keys.
	Prefix string `yaml:"prefix" json:"prefix"`

	JobStore      string `yaml:"job-store" json:"job-store"`
	DepCacheStore string `yaml:"dep-cache-store" json:"dep-cache-store"`
}

func (p Persistence) Validate() error {
	dsNames := []interface{}{}
	for dsName := range p.DataStores {
		dsNames = append(dsNames, dsName)
	}

	return validation.ValidateStruct(&p,
		validation.Field(&p.DefaultStore, validation.In(dsNames...)),
		validation.Field(&p.JobStore, validation.In(dsNames...)),
		validation.Field(&p.DepCacheStore, validation.In(dsNames...)),
		validation.Field(&p.DataStores),
	)
}

func (p Persistence) ToValid(defaultCfg valid.PersistenceConfig) valid.PersistenceConfig {
	out := defaultCfg

	if store, ok := p.store(p.JobStore); ok {
		out.Jobs = p.buildValidStore(store, valid.DefaultJobsPrefix)
	}
	if store, ok := p.store(p.DepCacheStore); ok {
		out.DepCache = p.buildValidStore(store, valid.DefaultDepCachePrefix)
	}
	return out
}

// store resolves a per-concern store name, falling back to the default
// store.
func (p Persistence) store(name string) (DataStore, bool) {
	if name == "" {
		name = p.DefaultStore
	}
	ds, ok := p.DataStores[name]
	return ds, ok
}

func (p Persistence) buildValidStore(dataStore DataStore, defaultPrefix string) valid.StoreConfig {
	prefix := p.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}

	var validStore valid.StoreConfig
	switch {
	case dataStore.S3 != nil:
		validStore = valid.StoreConfig{
			ContainerName: dataStore.S3.BucketName,
			Prefix:        prefix,
			BackendType:   valid.S3Backend,

			// iam auth is the only supported auth type for now
			Config: stow.ConfigMap{
				stow_s3.ConfigAuthType: "iam",
			},
		}
	case dataStore.Local != nil:
		validStore = valid.StoreConfig{
			ContainerName: valid.LocalStore,
			Prefix:        prefix,
			BackendType:   valid.LocalBackend,
			Config: stow.ConfigMap{
				stow_local.ConfigKeyPath: dataStore.Local.Path,
			},
		}
	}
	return validStore
}

type DataStores map[string]DataStore

type DataStore struct {
	S3    *S3    `yaml:"s3" json:"s3"`
	Local *Local `yaml:"local" json:"local"`
}

func (ds DataStore) Validate() error {
	if ds.S3 != nil && ds.Local != nil {
		return fmt.Errorf("exactly one backend must be configured per data store")
	}
	return validation.ValidateStruct(&ds,
		validation.Field(&ds.S3),
		validation.Field(&ds.Local),
	)
}

const validBucketNameRegex = "^[a-z0-9_.-]*$"

type S3 struct {
	BucketName string `yaml:"bucket-name" json:"bucket-name"`
}

func (s S3) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.BucketName, validation.Required, validation.Length(3, 63)),
		validation.Field(&s.BucketName, validation.Match(regexp.MustCompile(validBucketNameRegex)).
			Error("s3 bucket names can only consist of lowercase letters, numbers, dots (.) and hyphens (-)")),
	)
}

type Local struct {
	Path string `yaml:"path" json:"path"`
}

func (l Local) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Path, validation.Required),
	)
}
