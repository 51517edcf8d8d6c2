package models

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gomlx/go-huggingface/hub"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/pretrained/internal/loader"
	"github.com/born-ml/pretrained/internal/nn"
	"github.com/born-ml/pretrained/internal/tensor"
)

// File names inside a pretrained model directory.
const (
	ConfigFile  = "config.json"
	WeightsFile = "model.safetensors"
)

// Environment variables read when resolving identifiers.
const (
	// EnvHome overrides the storage root.
	EnvHome = "BORN_PRETRAINED_HOME"
	// EnvToken holds the HuggingFace Hub token for private repositories.
	EnvToken = "HF_TOKEN"
	// EnvOffline, when set to "1", disables hub downloads.
	EnvOffline = "HF_HUB_OFFLINE"
)

// StorageRoot returns the directory holding named pretrained models and the
// hub download cache: $BORN_PRETRAINED_HOME, or $HOME/.cache/born/pretrained.
func StorageRoot() string {
	if dir := os.Getenv(EnvHome); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".cache", "born", "pretrained")
}

// fileRepo is the part of *hub.Repo used here.
type fileRepo interface {
	DownloadFile(file string) (string, error)
}

// newRepo opens the HuggingFace Hub repository of a model identifier.
var newRepo = func(id string) fileRepo {
	return hub.New(id).
		WithAuth(os.Getenv(EnvToken)).
		WithCacheDir(StorageRoot()).
		WithProgressBar(klog.V(1).Enabled())
}

// Offline reports whether hub downloads are disabled.
func Offline() bool {
	return os.Getenv(EnvOffline) == "1"
}

// ResolveDir maps a model identifier to its directory. An identifier that is
// itself a directory holding config.json is used as is, then one under
// StorageRoot. Anything else is a HuggingFace Hub repository: config.json and
// model.safetensors are downloaded into the cache under StorageRoot and the
// snapshot directory is returned.
func ResolveDir(name string) (string, error) {
	if isModelDir(name) {
		return name, nil
	}
	dir := filepath.Join(StorageRoot(), name)
	if isModelDir(dir) {
		return dir, nil
	}
	if Offline() {
		return "", errors.Errorf("pretrained model %q not found (looked in %q and %q, %s=1)", name, name, dir, EnvOffline)
	}

	repo := newRepo(name)
	configPath, err := repo.DownloadFile(ConfigFile)
	if err != nil {
		return "", errors.WithMessagef(err, "pretrained model %q not found locally, downloading %s", name, ConfigFile)
	}
	if _, err := repo.DownloadFile(WeightsFile); err != nil {
		return "", errors.WithMessagef(err, "downloading %s of %q", WeightsFile, name)
	}
	return filepath.Dir(configPath), nil
}

// FetchFile returns the local path of an auxiliary file of a model, such as
// "vocab.txt": from the model directory when name is local, otherwise
// downloaded from the hub.
func FetchFile(name, file string) (string, error) {
	for _, dir := range []string{name, filepath.Join(StorageRoot(), name)} {
		if isModelDir(dir) {
			return filepath.Join(dir, file), nil
		}
	}
	if Offline() {
		return "", errors.Errorf("%s of %q is not available offline", file, name)
	}
	path, err := newRepo(name).DownloadFile(file)
	if err != nil {
		return "", errors.WithMessagef(err, "downloading %s of %q", file, name)
	}
	return path, nil
}

func isModelDir(dir string) bool {
	st, err := os.Stat(filepath.Join(dir, ConfigFile))
	return err == nil && !st.IsDir()
}

// LoadOptions configures FromPretrained.
type LoadOptions struct {
	BuildOptions

	// Registry defaults to DefaultRegistry().
	Registry *Registry
}

// FromPretrained loads a model by identifier: a local directory, a name
// under StorageRoot, or a HuggingFace Hub repository (see ResolveDir).
//
// The family is chosen by the identifier prefix, then by the "model_type"
// of config.json. Weights are loaded from model.safetensors non-strictly:
// missing and unexpected tensors are logged and skipped.
func FromPretrained(name string, opts LoadOptions) (Model, error) {
	registry := opts.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}

	family, lookupErr := registry.Lookup(name)
	dir, err := ResolveDir(name)
	if err != nil {
		if lookupErr != nil {
			return nil, lookupErr
		}
		return nil, err
	}
	if lookupErr != nil {
		cfg, err := LoadConfigFile(dir)
		if err != nil {
			return nil, lookupErr
		}
		modelType, _ := cfg.String("model_type")
		if family, err = registry.LookupModelType(modelType); err != nil {
			return nil, err
		}
	}

	cfg, err := family.LoadConfig(dir)
	if err != nil {
		return nil, errors.WithMessagef(err, "loading %s config", family.Name)
	}
	model, err := family.New(cfg, opts.BuildOptions)
	if err != nil {
		return nil, errors.WithMessagef(err, "building %s", name)
	}

	report, err := LoadWeights(model, filepath.Join(dir, WeightsFile), loader.NewHFMapper(family.Name))
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("Loaded %s (%s): %d tensors, %d missing, %d unexpected",
		name, family.Name, report.Loaded, len(report.Missing), len(report.Unexpected))
	if msg := attentionWarning(family.Name, report); msg != "" {
		klog.Warningf("%s: %s", name, msg)
	}
	return model, nil
}

// attentionWarning explains a load that left attention weights at their
// random initialisation. XLNet checkpoints store two-stream relative
// attention, which XLNetModel does not implement.
func attentionWarning(family string, report LoadReport) string {
	if family != "xlnet" {
		return ""
	}
	var missing []string
	for _, name := range report.Missing {
		if strings.Contains(name, ".rel_attn.") && !strings.Contains(name, ".layer_norm.") {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return ""
	}
	return fmt.Sprintf("relative attention weights are not used, %d attention parameters stay randomly initialised: %v",
		len(missing), missing)
}

// LoadReport summarises a non-strict weight load.
type LoadReport struct {
	Loaded     int
	Missing    []string // model parameters absent from the file
	Unexpected []string // file tensors matching no parameter, or of the wrong shape
}

// LoadWeights copies the tensors of a SafeTensors file into the model
// parameters with matching names.
func LoadWeights(model Model, path string, mapper loader.WeightMapper) (LoadReport, error) {
	var report LoadReport
	r, err := loader.NewSafeTensorsReader(path)
	if err != nil {
		return report, err
	}
	defer func() { _ = r.Close() }()

	weights, err := r.LoadAll(mapper)
	if err != nil {
		return report, err
	}

	params := nn.ByName(model.Parameters())
	for name, w := range weights {
		p, ok := params[name]
		if !ok {
			report.Unexpected = append(report.Unexpected, name)
			continue
		}
		if err := p.SetData(w); err != nil {
			klog.Warningf("Skipping weight %s: %v", name, err)
			report.Unexpected = append(report.Unexpected, name)
			continue
		}
		report.Loaded++
		delete(params, name)
	}
	for name := range params {
		report.Missing = append(report.Missing, name)
	}
	sort.Strings(report.Missing)
	sort.Strings(report.Unexpected)

	if len(report.Missing) > 0 {
		klog.Warningf("%d parameters not found in %s, left at their initial values: %v", len(report.Missing), path, report.Missing)
	}
	if len(report.Unexpected) > 0 {
		klog.Warningf("%d tensors of %s were not used: %v", len(report.Unexpected), path, report.Unexpected)
	}
	return report, nil
}

// SaveWeights writes the model parameters to a SafeTensors file.
func SaveWeights(model Model, path string, half bool) error {
	tensors := make(map[string]*tensor.RawTensor)
	for _, p := range model.Parameters() {
		tensors[p.Name()] = p.Tensor()
	}
	return loader.SaveSafeTensors(path, tensors, loader.WriteOptions{
		Metadata: map[string]string{"format": "pt"},
		Half:     half,
	})
}

// SavePretrained writes config.json and model.safetensors into dir, in the
// layout FromPretrained reads.
func SavePretrained(model Model, dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}
	if err := loader.SaveConfig(filepath.Join(dir, ConfigFile), model.Config()); err != nil {
		return err
	}
	return SaveWeights(model, filepath.Join(dir, WeightsFile), false)
}
