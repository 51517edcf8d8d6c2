// Package main provides the pretrained command: inspect, run and fine-tune
// pretrained transformers through the adapter.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	"github.com/born-ml/pretrained/internal/adapter"
	"github.com/born-ml/pretrained/internal/models"
	"github.com/born-ml/pretrained/internal/nn"
	"github.com/born-ml/pretrained/internal/optim"
	"github.com/born-ml/pretrained/internal/settings"
	"github.com/born-ml/pretrained/internal/tensor"
	"github.com/born-ml/pretrained/internal/tokenizer"
)

const version = "v0.1.0-dev"

const usage = `Usage: pretrained <command> [flags]

Commands:
  version                      Show version
  info <model>                 Describe a pretrained model
  predict [-max_length N] <model> <text>...
                               Run the model and summarise its activations
  finetune -config run.yaml    Fine-tune a model on a toy objective

Models are local directories, names under $%s (default %s), or
HuggingFace Hub repositories downloaded into that directory. Set HF_TOKEN for
private repositories and HF_HUB_OFFLINE=1 to disable downloads.
`

func main() {
	klog.InitFlags(nil)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), usage, models.EnvHome, models.StorageRoot())
		flag.PrintDefaults()
	}
	flag.Parse()
	defer klog.Flush()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	var err error
	switch args[0] {
	case "version":
		fmt.Printf("Born pretrained %s\n", version)
	case "info":
		err = runInfo(args[1:])
	case "predict":
		err = runPredict(args[1:])
	case "finetune":
		err = runFinetune(args[1:])
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		klog.Errorf("%s: %+v", args[0], err)
		klog.Flush()
		os.Exit(1)
	}
}

func runInfo(args []string) error {
	if len(args) != 1 {
		return errors.New("expected exactly one model name")
	}
	a, err := adapter.FromPretrained(args[0])
	if err != nil {
		return err
	}

	params := a.Model().Parameters()
	count := nn.CountParameters(params)
	fmt.Printf("Model:      %s\n", args[0])
	fmt.Printf("Family:     %s\n", models.FamilyOf(a.Model()))
	fmt.Printf("Parameters: %s (%s as float32)\n", humanize.Comma(int64(count)), humanize.Bytes(uint64(count)*4))
	if width, err := a.OutputWidth(); err == nil {
		fmt.Printf("Width:      %d\n", width)
	} else {
		fmt.Printf("Width:      unknown (%v)\n", err)
	}
	if maxLen, err := a.MaxLength(); err == nil {
		fmt.Printf("Max length: %d\n", maxLen)
	}
	return nil
}

func runPredict(args []string) error {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	maxLength := fs.Int("max_length", 128, "Truncate inputs to this many tokens.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return errors.New("expected a model name and at least one text")
	}

	a, tok, err := load(fs.Arg(0))
	if err != nil {
		return err
	}
	ids, err := tokenizer.EncodeBatch(tok, fs.Args()[1:], *maxLength)
	if err != nil {
		return err
	}
	acts, err := a.Predict(ids)
	if err != nil {
		return err
	}

	fmt.Printf("Token ids:     %v\n", ids.Shape())
	fmt.Printf("Last hidden:   %v\n", acts.LastHidden.Shape())
	if acts.HasPooled() {
		fmt.Printf("Pooled:        %v\n", acts.Pooled.Shape())
	}
	fmt.Printf("Hidden states: %d\n", len(acts.AllHidden))
	fmt.Printf("Attentions:    %d\n", len(acts.AllAttentions))
	width := acts.LastHidden.Shape()[2]
	fmt.Printf("First token:   %s\n", formatValues(acts.LastHidden.AsFloat32()[:min(width, 8)]))
	return nil
}

func runFinetune(args []string) error {
	fs := flag.NewFlagSet("finetune", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML run configuration.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	run := settings.Default()
	if *configPath != "" {
		var err error
		if run, err = settings.Load(*configPath); err != nil {
			return err
		}
	}
	if err := run.Validate(); err != nil {
		return err
	}

	var opts []adapter.Option
	if run.Optimizer.Kind == "sgd" {
		momentum := run.Optimizer.Momentum
		opts = append(opts, adapter.WithOptimizerFactory(func(params []*nn.Parameter, cfg adapter.OptimizerConfig) optim.Optimizer {
			return optim.NewSGD(params, optim.SGDConfig{LR: cfg.LR, Momentum: momentum})
		}))
	}
	a, tok, err := load(run.Model, opts...)
	if err != nil {
		return err
	}
	maxLength := run.MaxLength
	if limit, err := a.MaxLength(); err == nil {
		maxLength = min(maxLength, limit)
	}
	ids, err := tokenizer.EncodeBatch(tok, run.Texts, maxLength)
	if err != nil {
		return err
	}

	sgd := &adapter.OptimizerConfig{
		LR:          run.Optimizer.LearnRate,
		Beta1:       run.Optimizer.Beta1,
		Beta2:       run.Optimizer.Beta2,
		Eps:         run.Optimizer.Eps,
		L2:          run.Optimizer.L2,
		MaxGradNorm: run.Optimizer.MaxGradNorm,
	}
	bar := progressbar.NewOptions(run.Steps,
		progressbar.OptionSetDescription("Fine-tuning"),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("steps"),
		progressbar.OptionShowCount(),
	)
	var loss float64
	for step := range run.Steps {
		acts, backprop, err := a.BeginUpdate(ids, run.Dropout)
		if err != nil {
			return err
		}
		var dY *tensor.RawTensor
		loss, dY = squaredNorm(acts.LastHidden)
		if err := backprop(&adapter.Activations{LastHidden: dY}, sgd); err != nil {
			return errors.WithMessagef(err, "step %d", step)
		}
		bar.Describe(fmt.Sprintf("Fine-tuning [loss=%.4g]", loss))
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	fmt.Println()
	klog.Infof("Final loss %.6g after %d steps", loss, run.Steps)

	if run.Output == "" {
		return nil
	}
	if err := models.SavePretrained(a.Model(), run.Output); err != nil {
		return err
	}
	klog.Infof("Saved fine-tuned model to %s", run.Output)
	return nil
}

// load wraps the pretrained model name and finds its tokenizer.
func load(name string, opts ...adapter.Option) (*adapter.Adapter, tokenizer.Tokenizer, error) {
	a, err := adapter.FromPretrained(name, opts...)
	if err != nil {
		return nil, nil, err
	}
	family := models.FamilyOf(a.Model())
	dir := name
	if _, ok := tokenizer.EncodingForFamily(family); !ok {
		vocab, err := models.FetchFile(name, tokenizer.VocabFile)
		if err != nil {
			return nil, nil, err
		}
		dir = filepath.Dir(vocab)
	}
	tok, err := tokenizer.ForModel(dir, family)
	if err != nil {
		return nil, nil, err
	}
	return a, tok, nil
}

// squaredNorm is the toy fine-tuning objective 0.5·mean(h²), and its
// gradient h/N.
func squaredNorm(h *tensor.RawTensor) (float64, *tensor.RawTensor) {
	values := h.AsFloat32()
	n := float32(len(values))
	grad := tensor.ZerosLike(h)
	g := grad.AsFloat32()
	var loss float64
	for i, v := range values {
		loss += float64(v) * float64(v)
		g[i] = v / n
	}
	return 0.5 * loss / float64(n), grad
}

func formatValues(values []float32) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%.4f", v)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
