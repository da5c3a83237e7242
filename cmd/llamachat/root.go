package main

import (
	"github.com/spf13/cobra"

	"llamachat/internal/config"
)

// rootOptions holds the persistent flags. Flags that were set override the
// config file and LLAMACHAT_* variables.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
	logFile    string
	modelsDir  string
	model      string
	template   string
	ctxSize    int
	gpuLayers  int
	threads    int
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "llamachat",
		Short:         "Local llama.cpp chat with summarized history",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "Config file (.yaml, .yml, .json or .toml)")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level: debug|info|warn|error")
	pf.StringVar(&opts.logFormat, "log-format", "", "Log format: console|json")
	pf.StringVar(&opts.logFile, "log-file", "", "Write logs to this file instead of stderr")
	pf.StringVar(&opts.modelsDir, "models-dir", "", "Directory to scan for *.gguf model files")
	pf.StringVarP(&opts.model, "model", "m", "", "Model id from the models dir, or a path to a .gguf file")
	pf.StringVar(&opts.template, "template", "", "Chat template: chatml|deepseek|phi4|teuken|plain")
	pf.IntVar(&opts.ctxSize, "ctx-size", 0, "Context size in tokens")
	pf.IntVar(&opts.gpuLayers, "gpu-layers", 0, "Layers to offload to the GPU")
	pf.IntVar(&opts.threads, "threads", 0, "Decode threads (0 = number of CPUs)")

	root.AddCommand(
		newServeCmd(opts),
		newChatCmd(opts),
		newGenerateCmd(opts),
		newModelsCmd(opts),
		newDoctorCmd(opts),
	)
	return root
}

// loadConfig builds the effective configuration: file, then environment,
// then flags, then defaults.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (config.Config, error) {
	var cfg config.Config
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(nil); err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("log-level", func() { cfg.Logging.Level = o.logLevel })
	set("log-format", func() { cfg.Logging.Format = o.logFormat })
	set("log-file", func() { cfg.Logging.File = o.logFile })
	set("models-dir", func() { cfg.Engine.ModelsDir = o.modelsDir })
	set("model", func() { cfg.Engine.ModelPath = o.model })
	set("template", func() { cfg.Chat.Template = o.template })
	set("ctx-size", func() { cfg.Engine.ContextSize = o.ctxSize })
	set("gpu-layers", func() { cfg.Engine.GPULayers = o.gpuLayers })
	set("threads", func() { cfg.Engine.Threads = o.threads })
	cfg.ApplyDefaults()
	return cfg, cfg.Validate()
}
