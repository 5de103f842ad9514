// ABOUTME: CLI entrypoint for the chalkmotion educational animation pipeline with
// ABOUTME: run and server modes. Wires tool servers, TTS chain, history, and signals.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/chalkmotion/chalkmotion/config"
	"github.com/chalkmotion/chalkmotion/creative"
	"github.com/chalkmotion/chalkmotion/history"
	"github.com/chalkmotion/chalkmotion/mcptool"
	"github.com/chalkmotion/chalkmotion/pipeline"
	"github.com/chalkmotion/chalkmotion/syntax"
	"github.com/chalkmotion/chalkmotion/tts"
	"github.com/chalkmotion/chalkmotion/web"
)

var version = "dev"

// creativeTools and rendererTools define the routing split between the two
// tool backends.
var creativeTools = []string{"plan_concept", "generate_narration", "generate_manim_code", "generate_quiz"}
var rendererTools = []string{"write_manim_file", "render_manim_animation", "merge_video_audio", "process_video_with_ffmpeg", "check_file_exists"}

// cliConfig holds all CLI configuration parsed from flags and positional arguments.
type cliConfig struct {
	topic           string
	audience        string
	duration        float64
	quality         string
	output          string
	voice           string
	provider        string
	configPath      string
	creativeBackend string
	serverMode      bool
	port            int
	verbose         bool
	showVersion     bool
}

func main() {
	cfg := parseFlags()

	if cfg.showVersion {
		fmt.Printf("chalkmotion %s\n", version)
		os.Exit(0)
	}

	os.Exit(run(cfg))
}

// parseFlags parses command-line flags and returns a populated config.
func parseFlags() cliConfig {
	var cfg cliConfig

	fs := flag.NewFlagSet("chalkmotion", flag.ContinueOnError)
	fs.StringVar(&cfg.audience, "audience", "general", "Target audience: elementary, middle_school, high_school, college, general")
	fs.Float64Var(&cfg.duration, "duration", 3, "Animation length in minutes (0.5 to 10)")
	fs.StringVar(&cfg.quality, "quality", "medium", "Render quality: low, medium, high, production")
	fs.StringVar(&cfg.output, "output", "", "Output filename (default: animation.mp4)")
	fs.StringVar(&cfg.voice, "voice", "", "Narration voice name")
	fs.StringVar(&cfg.provider, "tts-provider", "", "Force a TTS provider: elevenlabs, polly, local")
	fs.StringVar(&cfg.configPath, "config", "", "Path to YAML config file")
	fs.StringVar(&cfg.creativeBackend, "creative-backend", "", "Creative backend: openai or mcp (overrides config)")
	fs.BoolVar(&cfg.serverMode, "serve", false, "Start HTTP server mode")
	fs.IntVar(&cfg.port, "port", 8323, "Server port")
	fs.BoolVar(&cfg.verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: chalkmotion [options] <topic>\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	if fs.NArg() > 0 {
		cfg.topic = strings.Join(fs.Args(), " ")
	}

	return cfg
}

// run dispatches to the appropriate mode.
// Returns an exit code: 0 for success, 1 for failure.
func run(cfg cliConfig) int {
	// A missing .env is fine; explicit environment still applies.
	_ = godotenv.Load()

	appCfg, err := loadAppConfig(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, shutting down...")
		cancel()
	}()

	orch, cleanup, err := buildOrchestrator(ctx, cfg, appCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer cleanup()

	var store *history.Store
	if appCfg.HistoryDB != "" {
		store, err = history.Open(appCfg.HistoryDB)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		defer store.Close()
	}

	if cfg.serverMode {
		return runServer(ctx, cfg, orch, store)
	}

	if cfg.topic == "" {
		fmt.Fprintln(os.Stderr, "error: topic required (use chalkmotion <topic>)")
		return 1
	}

	return runPipeline(ctx, cfg, orch, store)
}

func loadAppConfig(cfg cliConfig) (*config.Config, error) {
	if cfg.configPath == "" {
		return config.Default(), nil
	}
	return config.Load(cfg.configPath)
}

// buildOrchestrator wires the tool router, creative backend, TTS chain, and
// validator into a pipeline orchestrator. The returned cleanup closes any
// spawned tool server subprocesses.
func buildOrchestrator(ctx context.Context, cfg cliConfig, appCfg *config.Config) (*pipeline.Orchestrator, func(), error) {
	var closers []func() error
	cleanup := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	router := mcptool.NewRouter(nil)

	// Renderer tools always come from an MCP server subprocess.
	if appCfg.Renderer.Command == "" {
		return nil, cleanup, fmt.Errorf("renderer server command not configured (set renderer.command in config)")
	}
	renderClient, err := mcptool.NewClient(mcptool.ClientConfig{
		Command: appCfg.Renderer.Command,
		Args:    appCfg.Renderer.Args,
		Env:     appCfg.Renderer.Env,
	})
	if err != nil {
		return nil, cleanup, err
	}
	closers = append(closers, renderClient.Close)
	if err := renderClient.Start(ctx); err != nil {
		return nil, cleanup, fmt.Errorf("start renderer server: %w", err)
	}
	router.Route(renderClient, rendererTools...)

	backend := appCfg.Creative.Backend
	if cfg.creativeBackend != "" {
		backend = cfg.creativeBackend
	}
	switch backend {
	case "mcp":
		if appCfg.Creative.Server.Command == "" {
			return nil, cleanup, fmt.Errorf("creative server command not configured (set creative.server.command in config)")
		}
		creativeClient, err := mcptool.NewClient(mcptool.ClientConfig{
			Command: appCfg.Creative.Server.Command,
			Args:    appCfg.Creative.Server.Args,
			Env:     appCfg.Creative.Server.Env,
		})
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, creativeClient.Close)
		if err := creativeClient.Start(ctx); err != nil {
			return nil, cleanup, fmt.Errorf("start creative server: %w", err)
		}
		router.Route(creativeClient, creativeTools...)
	default:
		creativeCfg := creative.ConfigFromEnv()
		if appCfg.Creative.Model != "" {
			creativeCfg.Model = appCfg.Creative.Model
		}
		inv, err := creative.NewInvoker(creativeCfg)
		if err != nil {
			return nil, cleanup, err
		}
		router.Route(inv, creativeTools...)
	}

	speech := buildSpeechChain(cfg, appCfg)

	orchCfg := pipeline.Config{
		Tools:       router,
		Speech:      speech,
		Validator:   syntax.NewPythonValidator(),
		WorkBaseDir: appCfg.WorkDir,
		OutputDir:   appCfg.OutputDir,
		FrameRate:   appCfg.FrameRate,
	}
	if cfg.verbose {
		orchCfg.EventHandler = verboseEventHandler
	}

	orch, err := pipeline.New(orchCfg)
	if err != nil {
		return nil, cleanup, err
	}
	return orch, cleanup, nil
}

func buildSpeechChain(cfg cliConfig, appCfg *config.Config) tts.Synthesizer {
	pollyCfg := tts.PollyConfigFromEnv()
	if appCfg.TTS.PollyRegion != "" {
		pollyCfg.Region = appCfg.TTS.PollyRegion
	}
	if appCfg.TTS.PollyVoice != "" {
		pollyCfg.VoiceID = appCfg.TTS.PollyVoice
	}

	chain := tts.NewChain(
		tts.NewElevenLabs(tts.ElevenLabsConfigFromEnv()),
		tts.NewPolly(pollyCfg),
		tts.NewLocal(),
	)

	forced := cfg.provider
	if forced == "" {
		forced = appCfg.TTS.Provider
	}
	if forced == "" {
		return chain
	}
	return &forcedProvider{inner: chain, name: forced}
}

// forcedProvider pins the chain's first candidate to a configured provider
// while keeping fallback behavior for requests that name their own.
type forcedProvider struct {
	inner tts.Synthesizer
	name  string
}

func (f *forcedProvider) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	if req.Provider == "" {
		req.Provider = f.name
	}
	return f.inner.Synthesize(ctx, req)
}

// runPipeline executes one topic-to-video run and prints the result summary.
func runPipeline(ctx context.Context, cfg cliConfig, orch *pipeline.Orchestrator, store *history.Store) int {
	in := pipeline.Inputs{
		Topic:           cfg.topic,
		Audience:        pipeline.Audience(cfg.audience),
		DurationMinutes: cfg.duration,
		Quality:         pipeline.Quality(cfg.quality),
		OutputFilename:  cfg.output,
		Voice:           cfg.voice,
	}

	st, err := orch.Run(ctx, in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	sum := st.Summarize()
	if store != nil {
		if saveErr := store.Save(sum); saveErr != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to save run history: %v\n", saveErr)
		}
	}

	printSummary(sum)
	if !sum.Succeeded {
		return 1
	}
	return 0
}

func printSummary(sum *pipeline.Summary) {
	if sum.Succeeded {
		fmt.Printf("Pipeline completed successfully in %.1fs.\n", sum.TotalSeconds)
		fmt.Printf("Output: %s\n", sum.FinalOutput)
		if sum.SpeechProvider != "" {
			fmt.Printf("Narration: %s\n", sum.SpeechProvider)
		}
	} else {
		fmt.Printf("Pipeline failed after %.1fs.\n", sum.TotalSeconds)
		for _, e := range sum.Errors {
			fmt.Printf("  error: %s\n", e)
		}
	}
	for _, w := range sum.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
	fmt.Printf("Completed steps: %s\n", strings.Join(sum.CompletedSteps, ", "))
}

// runServer starts the HTTP API.
func runServer(ctx context.Context, cfg cliConfig, orch *pipeline.Orchestrator, store *history.Store) int {
	serverCfg := web.ServerConfig{
		Addr:   fmt.Sprintf(":%d", cfg.port),
		Runner: orch,
	}
	if store != nil {
		serverCfg.History = store
	}

	server, err := web.NewServer(serverCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	fmt.Fprintf(os.Stderr, "listening on :%d\n", cfg.port)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return 0
	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		return 0
	}
}

// verboseEventHandler prints pipeline lifecycle events to stderr.
func verboseEventHandler(evt pipeline.Event) {
	switch evt.Type {
	case pipeline.EventPipelineStarted:
		fmt.Fprintf(os.Stderr, "[pipeline] started\n")
	case pipeline.EventStepStarted:
		fmt.Fprintf(os.Stderr, "[step] %s started\n", evt.Step)
	case pipeline.EventStepCompleted:
		fmt.Fprintf(os.Stderr, "[step] %s completed\n", evt.Step)
	case pipeline.EventStepFailed:
		fmt.Fprintf(os.Stderr, "[step] %s failed: %v\n", evt.Step, evt.Data["reason"])
	case pipeline.EventStepRetrying:
		fmt.Fprintf(os.Stderr, "[step] %s retrying (attempt %v)\n", evt.Step, evt.Data["attempt"])
	case pipeline.EventPipelineCompleted:
		fmt.Fprintf(os.Stderr, "[pipeline] completed\n")
	case pipeline.EventPipelineFailed:
		fmt.Fprintf(os.Stderr, "[pipeline] failed\n")
	}
}
