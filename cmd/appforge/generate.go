package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/awsl-project/appforge/internal/config"
	"github.com/awsl-project/appforge/internal/core"
	"github.com/awsl-project/appforge/internal/domain"
	"github.com/awsl-project/appforge/internal/jsonx"
	"github.com/awsl-project/appforge/internal/service"
	"github.com/awsl-project/appforge/internal/sse"
)

var (
	genModel        string
	genConversation string
	genDir          string
	genOutDir       string
	genRaw          bool
	genStream       bool
	genDeploy       bool
)

var generateCmd = &cobra.Command{
	Use:   "generate [prompt]",
	Short: "Run one generation and write the resulting project to disk",
	Long: `Runs the full generation pipeline for a single prompt.

With --dir the existing project in that directory is sent along and the
request becomes an edit. The merged project is written to --out (defaults to
--dir when editing). Progress goes to stderr; with --raw the SSE stream is
written to stdout instead.

With --deploy the project is started in a local sandbox and the command keeps
the preview running until interrupted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		req := &domain.GenerationRequest{
			UserMessage:    strings.Join(args, " "),
			ModelID:        genModel,
			ConversationID: genConversation,
		}
		if genDeploy && cfg.Sandbox.Runtime == config.SandboxRuntimeNone {
			cfg.Sandbox.Runtime = config.SandboxRuntimeLocal
		}
		if genDir != "" {
			files, err := loadProjectDir(genDir)
			if err != nil {
				return err
			}
			req.ExistingFiles = files
		}
		outDir := genOutDir
		if outDir == "" {
			outDir = genDir
		}

		sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx := sigCtx
		if cfg.GenerateTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(sigCtx, cfg.GenerateTimeout)
			defer cancel()
		}

		repos, err := core.InitializeDatabase(cfg)
		if err != nil {
			return err
		}
		defer core.CloseDatabase(repos)

		components, err := core.InitializeServerComponents(repos, cfg, uuid.NewString(), os.Stderr)
		if err != nil {
			return err
		}
		defer components.Shutdown(context.Background())

		var out service.Emitter
		if genRaw {
			out = service.EmitterFunc(sse.NewWriter(os.Stdout).Send)
		} else {
			out = &progressPrinter{w: os.Stderr, stream: genStream}
		}

		outcome, err := components.GenerateService.Generate(ctx, req, out)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("generation timed out after %s", cfg.GenerateTimeout)
			}
			return err
		}

		if outDir != "" {
			if err := writeProjectDir(outDir, outcome.Files, outcome.Changes); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Wrote %d files to %s\n", outcome.Files.Len(), outDir)
		}

		if genDeploy && outcome.Deployment != nil {
			fmt.Fprintf(os.Stderr, "Preview running at %s, press Ctrl+C to stop\n", outcome.Deployment.URL)
			select {
			case <-sigCtx.Done():
			case <-time.After(time.Until(outcome.Deployment.ExpiresAt)):
				fmt.Fprintln(os.Stderr, "Sandbox session expired")
			}
		}
		return nil
	},
}

func init() {
	generateCmd.Flags().StringVarP(&genModel, "model", "m", "", "Model ID (default "+domain.DefaultModelID+")")
	generateCmd.Flags().StringVarP(&genConversation, "conversation", "c", "", "Conversation ID used for project state and the sandbox session")
	generateCmd.Flags().StringVar(&genDir, "dir", "", "Existing project directory to edit")
	generateCmd.Flags().StringVarP(&genOutDir, "out", "o", "", "Directory to write the generated project to")
	generateCmd.Flags().BoolVar(&genRaw, "raw", false, "Write the raw SSE stream to stdout")
	generateCmd.Flags().BoolVar(&genStream, "stream", false, "Echo streamed model output")
	generateCmd.Flags().BoolVar(&genDeploy, "deploy", false, "Deploy to a local sandbox and keep the preview running")
}

// progressPrinter renders pipeline events as plain progress lines
type progressPrinter struct {
	w      io.Writer
	stream bool
}

func (p *progressPrinter) Emit(event string, data any) error {
	payload := gjson.Parse(jsonx.MarshalString(data))

	var err error
	switch event {
	case service.EventModel:
		_, err = fmt.Fprintf(p.w, "Model: %s\n", payload.Get("name").String())
	case service.EventStage:
		msg := payload.Get("message").String()
		if msg == "" {
			msg = payload.Get("stage").String() + "..."
		}
		_, err = fmt.Fprintln(p.w, msg)
	case service.EventCodeStream:
		if p.stream {
			_, err = io.WriteString(p.w, payload.Get("chunk").String())
		}
	case service.EventModelUsed:
		_, err = fmt.Fprintln(p.w, payload.Get("message").String())
	case service.EventFiles:
		var paths []string
		payload.ForEach(func(key, _ gjson.Result) bool {
			paths = append(paths, key.String())
			return true
		})
		_, err = fmt.Fprintf(p.w, "Files (%d): %s\n", len(paths), strings.Join(paths, ", "))
	case service.EventDeployment:
		if url := payload.Get("url").String(); url != "" {
			_, err = fmt.Fprintf(p.w, "Preview: %s (expires in %s)\n", url, payload.Get("expiresIn").String())
		} else {
			_, err = fmt.Fprintln(p.w, payload.Get("message").String())
		}
	case service.EventDone:
		_, err = fmt.Fprintf(p.w, "\n%s\n", payload.Get("message").String())
	case service.EventError:
		_, err = fmt.Fprintf(p.w, "Error: %s\n", payload.Get("message").String())
	}
	return err
}
