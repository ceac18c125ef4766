package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"loft/internal/apiclient"
	"loft/internal/asset"
	"loft/internal/compress"
	"loft/internal/dedup"
	"loft/internal/ingest"
	"loft/internal/logging"
	"loft/internal/preflight"
	"loft/internal/transport"
)

func newUploadCommand(cmdCtx *commandContext) *cobra.Command {
	var propertyID, zoneID, stepID string
	var useExisting, uploadAnyway bool
	var concurrency int
	var skipPreflight bool

	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Ingest media files into the asset service",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if useExisting && uploadAnyway {
				return errors.New("--use-existing and --upload-anyway are mutually exclusive")
			}

			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !skipPreflight {
				failed := false
				for _, result := range preflight.RunAll(cmd.Context(), cfg) {
					if !result.Passed {
						failed = true
						fmt.Fprintf(out, "preflight: %s: %s\n", result.Name, result.Detail)
					}
				}
				if failed {
					return errors.New("preflight checks failed (use --skip-preflight to override)")
				}
			}

			requests := make([]ingest.Request, 0, len(args))
			var usage *asset.UsageLocation
			if propertyID != "" || zoneID != "" || stepID != "" {
				if propertyID == "" || zoneID == "" || stepID == "" {
					return errors.New("--property, --zone, and --step must be set together")
				}
				usage = &asset.UsageLocation{PropertyID: propertyID, ZoneID: zoneID, StepID: stepID}
			}
			for _, arg := range args {
				absPath, err := filepath.Abs(arg)
				if err != nil {
					return fmt.Errorf("resolve path: %w", err)
				}
				if _, err := os.Stat(absPath); err != nil {
					if errors.Is(err, os.ErrNotExist) {
						return fmt.Errorf("file does not exist: %s", absPath)
					}
					return fmt.Errorf("inspect file: %w", err)
				}
				requests = append(requests, ingest.Request{Path: absPath, Usage: usage})
			}

			serverURL, err := cmdCtx.serverURL()
			if err != nil {
				return err
			}
			client := apiclient.New(serverURL, cfg.Paths.APIToken, nil)
			logger := logging.NewNop()

			deps := ingest.Deps{
				Cfg:      cfg,
				Resolver: dedup.New(client, 0, logger),
				Uploader: transport.New(cfg, client, logger),
				Client:   client,
				EngineRef: compress.NewEngineRef(func() (compress.Engine, error) {
					return compress.NewFFmpegEngine(cfg.Compression.FFmpegBinary), nil
				}),
			}

			ui := newUploadUI(out, cmd.InOrStdin(), decisionPolicy(useExisting, uploadAnyway))
			items := runBatch(cmd, deps, requests, concurrency, ui)

			failures := 0
			for _, item := range items {
				name := filepath.Base(item.Request.Path)
				switch {
				case item.Err != nil:
					failures++
					fmt.Fprintf(out, "✗ %s: %v\n", name, item.Err)
				case item.Result.ReusedExisting:
					fmt.Fprintf(out, "✓ %s: reused existing asset %s\n", name, item.Result.Asset.ID)
				default:
					fmt.Fprintf(out, "✓ %s: stored as %s (%s)\n", name, item.Result.Asset.ID,
						humanize.IBytes(uint64(item.Result.Asset.SizeBytes)))
				}
			}
			if failures > 0 {
				return fmt.Errorf("%d of %d files failed", failures, len(items))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&propertyID, "property", "", "Property to record as a usage location")
	cmd.Flags().StringVar(&zoneID, "zone", "", "Zone to record as a usage location")
	cmd.Flags().StringVar(&stepID, "step", "", "Workflow step to record as a usage location")
	cmd.Flags().BoolVar(&useExisting, "use-existing", false, "Reuse the existing asset on any duplicate match")
	cmd.Flags().BoolVar(&uploadAnyway, "upload-anyway", false, "Always upload even when a duplicate exists")
	cmd.Flags().IntVar(&concurrency, "concurrency", 2, "Files ingested in parallel")
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Skip environment checks before uploading")
	return cmd
}

// decisionPolicy resolves what to do with a duplicate match when the
// user preselected an answer. The zero policy prompts interactively.
type policy int

const (
	policyPrompt policy = iota
	policyUseExisting
	policyUploadAnyway
)

func decisionPolicy(useExisting, uploadAnyway bool) policy {
	switch {
	case useExisting:
		return policyUseExisting
	case uploadAnyway:
		return policyUploadAnyway
	default:
		return policyPrompt
	}
}

// uploadUI serializes terminal interaction across concurrent lifecycles.
type uploadUI struct {
	mu     sync.Mutex
	out    io.Writer
	in     *bufio.Reader
	tty    bool
	policy policy
}

func newUploadUI(out io.Writer, in io.Reader, p policy) *uploadUI {
	tty := false
	if f, ok := out.(*os.File); ok {
		tty = isatty.IsTerminal(f.Fd())
	}
	return &uploadUI{out: out, in: bufio.NewReader(in), tty: tty, policy: p}
}

// decide answers a duplicate pause. Without a preselected policy and
// without a terminal, authoritative matches reuse the existing asset
// and name-only matches upload.
func (u *uploadUI) decide(name string, candidate *asset.Candidate) ingest.Decision {
	u.mu.Lock()
	defer u.mu.Unlock()

	switch u.policy {
	case policyUseExisting:
		return ingest.DecisionUseExisting
	case policyUploadAnyway:
		return ingest.DecisionUploadAnyway
	}

	if !u.tty {
		if candidate.Authoritative {
			return ingest.DecisionUseExisting
		}
		return ingest.DecisionUploadAnyway
	}

	kind := "identical content"
	if !candidate.Authoritative {
		kind = "matching filename"
	}
	fmt.Fprintf(u.out, "\n%s: found existing asset %s (%s, %d usages, %s)\n",
		name, candidate.Asset.ID, kind, len(candidate.Usage),
		humanize.IBytes(uint64(candidate.Asset.SizeBytes)))
	for {
		fmt.Fprint(u.out, "Use existing asset, or upload anyway? [U/a]: ")
		line, err := u.in.ReadString('\n')
		if err != nil {
			return ingest.DecisionUseExisting
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "", "u", "use":
			return ingest.DecisionUseExisting
		case "a", "anyway", "upload":
			return ingest.DecisionUploadAnyway
		}
	}
}

func (u *uploadUI) newBar(name string, total int64) *progressbar.ProgressBar {
	if !u.tty {
		return nil
	}
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(name),
		progressbar.OptionShowBytes(true),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetWriter(u.out),
	)
}

func runBatch(cmd *cobra.Command, deps ingest.Deps, requests []ingest.Request, concurrency int, ui *uploadUI) []ingest.BatchItem {
	batch := ingest.NewBatch(deps, concurrency)
	return batch.Run(cmd.Context(), requests, func(index int, lc *ingest.Lifecycle) {
		name := filepath.Base(requests[index].Path)
		var bar *progressbar.ProgressBar
		size := int64(0)
		if info, err := os.Stat(requests[index].Path); err == nil {
			size = info.Size()
		}
		lc.SetOnEvent(func(ev ingest.Event) {
			switch ev.State {
			case asset.StateAwaitingDecision:
				lc.Decide(ui.decide(name, ev.Candidate))
			case asset.StateUploading:
				if bar == nil {
					bar = ui.newBar(name, size)
				}
				if bar != nil && size > 0 {
					_ = bar.Set64(int64(ev.Percent / 100 * float64(size)))
				}
			case asset.StatePersisted, asset.StateFailed, asset.StateCancelled:
				if bar != nil {
					_ = bar.Finish()
				}
			}
		})
	})
}
