package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/vd17tools/harvester/internal/config"
	"github.com/vd17tools/harvester/internal/dataset"
	"github.com/vd17tools/harvester/internal/fetch"
	"github.com/vd17tools/harvester/internal/mods"
	"github.com/vd17tools/harvester/internal/oai"
	"github.com/vd17tools/harvester/internal/ocr"
	"github.com/vd17tools/harvester/internal/selection"
	"github.com/vd17tools/harvester/internal/vocab"
)

// Pipeline wires the harvester, classifier, filter and assembler into one
// sequential selection run. One candidate is fully classified, filtered,
// downloaded and written before the next is considered.
type Pipeline struct {
	cfg        config.Config
	harvester  *oai.Harvester
	classifier *mods.Classifier
	filter     selection.Filter
	assembler  *ocr.Assembler
}

// Report summarizes one run.
type Report struct {
	Identifiers int
	Accepted    int
	Rejected    int
}

// New loads the vocabulary and wires all pipeline stages from cfg.
func New(cfg config.Config) (*Pipeline, error) {
	index, err := vocab.Load(cfg.Vocabulary)
	if err != nil {
		return nil, err
	}

	metadataFetcher := fetch.New(fetch.Options{
		ConnectTimeout:  time.Duration(cfg.Fetch.Metadata.ConnectTimeout),
		Timeout:         time.Duration(cfg.Fetch.Metadata.Timeout),
		Attempts:        cfg.Fetch.Metadata.Attempts,
		Delay:           time.Duration(cfg.Fetch.Metadata.Delay),
		FollowRedirects: true,
	})
	// Archive downloads do not follow redirects; the content server's
	// redirect target is never a zip.
	archiveFetcher := fetch.New(fetch.Options{
		ConnectTimeout: time.Duration(cfg.Fetch.Archive.ConnectTimeout),
		Timeout:        time.Duration(cfg.Fetch.Archive.Timeout),
		Attempts:       cfg.Fetch.Archive.Attempts,
		Delay:          time.Duration(cfg.Fetch.Archive.Delay),
	})

	return &Pipeline{
		cfg: cfg,
		harvester: &oai.Harvester{
			Fetcher:        metadataFetcher,
			BaseURL:        cfg.OAI.BaseURL,
			Set:            cfg.OAI.Set,
			MetadataPrefix: cfg.OAI.MetadataPrefix,
		},
		classifier: &mods.Classifier{
			Fetcher: metadataFetcher,
			BaseURL: cfg.Content.BaseURL,
			Vocab:   index,
		},
		filter: selection.Filter{
			MinYear:     cfg.Selection.MinYear,
			MaxYear:     cfg.Selection.MaxYear,
			MaxPerGenre: cfg.Selection.MaxPerGenre,
		},
		assembler: &ocr.Assembler{
			Fetcher:  archiveFetcher,
			BaseURL:  cfg.Content.BaseURL,
			ZipDir:   cfg.Output.ZipDir(),
			UnzipDir: cfg.Output.UnzipDir(),
			TextDir:  cfg.Output.TextDir(),
		},
	}, nil
}

// Run executes the whole selection pipeline. Output directories and files are
// set up before any network activity; a failure there aborts the run. The
// output streams are always closed and final counts always reported, even
// when individual records fail.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	var report Report

	if err := p.ensureDirs(); err != nil {
		return report, err
	}

	writer, err := dataset.Open(
		p.cfg.Output.DatasetPath(),
		p.cfg.Output.TitleLogPath(),
		p.cfg.Output.RejectLogPath(),
	)
	if err != nil {
		return report, err
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("Failed to close output files", "error", err)
		}
	}()

	identifiers, err := p.harvester.ListIdentifiers(ctx)
	if err != nil {
		return report, fmt.Errorf("identifier harvest failed: %w", err)
	}
	report.Identifiers = len(identifiers)

	slog.Info("Starting selection",
		"identifiers", len(identifiers),
		"maxDownloads", p.cfg.Selection.MaxDownloads,
		"maxPerGenre", p.cfg.Selection.MaxPerGenre)

	quotas := selection.NewQuotas()

	for i, identifier := range identifiers {
		if quotas.Accepted() >= p.cfg.Selection.MaxDownloads {
			slog.Info("Global download cap reached", "cap", p.cfg.Selection.MaxDownloads)
			break
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		ppn := oai.PPN(identifier)
		slog.Info("Processing record", "ppn", ppn, "progress", fmt.Sprintf("%d/%d", i+1, len(identifiers)))

		decision := p.classifier.Classify(ctx, ppn)

		if ok, reason := p.filter.Check(decision, quotas); !ok {
			slog.Debug("Rejected", "ppn", ppn, "reason", reason)
			if err := writer.WriteRejection(ppn, reason); err != nil {
				return report, err
			}
			report.Rejected++
			continue
		}

		text, err := p.assembler.Materialize(ctx, ppn)
		if err != nil {
			// Skipped, not rejected: the record passed selection but its
			// archive could not be retrieved.
			slog.Warn("Could not materialize OCR text", "ppn", ppn, "error", err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			if err := writer.WriteRejection(ppn, "empty text"); err != nil {
				return report, err
			}
			report.Rejected++
			continue
		}

		if err := writer.WriteTitle(ppn, decision.Codes, decision.Title, decision.Creator, decision.Date); err != nil {
			return report, err
		}
		if err := writer.WriteRow(text, decision.Codes); err != nil {
			return report, err
		}

		quotas.Record(decision.Codes[0])
		report.Accepted++
		slog.Info("Accepted", "ppn", ppn, "code", decision.Codes[0], "chars", len(text))
	}

	slog.Info("Harvest finished",
		"identifiers", report.Identifiers,
		"accepted", report.Accepted,
		"rejected", report.Rejected)

	return report, nil
}

func (p *Pipeline) ensureDirs() error {
	dirs := []string{
		p.cfg.Output.Dir,
		p.cfg.Output.ZipDir(),
		p.cfg.Output.UnzipDir(),
		p.cfg.Output.TextDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory %s: %w", dir, err)
		}
	}
	return nil
}
