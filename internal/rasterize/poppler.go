// Package rasterize converts PDF documents into per-page images by
// shelling out to poppler's pdftoppm.
package rasterize

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

var commandContext = exec.CommandContext

const pagePrefix = "page"

// Config holds rasterizer settings.
type Config struct {
	Binary    string
	Format    string // jpeg or png
	DPI       int
	Timeout   time.Duration
	ImagesDir string
}

// Poppler wraps the pdftoppm command-line rasterizer.
type Poppler struct {
	binary    string
	format    string
	dpi       int
	timeout   time.Duration
	imagesDir string
	logger    *slog.Logger
}

// NewPoppler constructs a Poppler rasterizer, filling defaults for any
// unset options.
func NewPoppler(cfg *Config, logger *slog.Logger) *Poppler {
	p := &Poppler{
		binary:    cfg.Binary,
		format:    cfg.Format,
		dpi:       cfg.DPI,
		timeout:   cfg.Timeout,
		imagesDir: cfg.ImagesDir,
		logger:    logger,
	}

	if p.binary == "" {
		p.binary = "pdftoppm"
	}
	if p.format == "" {
		p.format = "jpeg"
	}
	if p.dpi <= 0 {
		p.dpi = 150
	}

	return p
}

// Rasterize converts the document into one image per page under
// {imagesDir}/{jobID}/ and returns the image paths in page order.
func (p *Poppler) Rasterize(ctx context.Context, jobID, documentPath string) ([]string, error) {
	outDir := filepath.Join(p.imagesDir, jobID)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	prefix := filepath.Join(outDir, pagePrefix)
	args := []string{
		"-" + p.format,
		"-r", strconv.Itoa(p.dpi),
		documentPath,
		prefix,
	}

	p.logger.Debug("Rasterizing document",
		slog.String("job_id", jobID),
		slog.String("document", documentPath),
		slog.String("binary", p.binary),
		slog.Int("dpi", p.dpi),
	)

	cmd := commandContext(ctx, p.binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(output))
		if detail != "" {
			return nil, fmt.Errorf("%s failed: %w: %s", p.binary, err, detail)
		}
		return nil, fmt.Errorf("%s failed: %w", p.binary, err)
	}

	pages, err := collectPages(outDir, p.extension())
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%s produced no pages for %s", p.binary, documentPath)
	}

	p.logger.Info("Document rasterized",
		slog.String("job_id", jobID),
		slog.Int("pages", len(pages)),
	)

	return pages, nil
}

func (p *Poppler) extension() string {
	if p.format == "jpeg" {
		return ".jpg"
	}
	return "." + p.format
}

// collectPages lists {prefix}-N{ext} files in dir sorted by page number.
// pdftoppm zero-pads page numbers to the width of the final page, so
// lexical order is unreliable for mixed widths.
func collectPages(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list image directory: %w", err)
	}

	type page struct {
		number int
		path   string
	}

	var pages []page
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, pagePrefix+"-") || !strings.HasSuffix(name, ext) {
			continue
		}

		numeric := strings.TrimSuffix(strings.TrimPrefix(name, pagePrefix+"-"), ext)
		number, err := strconv.Atoi(numeric)
		if err != nil {
			continue
		}

		pages = append(pages, page{number: number, path: filepath.Join(dir, name)})
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].number < pages[j].number })

	paths := make([]string, len(pages))
	for i, pg := range pages {
		paths[i] = pg.path
	}

	return paths, nil
}
