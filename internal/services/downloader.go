package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Nexgear75/MacScribe/internal/models"
	"github.com/Nexgear75/MacScribe/internal/shared"
	"github.com/charmbracelet/log"
	"github.com/lrstanley/go-ytdlp"
)

// progressInterval is how often yt-dlp progress is sampled.
const progressInterval = 500 * time.Millisecond

// fetchFunc runs yt-dlp for url into dir and returns the extracted info of what it downloaded.
type fetchFunc func(ctx context.Context, url, dir string, onProgress func(ytdlp.ProgressUpdate)) ([]*ytdlp.ExtractedInfo, error)

// YTDLPDownloader downloads remote videos with yt-dlp.
type YTDLPDownloader struct {
	format      string
	mergeFormat string
	fetch       fetchFunc
	logger      *log.Logger
}

// NewYTDLPDownloader creates a downloader from the [shared.DownloaderConfig] section.
func NewYTDLPDownloader(cfg shared.DownloaderConfig, logger *log.Logger) *YTDLPDownloader {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	d := &YTDLPDownloader{format: cfg.Format, mergeFormat: cfg.MergeFormat, logger: logger}
	if d.mergeFormat == "" {
		d.mergeFormat = "mp4"
	}
	d.fetch = d.run
	return d
}

// Download fetches url into dir, reporting byte progress through onProgress.
func (d *YTDLPDownloader) Download(ctx context.Context, url, dir string, onProgress func(models.DownloadProgress)) (*models.DownloadResult, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	d.logger.Info("starting download", "url", url, "dir", dir)
	infos, err := d.fetch(ctx, url, dir, func(u ytdlp.ProgressUpdate) {
		if onProgress != nil {
			onProgress(toDownloadProgress(u))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("yt-dlp failed: %w", err)
	}

	result := resultFromInfo(infos)
	if result.FilePath == "" {
		return nil, fmt.Errorf("yt-dlp reported no downloaded file for %s", url)
	}

	d.logger.Info("download finished", "title", result.Title, "path", result.FilePath, "duration", result.Duration)
	return result, nil
}

func (d *YTDLPDownloader) run(ctx context.Context, url, dir string, onProgress func(ytdlp.ProgressUpdate)) ([]*ytdlp.ExtractedInfo, error) {
	dl := ytdlp.New().
		ForceOverwrites().
		RestrictFilenames().
		Output(dir + "/%(title)s.%(ext)s").
		MergeOutputFormat(d.mergeFormat).
		PrintJSON()
	if d.format != "" {
		dl = dl.Format(d.format)
	}

	dl.ProgressFunc(progressInterval, onProgress)

	result, err := dl.Run(ctx, url)
	if err != nil {
		return nil, err
	}
	return result.GetExtractedInfo()
}

func toDownloadProgress(u ytdlp.ProgressUpdate) models.DownloadProgress {
	var p models.DownloadProgress
	if u.TotalBytes > 0 {
		p.Percent = min(float64(u.DownloadedBytes)/float64(u.TotalBytes)*100, 100)
	}
	if !u.Started.IsZero() {
		if elapsed := time.Since(u.Started).Seconds(); elapsed > 0 {
			p.Speed = float64(u.DownloadedBytes) / elapsed
		}
	}
	return p
}

// resultFromInfo reads the first downloaded entry.
func resultFromInfo(infos []*ytdlp.ExtractedInfo) *models.DownloadResult {
	result := &models.DownloadResult{}
	for _, info := range infos {
		if info == nil || info.Filename == nil || *info.Filename == "" {
			continue
		}
		result.FilePath = *info.Filename
		if info.Title != nil {
			result.Title = *info.Title
		}
		if info.Duration != nil {
			result.Duration = time.Duration(*info.Duration * float64(time.Second))
		}
		break
	}
	if result.Title == "" && result.FilePath != "" {
		base := filepath.Base(result.FilePath)
		result.Title = base[:len(base)-len(filepath.Ext(base))]
	}
	return result
}
