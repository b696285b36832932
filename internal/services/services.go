package services

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Tool is an external binary the pipeline shells out to.
type Tool struct {
	Name    string
	Path    string
	Version []string // args that print a version banner
}

// ToolStatus is the outcome of probing one [Tool].
type ToolStatus struct {
	Tool     Tool
	Resolved string
	Banner   string
	Err      error
}

// OK reports whether the tool was found and ran.
func (s ToolStatus) OK() bool {
	return s.Err == nil
}

// RequiredTools lists the binaries used by [FFmpegProcessor] and [YTDLPDownloader].
func RequiredTools(opts MediaOpts) []Tool {
	ffmpeg := opts.FFmpegPath
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	whisper := opts.WhisperPath
	if whisper == "" {
		whisper = "whisper-cli"
	}
	return []Tool{
		{Name: "ffmpeg", Path: ffmpeg, Version: []string{"-version"}},
		{Name: "whisper.cpp", Path: whisper, Version: []string{"--help"}},
		{Name: "yt-dlp", Path: "yt-dlp", Version: []string{"--version"}},
	}
}

// CheckTools resolves and runs every tool, returning one status per tool in order.
func CheckTools(ctx context.Context, tools []Tool) []ToolStatus {
	return checkTools(ctx, tools, exec.LookPath, &execRunner{})
}

func checkTools(ctx context.Context, tools []Tool, lookPath func(string) (string, error), runner commandRunner) []ToolStatus {
	statuses := make([]ToolStatus, 0, len(tools))
	for _, tool := range tools {
		status := ToolStatus{Tool: tool}

		resolved, err := lookPath(tool.Path)
		if err != nil {
			status.Err = fmt.Errorf("%s not found: %w", tool.Name, err)
			statuses = append(statuses, status)
			continue
		}
		status.Resolved = resolved

		res, err := runner.Run(ctx, resolved, tool.Version...)
		if err != nil && res.Stdout == "" && res.Stderr == "" {
			status.Err = fmt.Errorf("%s failed to run: %w", tool.Name, err)
		}
		status.Banner = firstLine(res.Stdout + res.Stderr)
		statuses = append(statuses, status)
	}
	return statuses
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(line)
}
