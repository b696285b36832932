package tasks

import (
	"github.com/Nexgear75/MacScribe/internal/models"
)

// Pipeline phase enumeration
type Phase int

const (
	Idle Phase = iota
	Downloading
	AwaitingDecision
	ExtractingAudio
	Normalizing
	Transcribing
	Generating
	Exporting
	Done
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Downloading:
		return "downloading"
	case AwaitingDecision:
		return "awaiting_decision"
	case ExtractingAudio:
		return "extracting_audio"
	case Normalizing:
		return "normalizing"
	case Transcribing:
		return "transcribing"
	case Generating:
		return "generating"
	case Exporting:
		return "exporting"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return ""
	}
}

// Terminal reports whether no transition leaves p.
func (p Phase) Terminal() bool {
	return p == Done || p == Failed
}

var transitions = map[Phase][]Phase{
	Idle:             {Downloading, ExtractingAudio, Normalizing},
	Downloading:      {AwaitingDecision},
	AwaitingDecision: {ExtractingAudio, Done},
	ExtractingAudio:  {Normalizing},
	Normalizing:      {Transcribing},
	Transcribing:     {Generating},
	Generating:       {Exporting},
	Exporting:        {Done},
}

// validTransition reports whether the pipeline may move from one phase to the next.
// Failed is reachable from every non-terminal phase.
func validTransition(from, to Phase) bool {
	if from.Terminal() {
		return false
	}
	if to == Failed {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Subtask names shown to clients, per pipeline shape.
var (
	downloadSubTasks = []string{"Downloading video"}
	videoSubTasks    = []string{"Extracting audio", "Normalizing audio", "Transcription", "Generating content", "Export"}
	audioSubTasks    = videoSubTasks[1:]
)

func connectedMessage(sessionID string) models.ConnectedMessage {
	return models.ConnectedMessage{Type: models.MsgConnected, TaskID: sessionID}
}

func initMessage(subtasks []models.SubTask) models.InitMessage {
	tasks := make([]models.SubTask, len(subtasks))
	for i, st := range subtasks {
		tasks[i] = models.SubTask{ID: st.ID, Name: st.Name, Status: st.Status, Progress: st.Progress}
	}
	return models.InitMessage{Type: models.MsgInit, Tasks: tasks}
}

func statusMessage(idx int, status models.SubTaskStatus, progress *int) models.StatusMessage {
	return models.StatusMessage{Type: models.MsgStatus, TaskID: idx, Status: status, Progress: progress}
}

func progressMessage(idx, progress int) models.ProgressMessage {
	return models.ProgressMessage{Type: models.MsgProgress, TaskID: idx, Progress: progress}
}

func downloadProgressMessage(idx, progress int, p models.DownloadProgress) models.ProgressMessage {
	msg := progressMessage(idx, progress)
	percent := p.Percent
	msg.DownloadPercent = &percent
	if p.Speed > 0 {
		speed := p.Speed
		msg.DownloadSpeed = &speed
	}
	return msg
}

func downloadCompleteMessage(res *models.DownloadResult) models.DownloadCompleteMessage {
	return models.DownloadCompleteMessage{Type: models.MsgDownloadComplete, VideoPath: res.FilePath, Title: res.Title}
}

func generationStartMessage(description string) models.GenerationStartMessage {
	return models.GenerationStartMessage{Type: models.MsgGenerationStart, Prompt: "Generating with " + description + "..."}
}

func generationTokenMessage(chunk GenerationChunk) models.GenerationTokenMessage {
	return models.GenerationTokenMessage{Type: models.MsgGenerationToken, Token: chunk.Token, Content: chunk.Content}
}

func generationContentMessage(content string) models.GenerationContentMessage {
	return models.GenerationContentMessage{Type: models.MsgGenerationContent, Content: content}
}

func errorMessage(idx *int, message string) models.ErrorMessage {
	return models.ErrorMessage{Type: models.MsgError, TaskID: idx, Message: message}
}

func completeMessage(outputPath string) models.CompleteMessage {
	return models.CompleteMessage{Type: models.MsgComplete, OutputPath: outputPath}
}
