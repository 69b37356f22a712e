package mcpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/satriahrh/scribe/domain/entities"
)

// Session is the transcription session exposed as MCP tools
type Session interface {
	Start(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) error
	Status() entities.Snapshot
	Transcript(ctx context.Context) (string, error)
	ClearTranscript(ctx context.Context) error
	DeleteTranscript(ctx context.Context) error
	TranscriptPath() string
}

// NoInput is the argument type of tools without parameters
type NoInput struct{}

// StatusOutput is the flattened session status returned by every state-changing tool
type StatusOutput struct {
	Message                 string  `json:"message,omitempty" jsonschema:"what the tool did"`
	SessionID               string  `json:"session_id,omitempty" jsonschema:"identifier of the current or last session"`
	IsRunning               bool    `json:"is_running" jsonschema:"whether a session is running"`
	IsPaused                bool    `json:"is_paused" jsonschema:"whether the running session is paused"`
	PauseReason             string  `json:"pause_reason,omitempty" jsonschema:"manual, silence or inactivity"`
	Warning                 string  `json:"warning,omitempty" jsonschema:"set when the session was paused by a safeguard"`
	StartTime               string  `json:"start_time,omitempty" jsonschema:"RFC3339 start of the session"`
	LastTranscriptTime      string  `json:"last_transcript_time,omitempty" jsonschema:"RFC3339 time of the last transcribed chunk"`
	ChunksProcessed         int     `json:"chunks_processed" jsonschema:"chunks sent to speech-to-text"`
	SilentChunksSkipped     int     `json:"silent_chunks_skipped" jsonschema:"silent chunks never sent"`
	ConsecutiveSilentChunks int     `json:"consecutive_silent_chunks" jsonschema:"current run of silent chunks"`
	Errors                  int     `json:"errors" jsonschema:"failed transcriptions and audio errors"`
	EstimatedCost           float64 `json:"estimated_cost_usd" jsonschema:"cost of the transcribed audio in USD"`
	CostSaved               float64 `json:"cost_saved_usd" jsonschema:"cost avoided by skipping silence in USD"`
}

// TranscriptOutput carries the transcript document
type TranscriptOutput struct {
	Path    string `json:"path" jsonschema:"where the transcript is stored"`
	Content string `json:"content" jsonschema:"the transcript document"`
}

// PathOutput carries the transcript location
type PathOutput struct {
	Path string `json:"path" jsonschema:"where the transcript is stored"`
}

// MessageOutput is a plain acknowledgement
type MessageOutput struct {
	Message string `json:"message" jsonschema:"what the tool did"`
}

// NewStatusOutput flattens a snapshot for tool clients
func NewStatusOutput(message string, s entities.Snapshot) StatusOutput {
	out := StatusOutput{
		Message:                 message,
		SessionID:               s.ID,
		IsRunning:               s.IsRunning,
		IsPaused:                s.IsPaused,
		PauseReason:             string(s.PauseReason),
		Warning:                 s.Warning,
		ChunksProcessed:         s.ChunksProcessed,
		SilentChunksSkipped:     s.SilentChunksSkipped,
		ConsecutiveSilentChunks: s.ConsecutiveSilentChunks,
		Errors:                  s.Errors,
		EstimatedCost:           s.EstimatedCost,
		CostSaved:               s.CostSaved,
	}
	if s.StartTime != nil {
		out.StartTime = s.StartTime.Format(time.RFC3339)
	}
	if s.LastTranscriptTime != nil {
		out.LastTranscriptTime = s.LastTranscriptTime.Format(time.RFC3339)
	}
	return out
}

// NewServer registers the session tools on a new MCP server
func NewServer(session Session, version string, logger *zap.Logger) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "scribe",
		Version: version,
	}, nil)

	t := &tools{session: session, logger: logger}
	destructive := true

	mcp.AddTool(server, &mcp.Tool{
		Name:        "start_transcription",
		Description: "Start capturing audio and transcribing it into the transcript document",
	}, t.change("start_transcription", session.Start, "Transcription started"))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "pause_transcription",
		Description: "Pause transcription. Audio is discarded until resumed",
	}, t.change("pause_transcription", session.Pause, "Transcription paused"))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "resume_transcription",
		Description: "Resume a paused transcription, whatever paused it",
	}, t.change("resume_transcription", session.Resume, "Transcription resumed"))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "stop_transcription",
		Description: "Stop the session and return its final statistics",
	}, t.change("stop_transcription", session.Stop, "Transcription stopped"))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_status",
		Description: "Get the session status including estimated cost and cost saved by skipping silence",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, t.status)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_transcript",
		Description: "Read the full transcript document",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, t.transcript)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "clear_transcript",
		Description: "Empty the transcript document. A running session keeps going",
	}, t.clear)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_transcript",
		Description: "Remove the transcript document. Refused while a session is running",
		Annotations: &mcp.ToolAnnotations{DestructiveHint: &destructive},
	}, t.delete)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_transcript_path",
		Description: "Get where the transcript document is stored",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, t.path)

	return server
}

// ServeStdio runs the server over stdin and stdout until ctx is done
func ServeStdio(ctx context.Context, server *mcp.Server) error {
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}

// NewHTTPHandler serves the server over streamable HTTP
func NewHTTPHandler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil)
}

type tools struct {
	session Session
	logger  *zap.Logger
}

type statusHandler = mcp.ToolHandlerFor[NoInput, StatusOutput]

func (t *tools) change(name string, op func(context.Context) error, message string) statusHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest, _ NoInput) (*mcp.CallToolResult, StatusOutput, error) {
		t.logger.Debug("MCP tool called", zap.String("tool", name))
		if err := op(ctx); err != nil {
			t.logger.Warn("MCP tool failed", zap.String("tool", name), zap.Error(err))
			return nil, StatusOutput{}, err
		}
		return nil, NewStatusOutput(message, t.session.Status()), nil
	}
}

func (t *tools) status(ctx context.Context, req *mcp.CallToolRequest, _ NoInput) (*mcp.CallToolResult, StatusOutput, error) {
	return nil, NewStatusOutput("", t.session.Status()), nil
}

func (t *tools) transcript(ctx context.Context, req *mcp.CallToolRequest, _ NoInput) (*mcp.CallToolResult, TranscriptOutput, error) {
	content, err := t.session.Transcript(ctx)
	if err != nil {
		return nil, TranscriptOutput{}, err
	}
	return nil, TranscriptOutput{Path: t.session.TranscriptPath(), Content: content}, nil
}

func (t *tools) clear(ctx context.Context, req *mcp.CallToolRequest, _ NoInput) (*mcp.CallToolResult, MessageOutput, error) {
	if err := t.session.ClearTranscript(ctx); err != nil {
		return nil, MessageOutput{}, err
	}
	return nil, MessageOutput{Message: "Transcript cleared"}, nil
}

func (t *tools) delete(ctx context.Context, req *mcp.CallToolRequest, _ NoInput) (*mcp.CallToolResult, MessageOutput, error) {
	if err := t.session.DeleteTranscript(ctx); err != nil {
		t.logger.Warn("MCP tool failed", zap.String("tool", "delete_transcript"), zap.Error(err))
		return nil, MessageOutput{}, err
	}
	return nil, MessageOutput{Message: "Transcript deleted"}, nil
}

func (t *tools) path(ctx context.Context, req *mcp.CallToolRequest, _ NoInput) (*mcp.CallToolResult, PathOutput, error) {
	return nil, PathOutput{Path: t.session.TranscriptPath()}, nil
}
