// Package pipeline runs one narration request: extract, rewrite, chunk,
// synthesize and deliver, reporting the first failing stage to the requester.
package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// Stage names one step of a request; the value doubles as the metric label
type Stage string

const (
	StageExtract    Stage = "extract"
	StageRewrite    Stage = "rewrite"
	StageSynthesize Stage = "synthesize"
	StageDeliver    Stage = "deliver"
)

// AckMessage is sent as soon as a URL is received
const AckMessage = "Got it! Working on it. It may take a while..."

// EmptyMessage is sent when the edited text has nothing to read
const EmptyMessage = "Nothing to read: the edited text is empty."

// Label renders the human readable stage description for part index
func (s Stage) Label(index int) string {
	switch s {
	case StageExtract:
		return "retrieving article text"
	case StageRewrite:
		return "editing text"
	case StageSynthesize:
		return fmt.Sprintf("converting part %d to speech", index)
	case StageDeliver:
		return fmt.Sprintf("sending part %d", index)
	default:
		return string(s)
	}
}

// StageError is the single failure of a request
type StageError struct {
	Stage Stage
	Index int // part index for synthesize and deliver
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage.Label(e.Index), e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Message is the chat text reported to the requester
func (e *StageError) Message() string {
	return fmt.Sprintf("Error: %s %v", e.Stage.Label(e.Index), e.Err)
}

// IsStage reports whether err is a StageError for stage
func IsStage(err error, stage Stage) bool {
	var se *StageError
	return errors.As(err, &se) && se.Stage == stage
}

// AudioArtifact is one delivered clip
type AudioArtifact struct {
	Index       int
	FileName    string
	ContentType string
	Data        []byte
}

// NewArtifact names the clip for part index
func NewArtifact(index int, data []byte) AudioArtifact {
	return AudioArtifact{
		Index:       index,
		FileName:    fmt.Sprintf("part_%d.mp3", index),
		ContentType: "audio/mpeg",
		Data:        data,
	}
}

// Replier is the outbound channel bound to one requester
type Replier interface {
	SendText(ctx context.Context, text string) error
	SendAudio(ctx context.Context, artifact AudioArtifact) error
}

// Request is one inbound message carrying a URL
type Request struct {
	ID        string
	Requester string
	URL       string
	Reply     Replier
}

// Request outcomes recorded in history and metrics
const (
	StatusDone   = "done"
	StatusFailed = "failed"
	StatusEmpty  = "empty"
)

// Outcome summarizes a finished request
type Outcome struct {
	Status  string
	Parts   int
	Failure *StageError
}

// RewriteCache stores edited text keyed by the extracted text
type RewriteCache interface {
	Get(ctx context.Context, extracted string) (string, bool, error)
	Set(ctx context.Context, extracted, edited string) error
}

// History records request lifecycles
type History interface {
	Start(ctx context.Context, req Request) error
	Finish(ctx context.Context, id string, outcome Outcome) error
}

// Archive keeps a copy of delivered audio
type Archive interface {
	Save(ctx context.Context, requestID string, artifact AudioArtifact) (string, error)
}
