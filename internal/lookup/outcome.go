package lookup

import (
	"errors"
	"fmt"

	"consultacnpj/internal/cnpja"
	"consultacnpj/internal/models"
)

// maxMessageLen bounds error text copied into result sentinels.
const maxMessageLen = 200

// Outcome labels reported to the recorder.
const (
	outcomeLabelSuccess       = "success"
	outcomeLabelCached        = "cached"
	outcomeLabelUpstreamError = "upstream_error"
	outcomeLabelExhausted     = "exhausted"
	outcomeLabelUnexpected    = "unexpected"
)

var errNoStrategy = errors.New("no strategy configured")

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeNextStrategy
	outcomeRetryable
	outcomeTerminal
)

// step is one upstream request within an attempt.
type step struct {
	probe bool
	opts  cnpja.FetchOptions
}

// outcome is the typed result of a single step. Terminal outcomes carry the
// sentinel message that ends up in the result.
type outcome struct {
	kind    outcomeKind
	doc     cnpja.Document
	err     error
	label   string
	message string
}

// classify maps one upstream call to the action the driving loop takes.
func classify(s step, doc cnpja.Document, err error) outcome {
	if err == nil {
		if doc == nil {
			doc = cnpja.Document{}
		}
		return outcome{kind: outcomeSuccess, doc: doc}
	}

	if upErr, ok := cnpja.AsUpstreamError(err); ok {
		switch {
		case s.probe && upErr.IsNotFound():
			return outcome{kind: outcomeNextStrategy, err: err}
		case upErr.IsRateLimited():
			return outcome{kind: outcomeRetryable, err: err}
		default:
			return outcome{
				kind:    outcomeTerminal,
				err:     err,
				label:   outcomeLabelUpstreamError,
				message: models.UpstreamErrorLabel + truncate(upstreamMessage(upErr)),
			}
		}
	}

	if errors.Is(err, cnpja.ErrTransient) {
		return outcome{kind: outcomeRetryable, err: err}
	}
	return unexpected(err)
}

func unexpected(err error) outcome {
	return outcome{
		kind:    outcomeTerminal,
		err:     err,
		label:   outcomeLabelUnexpected,
		message: models.UnexpectedLabel + truncate(err.Error()),
	}
}

func upstreamMessage(e *cnpja.UpstreamError) string {
	if e.Message == "" {
		return fmt.Sprintf("status %d", e.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxMessageLen {
		return s
	}
	return string(r[:maxMessageLen])
}
