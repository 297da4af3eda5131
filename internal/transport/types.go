package transport

import (
	"context"
	"errors"
)

type ChatTarget struct {
	ChatID   int64
	ThreadID int // telegram forum topic thread id (0 if none)
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Sender delivers messages to a chat. Implementations must be safe for
// concurrent use.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendPhoto(ctx context.Context, to ChatTarget, photo []byte, caption string, opt *SendOptions) (MessageRef, error)
}

// TextSplitter is implemented by senders with a per-message size limit.
// Each returned part is sent by one SendText call.
type TextSplitter interface {
	SplitText(text string, opt *SendOptions) []string
}

// ErrPermanent marks a delivery error that retrying cannot fix
// (bad token, unknown chat, malformed request).
var ErrPermanent = errors.New("permanent delivery error")

type permanentError struct{ err error }

func (e permanentError) Error() string        { return e.err.Error() }
func (e permanentError) Unwrap() error        { return e.err }
func (e permanentError) Is(target error) bool { return target == ErrPermanent }

// Permanent wraps err so IsPermanent reports true. nil stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool { return errors.Is(err, ErrPermanent) }

// ErrUnconfirmed marks a send whose request reached the server but whose
// reply never arrived. The message may have been delivered, so a resend
// could duplicate it. Unconfirmed errors are also permanent.
var ErrUnconfirmed = errors.New("delivery unconfirmed")

type unconfirmedError struct{ err error }

func (e unconfirmedError) Error() string { return "delivery unconfirmed: " + e.err.Error() }
func (e unconfirmedError) Unwrap() error { return e.err }
func (e unconfirmedError) Is(target error) bool {
	return target == ErrUnconfirmed || target == ErrPermanent
}

// Unconfirmed wraps err so IsUnconfirmed and IsPermanent report true.
// nil stays nil.
func Unconfirmed(err error) error {
	if err == nil {
		return nil
	}
	return unconfirmedError{err: err}
}

func IsUnconfirmed(err error) bool { return errors.Is(err, ErrUnconfirmed) }
