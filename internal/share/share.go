// Package share builds canonical Pulse links and hands them to the platform
// share sheet or, failing that, the clipboard.
package share

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/abelbrown/vibesphere/internal/model"
)

// ErrUnavailable means the capability does not exist on this platform.
var ErrUnavailable = errors.New("share: unavailable")

// Payload is what gets shared.
type Payload struct {
	Title string
	Text  string
	URL   string
}

// Sharer is the platform share capability.
type Sharer interface {
	Share(ctx context.Context, p Payload) error
}

// Clipboard is the clipboard capability.
type Clipboard interface {
	WriteText(text string) error
}

// ToastKind styles a toast.
type ToastKind string

const (
	ToastSuccess ToastKind = "success"
	ToastError   ToastKind = "error"
	ToastWarning ToastKind = "warning"
)

// Toast is a short-lived status message.
type Toast struct {
	Message string
	Kind    ToastKind
}

// Method records how a share was delivered.
type Method string

const (
	MethodPlatform  Method = "platform"
	MethodClipboard Method = "clipboard"
	MethodNone      Method = "none"
)

// Result of Deliver. Err is the last failure when Method is MethodNone.
type Result struct {
	Method Method
	Toast  Toast
	Err    error
}

// OK reports whether the link reached the user.
func (r Result) OK() bool { return r.Method != MethodNone }

// Link is the canonical URL of a Pulse.
func Link(baseURL, pulseID string) string {
	return strings.TrimRight(baseURL, "/") + "/pulse/" + pulseID
}

// PayloadFor builds the share payload for p.
func PayloadFor(baseURL string, p model.Pulse) Payload {
	return Payload{
		Title: fmt.Sprintf("Check out this Pulse by @%s", p.Username),
		Text:  p.Caption,
		URL:   Link(baseURL, p.ID),
	}
}

// Deliver tries the platform sharer first and falls back to the clipboard on
// any error or when sharer is nil. A toast is produced on every path.
func Deliver(ctx context.Context, sharer Sharer, clip Clipboard, p Payload) Result {
	if sharer != nil {
		err := sharer.Share(ctx, p)
		if err == nil {
			return Result{Method: MethodPlatform, Toast: Toast{Message: "Shared successfully!", Kind: ToastSuccess}}
		}
		if ctx.Err() != nil {
			return Result{Method: MethodNone, Err: ctx.Err(), Toast: Toast{Message: "Share cancelled", Kind: ToastWarning}}
		}
	}

	if clip == nil {
		return failed(ErrUnavailable)
	}
	if err := clip.WriteText(p.URL); err != nil {
		return failed(err)
	}
	return Result{Method: MethodClipboard, Toast: Toast{Message: "Link copied to clipboard!", Kind: ToastSuccess}}
}

func failed(err error) Result {
	return Result{
		Method: MethodNone,
		Err:    err,
		Toast:  Toast{Message: "Couldn't share this Pulse", Kind: ToastError},
	}
}
