package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/corvidlabs/helmsman/internal/session"
	"github.com/corvidlabs/helmsman/internal/types"
)

// maxScreenshotSize mirrors the teacher's solver-level guard against
// memory exhaustion from an oversized capture.
const maxScreenshotSize = 5 * 1024 * 1024

const screenshotDir = "screenshots"

// Screenshot captures the session's current page, or a single selector
// within it, to disk as PNG (or JPEG when a quality is requested) and
// returns the path and size written.
func (e *Executor) Screenshot(ctx context.Context, sess *session.Session, req types.ScreenshotRequest) (*types.ScreenshotResult, error) {
	if err := sess.CheckQuota("screenshots"); err != nil {
		return nil, err
	}
	sess.RecordRequest()

	timeout, err := validateTimeout(req.Timeout)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page, release := sess.AcquirePageWithRelease()
	if page == nil {
		return nil, types.NewBrowserOperationError("screenshot", types.ErrSessionPageNil)
	}
	defer release()

	p := page.Context(ctx)

	if req.WaitForDynamic {
		_ = p.WaitLoad()
	}

	format := proto.PageCaptureScreenshotFormatPng
	var quality *int
	if req.JPEGQuality > 0 {
		format = proto.PageCaptureScreenshotFormatJpeg
		q := req.JPEGQuality
		quality = &q
	}

	start := time.Now()
	var data []byte

	if req.Selector != "" {
		var el *rod.Element
		el, err = p.Element(req.Selector)
		if err == nil {
			data, err = el.Screenshot(format, derefOr(quality, 0))
		}
	} else {
		data, err = p.Screenshot(req.FullPage, &proto.PageCaptureScreenshot{
			Format:  format,
			Quality: quality,
		})
	}
	elapsed := time.Since(start)

	e.recordOutcome(sess, err == nil, elapsed)

	if err != nil {
		sess.RecordError(err)
		return nil, types.NewBrowserOperationError("screenshot", fmt.Errorf("screenshot capture failed: %w", err))
	}

	if len(data) > maxScreenshotSize {
		return nil, types.NewResourceLimitError("screenshot_size", maxScreenshotSize, int64(len(data)))
	}

	path := req.OutputPath
	if path == "" {
		ext := "png"
		if format == proto.PageCaptureScreenshotFormatJpeg {
			ext = "jpg"
		}
		path = filepath.Join(screenshotDir, fmt.Sprintf("%s_%d.%s", sess.ID, time.Now().Unix(), ext))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, types.NewBrowserOperationError("screenshot", fmt.Errorf("create screenshot directory: %w", err))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, types.NewBrowserOperationError("screenshot", fmt.Errorf("write screenshot: %w", err))
	}

	sess.RecordScreenshot()

	return &types.ScreenshotResult{
		Path:     path,
		SizeByte: int64(len(data)),
	}, nil
}

func derefOr(p *int, fallback int) int {
	if p == nil {
		return fallback
	}
	return *p
}
