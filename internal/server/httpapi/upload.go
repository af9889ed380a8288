package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/evidencekeeper/internal/common"
)

const (
	fileField  = "video"
	plateField = "plate"
	// plate values are tiny; anything bigger is not a plate.
	maxPlateBytes = 1 << 10
)

var allowedMimes = map[string]struct{}{
	"video/mp4":                {},
	"video/mpeg":               {},
	"video/quicktime":          {},
	"video/x-msvideo":          {},
	"video/x-matroska":         {},
	"video/webm":               {},
	"video/ogg":                {},
	"video/x-flv":              {},
	"video/3gpp":               {},
	"video/3gpp2":              {},
	"video/x-ms-wmv":           {},
	"application/octet-stream": {},
}

var allowedExtensions = map[string]struct{}{
	".mp4": {}, ".webm": {}, ".ogg": {}, ".mov": {}, ".avi": {}, ".mkv": {},
	".mpeg": {}, ".mpg": {}, ".flv": {}, ".3gp": {}, ".m4v": {}, ".wmv": {},
}

// acceptedType checks the part's MIME type first and falls back to the
// file extension.
func acceptedType(contentType, fileName string) bool {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		if _, ok := allowedMimes[mt]; ok {
			return true
		}
	}
	_, ok := allowedExtensions[strings.ToLower(filepath.Ext(fileName))]
	return ok
}

// spooled is an uploaded file written to the uploads directory.
type spooled struct {
	Path     string
	FileName string
	Size     int64
}

type uploadForm struct {
	Plate string
	File  *spooled
}

// readUploadForm streams the multipart body. The video part is copied to
// disk as it arrives; nothing is buffered in memory. The caller owns the
// spooled file, including on error.
func (h *Handler) readUploadForm(r *http.Request) (*uploadForm, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: expected multipart/form-data body: %v", common.ErrValidation, err)
	}

	form := &uploadForm{}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return form, fmt.Errorf("%w: malformed multipart body: %v", common.ErrValidation, err)
		}

		err = h.readPart(form, part)
		part.Close()
		if err != nil {
			return form, err
		}
	}

	if form.File == nil {
		return form, fmt.Errorf("%w: no video file provided", common.ErrValidation)
	}
	if form.Plate == "" {
		return form, fmt.Errorf("%w: plate number is required", common.ErrValidation)
	}
	return form, nil
}

// readPart consumes one form part into form. Unknown parts are skipped.
func (h *Handler) readPart(form *uploadForm, part *multipart.Part) error {
	switch part.FormName() {
	case plateField:
		b, err := io.ReadAll(io.LimitReader(part, maxPlateBytes))
		if err != nil {
			return fmt.Errorf("%w: read plate: %v", common.ErrValidation, err)
		}
		form.Plate = strings.TrimSpace(string(b))
	case fileField:
		if form.File != nil {
			return fmt.Errorf("%w: only one %q file is accepted", common.ErrValidation, fileField)
		}
		if !acceptedType(part.Header.Get("Content-Type"), part.FileName()) {
			return fmt.Errorf("%w: invalid file type %q (%s), only video files are allowed",
				common.ErrValidation, part.Header.Get("Content-Type"), filepath.Ext(part.FileName()))
		}
		f, err := h.spool(part.FileName(), part)
		form.File = f
		if err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) spool(name string, part io.Reader) (*spooled, error) {
	target := filepath.Join(h.uploadsDir, spoolName(name, h.now(), h.randSuffix()))

	out, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: create spool file: %v", common.ErrInternal, err)
	}

	s := &spooled{Path: target, FileName: filepath.Base(name)}
	n, err := io.Copy(out, part)
	s.Size = n
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return s, fmt.Errorf("%w: upload exceeds %d bytes", common.ErrValidation, maxErr.Limit)
		}
		return s, fmt.Errorf("%w: spool upload: %v", common.ErrInternal, err)
	}
	return s, nil
}

// spoolName is evidence-<unix ms>-<random><ext>.
func spoolName(original string, now time.Time, suffix string) string {
	return fmt.Sprintf("evidence-%d-%s%s", now.UnixMilli(), suffix, filepath.Ext(filepath.Base(original)))
}
