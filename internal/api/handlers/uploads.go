package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nextconvert/reelmix/internal/modules/montage"
)

const multipartMemory = 32 << 20

// clipForm holds the non-file fields shared by the render and run endpoints
type clipForm struct {
	Intervals string
	Preset    string
	Mode      string
	Options   map[string]string
}

func parseClipForm(r *http.Request, defaultPreset string) (clipForm, error) {
	if r.MultipartForm == nil {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return clipForm{}, fmt.Errorf("%w: failed to parse form: %v", montage.ErrInvalidRequest, err)
		}
	}

	form := clipForm{
		Intervals: r.FormValue("intervals"),
		Preset:    strings.TrimSpace(r.FormValue("preset")),
		Mode:      strings.TrimSpace(r.FormValue("mode")),
		Options:   make(map[string]string),
	}
	if form.Preset == "" {
		form.Preset = defaultPreset
	}
	for _, name := range montage.OptionNames() {
		if v := strings.TrimSpace(r.FormValue(name)); v != "" {
			form.Options[name] = v
		}
	}
	return form, nil
}

// saveFunc persists one upload and returns where it went
type saveFunc func(name string, src io.Reader) (string, error)

// saveFormFile hands the named upload to save. A missing optional file yields "".
func saveFormFile(r *http.Request, field string, required bool, save saveFunc) (string, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		if required {
			return "", fmt.Errorf("%w: %s file is required", montage.ErrInvalidRequest, field)
		}
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: unreadable %s upload: %v", montage.ErrInvalidRequest, field, err)
	}
	defer file.Close()

	return save(header.Filename, file)
}
