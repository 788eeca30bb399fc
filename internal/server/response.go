package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/ngenohkevin/fbrs/internal/descriptor"
)

// descriptorView is the wire form of a descriptor. Exactly one is* flag
// is set for stat'ed entries; unstated entries carry only path and filename.
type descriptorView struct {
	Path              string `json:"path"`
	Filename          string `json:"filename"`
	Kind              string `json:"kind,omitempty"`
	IsFile            bool   `json:"isFile,omitempty"`
	IsDirectory       bool   `json:"isDirectory,omitempty"`
	IsBlockDevice     bool   `json:"isBlockDevice,omitempty"`
	IsCharacterDevice bool   `json:"isCharacterDevice,omitempty"`
	IsSymbolicLink    bool   `json:"isSymbolicLink,omitempty"`
	IsFIFO            bool   `json:"isFIFO,omitempty"`
	IsSocket          bool   `json:"isSocket,omitempty"`
	MIME              string `json:"mime,omitempty"`
	*descriptor.Stat
	Content any `json:"content,omitempty"`
}

func newDescriptorView(d *descriptor.Descriptor) *descriptorView {
	v := &descriptorView{
		Path:     d.Path,
		Filename: d.Filename,
		MIME:     d.MIME,
		Stat:     d.Stat,
	}

	if d.HasStat() {
		v.Kind = d.Kind.String()
		switch d.Kind {
		case descriptor.KindFile:
			v.IsFile = true
		case descriptor.KindDirectory:
			v.IsDirectory = true
		case descriptor.KindBlockDevice:
			v.IsBlockDevice = true
		case descriptor.KindCharDevice:
			v.IsCharacterDevice = true
		case descriptor.KindSymlink:
			v.IsSymbolicLink = true
		case descriptor.KindFIFO:
			v.IsFIFO = true
		case descriptor.KindSocket:
			v.IsSocket = true
		}
	}

	switch {
	case d.Kind == descriptor.KindFile && d.Data != nil:
		v.Content = string(d.Data)
	case d.Kind == descriptor.KindDirectory && d.Entries != nil:
		entries := make([]*descriptorView, len(d.Entries))
		for i, e := range d.Entries {
			entries[i] = newDescriptorView(e)
		}
		v.Content = entries
	}

	return v
}

// apiError is the body of a failed describe call
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
	Op      string `json:"op,omitempty"`
}

// errorResponse classifies an engine error into a status and JSON body
func errorResponse(err error) (int, gin.H) {
	status, code := http.StatusInternalServerError, "EIO"

	switch {
	case errors.Is(err, fs.ErrNotExist):
		status, code = http.StatusNotFound, "ENOENT"
	case errors.Is(err, syscall.ENOTDIR):
		status, code = http.StatusNotFound, "ENOTDIR"
	case errors.Is(err, fs.ErrPermission):
		status, code = http.StatusForbidden, "EACCES"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusServiceUnavailable, "ECANCELED"
	}

	body := apiError{Code: code, Message: err.Error()}
	var pe *fs.PathError
	if errors.As(err, &pe) {
		body.Path = pe.Path
		body.Op = pe.Op
		body.Message = pe.Err.Error()
	}

	return status, gin.H{"error": body}
}

// parseOptions reads describe options from the query string
func parseOptions(c *gin.Context) (descriptor.Options, error) {
	opts := descriptor.Options{Path: c.Query("path")}

	flags := []struct {
		name string
		dst  *bool
	}{
		{"ignoreDotFiles", &opts.IgnoreDotFiles},
		{"ignoreUpDir", &opts.IgnoreUpDir},
		{"ignoreCurDir", &opts.IgnoreCurDir},
	}
	for _, f := range flags {
		v, ok, err := parseFlag(c, f.name)
		if err != nil {
			return opts, err
		}
		if ok {
			*f.dst = v
		}
	}

	v, ok, err := parseFlag(c, "statEach")
	if err != nil {
		return opts, err
	}
	if ok {
		opts.StatEach = descriptor.Bool(v)
	}

	return opts, nil
}

// parseFlag parses a boolean query parameter. A bare key counts as true.
func parseFlag(c *gin.Context, name string) (value, present bool, err error) {
	raw, present := c.GetQuery(name)
	if !present {
		return false, false, nil
	}

	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "1", "true", "t", "yes", "y", "on":
		return true, true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, true, nil
	}
	return false, true, fmt.Errorf("invalid boolean %q for %s", raw, name)
}
