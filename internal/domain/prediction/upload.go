package prediction

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sympto/sympto/internal/platform/apperr"
)

// ImageField is the multipart field carrying the uploaded image.
const ImageField = "image"

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
}

// UploadedFile is an image spooled to the upload directory for the lifetime
// of one request.
type UploadedFile struct {
	FileName    string
	ContentType string
	Size        int64
	Path        string

	once sync.Once
	err  error
}

// Cleanup removes the file. Only the first call touches the filesystem;
// later calls return the first result. A file that is already gone is not an
// error.
func (f *UploadedFile) Cleanup() error {
	f.once.Do(func() {
		if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			f.err = err
		}
	})
	return f.err
}

// Uploader receives single-image multipart uploads.
type Uploader struct {
	dir     string
	maxSize int64
}

// NewUploader creates dir if needed.
func NewUploader(dir string, maxSize int64) (*Uploader, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Uploader{dir: dir, maxSize: maxSize}, nil
}

func (u *Uploader) Dir() string { return u.dir }

// Receive streams the request's image part to a uniquely named file in the
// upload directory. Exactly one image part is accepted. On any error no file
// is left behind.
func (u *Uploader) Receive(r *http.Request) (*UploadedFile, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, apperr.Validation("no image uploaded")
	}

	var file *UploadedFile
	fail := func(err error) (*UploadedFile, error) {
		if file != nil {
			_ = file.Cleanup()
		}
		return nil, err
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fail(bodyError(err))
		}

		if part.FormName() != ImageField || part.FileName() == "" {
			if _, err := io.Copy(io.Discard, part); err != nil {
				part.Close()
				return fail(bodyError(err))
			}
			part.Close()
			continue
		}
		if file != nil {
			part.Close()
			return fail(apperr.Validation("only one image may be uploaded"))
		}

		file, err = u.spool(part.FileName(), part.Header.Get("Content-Type"), part)
		part.Close()
		if err != nil {
			return nil, err
		}
	}

	if file == nil {
		return nil, apperr.Validation("no image uploaded")
	}
	return file, nil
}

func (u *Uploader) spool(name, contentType string, src io.Reader) (*UploadedFile, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	mediaType = strings.ToLower(mediaType)
	if err != nil || !allowedImageTypes[mediaType] {
		return nil, apperr.Validation("only JPEG, JPG and PNG files are allowed")
	}

	tmp, err := os.CreateTemp(u.dir, "upload-*"+safeExt(name))
	if err != nil {
		return nil, apperr.Internal("failed to store upload", err)
	}
	file := &UploadedFile{
		FileName:    filepath.Base(name),
		ContentType: mediaType,
		Path:        tmp.Name(),
	}

	n, copyErr := io.Copy(tmp, io.LimitReader(src, u.maxSize+1))
	closeErr := tmp.Close()
	switch {
	case copyErr != nil:
		_ = file.Cleanup()
		return nil, bodyError(copyErr)
	case n > u.maxSize:
		_ = file.Cleanup()
		return nil, apperr.TooLarge(fmt.Sprintf("image exceeds maximum size of %d bytes", u.maxSize))
	case closeErr != nil:
		_ = file.Cleanup()
		return nil, apperr.Internal("failed to store upload", closeErr)
	}
	file.Size = n
	return file, nil
}

func bodyError(err error) error {
	return apperr.FromBody(err, "malformed multipart body")
}

func safeExt(name string) string {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".jpg", ".jpeg", ".png":
		return ext
	}
	return ""
}
