// Package recorder keeps a transcript of every request sent to a test server,
// one numbered file per exchange.
package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sync "github.com/bacalhau-project/golang-mutex-tracer"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const (
	filePerm = 0o644
	dirPerm  = 0o755

	beginMarker = ">>>>>>>>>> "
	endMarker   = "<<<<<<<<<< "
	errorMarker = "!!!!!!!!!! "
)

// Recorder writes exchange transcripts below a directory. The directory is
// emptied the first time an exchange is recorded. A nil Recorder records
// nothing.
type Recorder struct {
	fs  afero.Fs
	dir string

	mu       sync.Mutex
	prepared bool
}

// New returns a recorder writing to dir on fs.
func New(fs afero.Fs, dir string) *Recorder {
	return &Recorder{fs: fs, dir: dir}
}

// NewOS returns a recorder writing to dir on the local disk, or nil when dir
// is empty.
func NewOS(dir string) *Recorder {
	if dir == "" {
		return nil
	}
	return New(afero.NewOsFs(), dir)
}

// Dir is the directory transcripts are written to.
func (r *Recorder) Dir() string {
	if r == nil {
		return ""
	}
	return r.dir
}

func (r *Recorder) prepare() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.prepared {
		return nil
	}
	if err := r.fs.RemoveAll(r.dir); err != nil {
		return fmt.Errorf("clearing record directory %s: %w", r.dir, err)
	}
	if err := r.fs.MkdirAll(r.dir, dirPerm); err != nil {
		return fmt.Errorf("creating record directory %s: %w", r.dir, err)
	}
	r.prepared = true
	return nil
}

// Begin starts the transcript for exchange num with a header line and the
// request body.
func (r *Recorder) Begin(num uint64, header string, body []byte) *Exchange {
	if r == nil {
		return nil
	}
	x := &Exchange{recorder: r, path: filepath.Join(r.dir, fmt.Sprintf("%05d.txt", num))}
	if err := r.prepare(); err != nil {
		log.Warn().Err(err).Msg("not recording exchanges")
		return nil
	}
	x.write(beginMarker+header, body, os.O_CREATE|os.O_TRUNC|os.O_WRONLY)
	return x
}

// Exchange is the transcript of one request. A nil Exchange ignores writes.
type Exchange struct {
	recorder *Recorder
	path     string
}

// Path is the file the exchange is written to.
func (x *Exchange) Path() string {
	if x == nil {
		return ""
	}
	return x.path
}

// End records a successful response.
func (x *Exchange) End(summary string, body []byte) {
	if x == nil {
		return
	}
	x.write(endMarker+summary, body, os.O_APPEND|os.O_WRONLY)
}

// Fail records the error that ended the exchange.
func (x *Exchange) Fail(err error, detail []byte) {
	if x == nil {
		return
	}
	x.write(errorMarker+err.Error(), detail, os.O_APPEND|os.O_WRONLY)
}

func (x *Exchange) write(header string, body []byte, flag int) {
	var sb strings.Builder
	sb.WriteString(header)
	sb.WriteString("\n")
	if len(body) > 0 {
		sb.Write(body)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	f, err := x.recorder.fs.OpenFile(x.path, flag, filePerm)
	if err != nil {
		log.Warn().Err(err).Str("path", x.path).Msg("failed to open exchange record")
		return
	}
	defer f.Close()
	if _, err := f.WriteString(sb.String()); err != nil {
		log.Warn().Err(err).Str("path", x.path).Msg("failed to write exchange record")
	}
}
