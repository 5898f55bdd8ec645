package recovery

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"regexp"
	"strings"

	"github.com/MikeSquared-Agency/promptvault/internal/parser"
)

// ErrorType is the import failure taxonomy.
type ErrorType string

const (
	InvalidFormat   ErrorType = "invalid_format"
	EmptyFile       ErrorType = "empty_file"
	LargeFile       ErrorType = "large_file"
	ParseError      ErrorType = "parse_error"
	MemoryError     ErrorType = "memory_error"
	PermissionError ErrorType = "permission_error"
	NetworkError    ErrorType = "network_error"
	Unknown         ErrorType = "unknown"
)

// ClassifiedError is a failure mapped onto the taxonomy with a
// user-facing suggestion.
type ClassifiedError struct {
	Type        ErrorType `json:"type"`
	Message     string    `json:"message"`
	File        string    `json:"file,omitempty"`
	Line        int       `json:"line,omitempty"`
	Recoverable bool      `json:"recoverable"`
	Suggestion  string    `json:"suggestion"`
	cause       error
}

func (e *ClassifiedError) Error() string {
	var sb strings.Builder
	if e.File != "" {
		sb.WriteString(e.File)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	return sb.String()
}

func (e *ClassifiedError) Unwrap() error { return e.cause }

// Context carries where a failure happened, when the error itself does not.
type Context struct {
	File string
	Line int
}

type policy struct {
	recoverable bool
	suggestion  string
	action      Action
}

var policies = map[ErrorType]policy{
	InvalidFormat: {
		suggestion: "Check that the file is an unmodified export from ChatGPT, Claude, Gemini, Cline or Cursor, or pick the platform explicitly.",
		action:     ActionViewGuide,
	},
	EmptyFile: {
		suggestion: "The file has no content. Re-export the conversation history and upload the new file.",
	},
	LargeFile: {
		suggestion: "Split the export into smaller files and import them separately.",
		action:     ActionSplitFile,
	},
	ParseError: {
		recoverable: true,
		suggestion:  "The file is damaged or was edited by hand. Re-export it or fix the reported line, then retry.",
		action:      ActionViewGuide,
	},
	MemoryError: {
		recoverable: true,
		suggestion:  "Import fewer files at once or lower the batch size.",
		action:      ActionSplitFile,
	},
	PermissionError: {
		suggestion: "The file could not be read. Copy it to a location you own and try again.",
		action:     ActionCopyFiles,
	},
	NetworkError: {
		recoverable: true,
		suggestion:  "Check your connection and retry; the import resumes where it stopped.",
	},
	Unknown: {
		suggestion: "Skip this file or contact support with the error message.",
	},
}

type rule struct {
	typ ErrorType
	re  *regexp.Regexp
}

// rules are matched in order against the lower-cased message.
var rules = []rule{
	{InvalidFormat, regexp.MustCompile(`invalid format|unsupported (file )?format|unrecognized (export )?format|not a recognized|server-side processing|parser not found|unknown platform`)},
	{EmptyFile, regexp.MustCompile(`empty file|file is empty|no content|zero bytes|\b0 bytes\b`)},
	{LargeFile, regexp.MustCompile(`too large|file size|exceeds (the )?(maximum|max|limit)|size limit|request entity too large`)},
	{ParseError, regexp.MustCompile(`parse error|failed to parse|cannot parse|syntax error|unexpected (token|end of json|eof)|invalid character|malformed|cannot unmarshal|yaml:`)},
	{MemoryError, regexp.MustCompile(`out of memory|heap|memory (limit|exhausted|allocation)|cannot allocate|allocation failed`)},
	{PermissionError, regexp.MustCompile(`permission denied|access denied|operation not permitted|forbidden|eacces|eperm`)},
	{NetworkError, regexp.MustCompile(`network|timeout|timed out|deadline exceeded|connection (refused|reset|closed)|no such host|econnrefused|econnreset|etimedout|fetch failed|\beof\b`)},
}

// Classify maps err onto the taxonomy. Typed errors are recognized first;
// anything else is matched by message. A nil err classifies as Unknown.
func Classify(err error, c Context) *ClassifiedError {
	if err == nil {
		return newClassified(Unknown, "unknown error", c, nil)
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		out := *ce
		if out.File == "" {
			out.File = c.File
		}
		if out.Line == 0 {
			out.Line = c.Line
		}
		return &out
	}

	msg := err.Error()

	var perr *parser.Error
	if errors.As(err, &perr) && !errors.Is(err, parser.ErrServerSideRequired) {
		if c.Line == 0 {
			c.Line = perr.Line
		}
		if c.File == "" {
			c.File = perr.File
		}
		return newClassified(ParseError, msg, c, err)
	}
	if errors.Is(err, parser.ErrServerSideRequired) || errors.Is(err, parser.ErrUnknownFormat) {
		return newClassified(InvalidFormat, msg, c, err)
	}
	if errors.Is(err, fs.ErrPermission) {
		return newClassified(PermissionError, msg, c, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newClassified(NetworkError, msg, c, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return newClassified(NetworkError, msg, c, err)
	}

	lower := strings.ToLower(msg)
	for _, r := range rules {
		if r.re.MatchString(lower) {
			return newClassified(r.typ, msg, c, err)
		}
	}
	return newClassified(Unknown, msg, c, err)
}

// New builds a ClassifiedError of a known type directly.
func New(typ ErrorType, message string, c Context) *ClassifiedError {
	return newClassified(typ, message, c, nil)
}

func newClassified(typ ErrorType, msg string, c Context, cause error) *ClassifiedError {
	p := policies[typ]
	return &ClassifiedError{
		Type:        typ,
		Message:     msg,
		File:        c.File,
		Line:        c.Line,
		Recoverable: p.recoverable,
		Suggestion:  p.suggestion,
		cause:       cause,
	}
}
