package instactl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions configures NewLogger.
type LogOptions struct {
	// File is the rotated trace file; empty disables it.
	File    string
	Verbose bool
	// Console receives the same lines; nil means stderr.
	Console io.Writer
}

// NewLogger builds the console + rotating file logger.
func NewLogger(opts LogOptions) *zap.Logger {
	level := zapcore.InfoLevel
	if opts.Verbose {
		level = zapcore.DebugLevel
	}
	core := zapcore.NewCore(getEncoder(), getLogWriter(opts), level)
	return zap.New(core)
}

func getLogWriter(opts LogOptions) zapcore.WriteSyncer {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	syncers := []zapcore.WriteSyncer{zapcore.AddSync(console)}
	if opts.File != "" {
		syncers = append(syncers, zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   false,
		}))
	}
	return zapcore.NewMultiWriteSyncer(syncers...)
}

func getEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewConsoleEncoder(encoderConfig)
}

// ErrNoPrompt is returned by prompters that cannot ask the user anything.
var ErrNoPrompt = errors.New("no interactive input available")

// Prompter asks the user for input during login.
type Prompter interface {
	Prompt(label string) (string, error)
	// Secret reads without echo when possible.
	Secret(label string) (string, error)
}

// TermPrompter reads from In and writes labels to Out.
type TermPrompter struct {
	In  io.Reader
	Out io.Writer

	reader *bufio.Reader
}

// NewTermPrompter reads answers from in and writes prompts to out.
func NewTermPrompter(in io.Reader, out io.Writer) *TermPrompter {
	return &TermPrompter{In: in, Out: out}
}

func (p *TermPrompter) Prompt(label string) (string, error) {
	fmt.Fprint(p.Out, label)
	if p.reader == nil {
		p.reader = bufio.NewReader(p.In)
	}
	input, err := p.reader.ReadString('\n')
	if err != nil && (err != io.EOF || input == "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(input), nil
}

func (p *TermPrompter) Secret(label string) (string, error) {
	if f, ok := p.In.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(p.Out, label)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.Out)
		if err != nil {
			return "", fmt.Errorf("read secret: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	return p.Prompt(label)
}

// NoPrompter fails every prompt; used when stdin is not interactive.
type NoPrompter struct{}

func (NoPrompter) Prompt(string) (string, error) { return "", ErrNoPrompt }
func (NoPrompter) Secret(string) (string, error) { return "", ErrNoPrompt }
