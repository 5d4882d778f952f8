package logger

import "log/slog"

type Backend string

const (
	BackendStd Backend = "std" // slog text handler, dev
	BackendZap Backend = "zap" // zap JSON core behind slog
)

type Config struct {
	Service    string
	Version    string
	InstanceID string

	Level   slog.Level
	Env     Env
	Backend Backend // default: std in dev, zap otherwise
	Debug   bool

	// Zap sampling per second: first SampleInitial entries with the same
	// message pass, then every SampleThereafter-th.
	SampleInitial    int
	SampleThereafter int

	AddSource bool
}
