package gologger

import (
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-changelog-hooks/core"
)

const DefaultLoggerName = "changelog-hooks"

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// NewObserver resolves a named logger and pairs it with metrics. Components
// receive child loggers keyed by their own name.
func NewObserver(name string, provider glog.LoggerProvider, logger glog.Logger, metrics core.MetricsRecorder) core.Observer {
	if name == "" {
		name = DefaultLoggerName
	}
	_, resolved := Resolve(name, provider, logger)
	return core.NewObserver(resolved, metrics)
}

// ComponentObserver derives an observer whose logger is scoped to component.
func ComponentObserver(provider glog.LoggerProvider, component string, metrics core.MetricsRecorder) core.Observer {
	if provider == nil {
		return core.NewObserver(glog.Nop(), metrics)
	}
	return core.NewObserver(provider.GetLogger(DefaultLoggerName+"."+component), metrics)
}
