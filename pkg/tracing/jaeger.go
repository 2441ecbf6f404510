package tracing

import (
	"fmt"
	"io"
	"time"

	opentracing "github.com/opentracing/opentracing-go"
	jaeger "github.com/uber/jaeger-client-go"
	"github.com/uber/jaeger-client-go/config"
)

var defaultJaegerServer = fmt.Sprintf("%s:%d", jaeger.DefaultUDPSpanServerHost, jaeger.DefaultUDPSpanServerPort)

// Config selects the jaeger agent the spans of a migration run are reported to
type Config struct {
	// Server is the host:port of the jaeger agent, empty disables tracing
	Server string `json:"server" env:"SERVER"`
	// ServiceName is reported with every span
	ServiceName string `json:"serviceName" env:"SERVICE_NAME" envDefault:"schema-migrator"`
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// InitJaeger installs a jaeger tracer as the global tracer unless one is
// already set. The returned closer flushes the buffered spans, call it before
// the process exits.
//
// The "JAEGER_*" environment variables are read first, empty values are filled
// from cfg. Without a configured sampler every span is sampled, a migration run
// creates only a handful of them.
func InitJaeger(cfg Config) (io.Closer, error) {
	if cfg.Server == "" {
		return nopCloser{}, nil
	}
	if _, ok := opentracing.GlobalTracer().(opentracing.NoopTracer); !ok {
		return nopCloser{}, nil
	}

	jcfg, err := getConfig(cfg)
	if err != nil {
		return nil, err
	}

	return jcfg.InitGlobalTracer(jcfg.ServiceName, config.Logger(jaeger.StdLogger))
}

func getConfig(cfg Config) (*config.Configuration, error) {
	jcfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	if jcfg.ServiceName == "" {
		jcfg.ServiceName = cfg.ServiceName
	}

	if jcfg.Sampler.Type == "" {
		jcfg.Sampler.Type = jaeger.SamplerTypeConst
		jcfg.Sampler.Param = 1
	}

	if jcfg.Reporter.BufferFlushInterval == 0 {
		jcfg.Reporter.BufferFlushInterval = 1 * time.Second
	}

	if cfg.Server != "" && (jcfg.Reporter.LocalAgentHostPort == "" || jcfg.Reporter.LocalAgentHostPort == defaultJaegerServer) {
		jcfg.Reporter.LocalAgentHostPort = cfg.Server
	}

	return jcfg, nil
}
