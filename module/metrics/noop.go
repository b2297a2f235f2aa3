package metrics

import (
	"time"

	"github.com/wartime-penguins/notary/module"
)

type NoopCollector struct{}

var _ module.NotaryMetrics = (*NoopCollector)(nil)

func NewNoopCollector() *NoopCollector {
	nc := &NoopCollector{}
	return nc
}

func (nc *NoopCollector) RequestHandled(kind string, status string, duration time.Duration) {}
func (nc *NoopCollector) RequestFailed(kind string)                                         {}
func (nc *NoopCollector) PollFailed()                                                       {}
func (nc *NoopCollector) ArtifactSynthesized(sizeBytes int, duration time.Duration)         {}
func (nc *NoopCollector) BlocksVerified(count int)                                          {}
func (nc *NoopCollector) BlockRejected()                                                    {}
func (nc *NoopCollector) NoticeEmitted(manifestEntries int)                                 {}

